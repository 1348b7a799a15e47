package transcribe

import (
	"context"
	"net/http"

	"transcription-studio/internal/domain"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "whisper-1"
)

// OpenAIClient transcribes through the OpenAI audio transcription endpoint.
type OpenAIClient struct {
	httpBackend
	modelName string
}

// NewOpenAIClient creates the OpenAI backend. Empty baseURL and modelName use defaults.
func NewOpenAIClient(apiKey, modelName, baseURL string, client *http.Client) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	return &OpenAIClient{
		httpBackend: newHTTPBackend(domain.ModelOpenAI, apiKey, baseURL, client),
		modelName:   modelName,
	}
}

// Transcribe uploads audio with verbose_json so segment timing is returned when available.
func (c *OpenAIClient) Transcribe(ctx context.Context, req Request) (Response, error) {
	if err := c.ensureAPIKey(); err != nil {
		return Response{}, err
	}

	body, contentType, err := multipartAudio(req.Audio, map[string]string{
		"model":           c.modelName,
		"prompt":          req.Prompt,
		"response_format": "verbose_json",
	})
	if err != nil {
		return Response{}, &RemoteError{Model: c.model, Message: "build request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return Response{}, &RemoteError{Model: c.model, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", contentType)

	var payload struct {
		Text     string `json:"text"`
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		} `json:"segments"`
	}
	if err := c.do(ctx, httpReq, &payload); err != nil {
		return Response{}, err
	}

	resp := Response{Text: payload.Text}
	for _, seg := range payload.Segments {
		resp.Segments = append(resp.Segments, domain.Segment{Text: seg.Text, Start: seg.Start, End: seg.End})
	}
	return resp, nil
}
