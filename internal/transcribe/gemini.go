package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"transcription-studio/internal/captions"
	"transcription-studio/internal/domain"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash"
)

// GeminiClient transcribes by sending inline audio to generateContent.
type GeminiClient struct {
	httpBackend
	modelName string
}

// NewGeminiClient creates the Gemini backend. Empty baseURL and modelName use defaults.
func NewGeminiClient(apiKey, modelName, baseURL string, client *http.Client) *GeminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	return &GeminiClient{
		httpBackend: newHTTPBackend(domain.ModelGemini, apiKey, baseURL, client),
		modelName:   modelName,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Transcribe returns VTT cues when the model answered in WEBVTT, flat text otherwise.
func (c *GeminiClient) Transcribe(ctx context.Context, req Request) (Response, error) {
	if err := c.ensureAPIKey(); err != nil {
		return Response{}, err
	}

	mimeType := req.Audio.ContentType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	prompt := req.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}

	payload := map[string]any{
		"contents": []map[string]any{{
			"parts": []geminiPart{
				{Text: "Transcribe this audio. " + prompt},
				{InlineData: &geminiInlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(req.Audio.Data)}},
			},
		}},
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return Response{}, &RemoteError{Model: c.model, Message: "encode request", Err: err}
	}

	endpoint := c.baseURL + "/models/" + url.PathEscape(c.modelName) + ":generateContent?key=" + url.QueryEscape(c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return Response{}, &RemoteError{Model: c.model, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := c.do(ctx, httpReq, &response); err != nil {
		return Response{}, err
	}
	if len(response.Candidates) == 0 {
		return Response{}, &RemoteError{Model: c.model, Message: "no candidates returned", Err: ErrEmptyResponse}
	}

	var sb strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := stripCodeFence(sb.String())

	if strings.HasPrefix(text, "WEBVTT") {
		caption, err := captions.ParseVTT(text)
		if err != nil {
			return Response{}, &RemoteError{Model: c.model, Message: "malformed vtt in response", Err: err}
		}
		return Response{Segments: caption.Segments}, nil
	}
	return Response{Text: text}, nil
}

// stripCodeFence removes a surrounding markdown code block the model sometimes adds.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
