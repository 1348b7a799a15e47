package transcribe

import (
	"context"
	"net/http"

	"transcription-studio/internal/captions"
	"transcription-studio/internal/domain"
)

// Phi4Client posts audio to a self-hosted Phi-4 multimodal endpoint.
type Phi4Client struct {
	httpBackend
}

// NewPhi4Client creates the Phi-4 backend for the given endpoint URL.
func NewPhi4Client(endpoint, apiKey string, client *http.Client) *Phi4Client {
	return &Phi4Client{httpBackend: newHTTPBackend(domain.ModelPhi4, apiKey, endpoint, client)}
}

// Transcribe accepts either {"text": ...} or {"chunks": [{"text", "timestamp": [s, e]}]}.
func (c *Phi4Client) Transcribe(ctx context.Context, req Request) (Response, error) {
	if c.baseURL == "" {
		return Response{}, &RemoteError{Model: c.model, Message: "endpoint is not configured"}
	}

	body, contentType, err := multipartAudio(req.Audio, map[string]string{"prompt": req.Prompt})
	if err != nil {
		return Response{}, &RemoteError{Model: c.model, Message: "build request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return Response{}, &RemoteError{Model: c.model, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var payload struct {
		Text   string           `json:"text"`
		Chunks []captions.Chunk `json:"chunks"`
	}
	if err := c.do(ctx, httpReq, &payload); err != nil {
		return Response{}, err
	}
	return Response{Text: payload.Text, Chunks: payload.Chunks}, nil
}
