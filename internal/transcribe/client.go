package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"transcription-studio/internal/domain"
)

const requestTimeout = 10 * time.Minute

// httpBackend carries the plumbing shared by the HTTP transcription clients.
type httpBackend struct {
	model      domain.Model
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newHTTPBackend(model domain.Model, apiKey, baseURL string, client *http.Client) httpBackend {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return httpBackend{
		model:      model,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// Model returns the backend identifier.
func (b httpBackend) Model() domain.Model {
	return b.model
}

func (b httpBackend) ensureAPIKey() error {
	if strings.TrimSpace(b.apiKey) == "" {
		return &RemoteError{Model: b.model, Message: "api key is not configured"}
	}
	return nil
}

// multipartAudio builds a multipart body holding the audio file plus plain fields.
func multipartAudio(audio domain.AudioAsset, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := audio.Name
	if filename == "" {
		filename = "audio"
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("copy audio data: %w", err)
	}

	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// do sends the request and decodes a JSON body into out, mapping failures to RemoteError.
func (b httpBackend) do(ctx context.Context, req *http.Request, out any) error {
	req = req.WithContext(ctx)
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return &RemoteError{Model: b.model, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{Model: b.model, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &RemoteError{Model: b.model, StatusCode: resp.StatusCode, Message: apiErrorMessage(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &RemoteError{Model: b.model, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

// apiErrorMessage extracts {"error":{"message":...}} or {"error":"..."} bodies.
func apiErrorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		msg = "empty error body"
	}
	return msg
}
