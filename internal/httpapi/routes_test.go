package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"transcription-studio/internal/bootstrap"
	"transcription-studio/internal/config"
	"transcription-studio/internal/domain"
	"transcription-studio/internal/jobs"
	"transcription-studio/internal/orchestrator"
	"transcription-studio/internal/transcribe"
)

type fakeBackend struct {
	model domain.Model
	err   error
}

func (f *fakeBackend) Model() domain.Model { return f.model }

func (f *fakeBackend) Transcribe(context.Context, transcribe.Request) (transcribe.Response, error) {
	if f.err != nil {
		return transcribe.Response{}, f.err
	}
	return transcribe.Response{Text: "Good morning. Let us begin."}, nil
}

func setupTestServer(t *testing.T, backends ...transcribe.Transcriber) (*gin.Engine, *bootstrap.Services) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dataDir := t.TempDir()
	env := map[string]string{
		"STUDIO_DATA_DIR":    dataDir,
		"STUDIO_PERSISTENCE": "memory",
		"STUDIO_MODELS":      "openai,gemini",
	}
	services, err := bootstrap.NewServices(context.Background(), bootstrap.Options{
		Store:  config.NewTOMLStore(filepath.Join(dataDir, "settings.toml")),
		Getenv: func(key string) string { return env[key] },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	t.Cleanup(func() { _ = services.Close() })
	for _, backend := range backends {
		services.Backends.Register(backend)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	registerRoutes(engine, NewAPI(services))
	return engine, services
}

func multipartRequest(t *testing.T, target, field string, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	for key, value := range fields {
		_ = writer.WriteField(key, value)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	engine, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if ok, exists := body["ok"].(bool); !exists || !ok {
		t.Fatalf("expected ok=true, body=%v", body)
	}
}

func TestGenerateMissingFile(t *testing.T) {
	engine, _ := setupTestServer(t)

	req := multipartRequest(t, "/api/generate", "file", nil, map[string]string{"models": "openai"})
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGenerateUnknownModelIsValidationError(t *testing.T) {
	engine, _ := setupTestServer(t)

	req := multipartRequest(t, "/api/generate", "file", map[string]string{"clip.wav": "RIFF"}, map[string]string{"models": "nope"})
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestGenerateAndResolveSession(t *testing.T) {
	engine, _ := setupTestServer(t,
		&fakeBackend{model: domain.ModelOpenAI},
		&fakeBackend{model: domain.ModelGemini, err: errors.New("rate limited")},
	)

	req := multipartRequest(t, "/api/generate", "file", map[string]string{"clip.wav": "RIFF"}, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var result orchestrator.Result
	decode(t, rec, &result)
	if len(result.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(result.Jobs))
	}
	if result.Jobs[domain.ModelGemini].Error != "rate limited" {
		t.Fatalf("gemini = %+v", result.Jobs[domain.ModelGemini])
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+result.Session.ID+"/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve expected 200, got %d", rec.Code)
	}
	var res struct {
		Jobs     []domain.TranscriptionJob `json:"jobs"`
		Strategy string                    `json:"strategy"`
		Degraded bool                      `json:"degraded"`
	}
	decode(t, rec, &res)
	if len(res.Jobs) != 2 || res.Strategy != "transcriptions:session" || res.Degraded {
		t.Fatalf("resolution = %+v", res)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recovery", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("recovery expected 200 after partial failure, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/recovery", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("discard expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recovery", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("recovery expected 404 after discard, got %d", rec.Code)
	}
}

func TestGenerateAllFailedReturnsResult(t *testing.T) {
	engine, _ := setupTestServer(t,
		&fakeBackend{model: domain.ModelOpenAI, err: errors.New("down")},
		&fakeBackend{model: domain.ModelGemini, err: errors.New("down")},
	)

	req := multipartRequest(t, "/api/generate", "file", map[string]string{"clip.wav": "RIFF"}, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body struct {
		Error  string              `json:"error"`
		Result orchestrator.Result `json:"result"`
	}
	decode(t, rec, &body)
	if len(body.Result.Jobs) != 2 {
		t.Fatalf("result jobs = %d, want 2", len(body.Result.Jobs))
	}
}

func TestResolveInvalidTimestampKey(t *testing.T) {
	engine, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/2025-13-99T99:00:00Z/jobs", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/unknown-session/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty resolution, got %d", rec.Code)
	}
}

func TestExportJob(t *testing.T) {
	engine, _ := setupTestServer(t, &fakeBackend{model: domain.ModelOpenAI}, &fakeBackend{model: domain.ModelGemini})

	req := multipartRequest(t, "/api/generate", "file", map[string]string{"clip.wav": "RIFF"}, map[string]string{"models": "openai"})
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	var result orchestrator.Result
	decode(t, rec, &result)
	jobID := result.Jobs[domain.ModelOpenAI].ID

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/export?format=srt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), jobID+".srt") {
		t.Fatalf("disposition = %s", rec.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rec.Body.String(), "00:00:00,000 --> 00:00:05,000") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing/export", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/export?format=docx", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueueRoutes(t *testing.T) {
	engine, _ := setupTestServer(t, &fakeBackend{model: domain.ModelOpenAI}, &fakeBackend{model: domain.ModelGemini})

	req := multipartRequest(t, "/api/queue", "files", map[string]string{"a.wav": "AAAA"}, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("enqueue expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/queue/next", nil))
	var body struct {
		Started bool `json:"started"`
		State   struct {
			Cursor    int `json:"cursor"`
			Remaining int `json:"remaining"`
		} `json:"state"`
	}
	decode(t, rec, &body)
	if !body.Started || body.State.Cursor != 1 || body.State.Remaining != 0 {
		t.Fatalf("process next = %+v", body)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/queue/next", nil))
	decode(t, rec, &body)
	if body.Started {
		t.Fatal("expected exhausted queue to start nothing")
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/queue", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset expected 200, got %d", rec.Code)
	}
}

func TestEventStreamReplaysAndStreams(t *testing.T) {
	engine, services := setupTestServer(t)
	server := httptest.NewServer(engine)
	defer server.Close()

	published := services.Events.Publish(jobs.Event{Type: jobs.EventTypeQueue, Message: "before connect"})

	url := fmt.Sprintf("ws%s/api/events/ws?since=%d", strings.TrimPrefix(server.URL, "http"), published.Seq-1)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first jobs.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if first.Message != "before connect" {
		t.Fatalf("first = %+v", first)
	}

	services.Events.Publish(jobs.Event{Type: jobs.EventTypeQueue, Message: "after connect"})
	var second jobs.Event
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read live: %v", err)
	}
	if second.Message != "after connect" || second.Seq <= first.Seq {
		t.Fatalf("second = %+v", second)
	}
}
