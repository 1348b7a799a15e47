package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"transcription-studio/internal/bootstrap"
	"transcription-studio/internal/config"
	"transcription-studio/internal/domain"
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
	return transcribe.Response{Text: "First line. Second line."}, nil
}

func newTestDeps(t *testing.T, backends ...transcribe.Transcriber) *Dependencies {
	t.Helper()
	dataDir := t.TempDir()
	env := map[string]string{
		"STUDIO_DATA_DIR":    dataDir,
		"STUDIO_PERSISTENCE": "file",
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
	return &Dependencies{Services: services}
}

func execute(t *testing.T, deps *Dependencies, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd(deps)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

// TestRunRetryAndRecover walks a partial failure through retry and recovery.
func TestRunRetryAndRecover(t *testing.T) {
	gemini := &fakeBackend{model: domain.ModelGemini, err: errors.New("quota exceeded")}
	deps := newTestDeps(t, &fakeBackend{model: domain.ModelOpenAI}, gemini)
	audio := writeAudio(t, "talk.wav")

	out, err := execute(t, deps, "run", audio)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "quota exceeded") || !strings.Contains(out, "studioctl retry") {
		t.Fatalf("run output = %s", out)
	}

	out, err = execute(t, deps, "recover")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !strings.Contains(out, "talk.wav") {
		t.Fatalf("recover output = %s", out)
	}

	gemini.err = nil
	out, err = execute(t, deps, "retry", "gemini", audio)
	if err != nil {
		t.Fatalf("retry: %v\n%s", err, out)
	}
	if !strings.Contains(out, "attempt 2") {
		t.Fatalf("retry output = %s", out)
	}
}

// TestRunAllFailedReturnsError checks the exit status when nothing completes.
func TestRunAllFailedReturnsError(t *testing.T) {
	deps := newTestDeps(t,
		&fakeBackend{model: domain.ModelOpenAI, err: errors.New("down")},
		&fakeBackend{model: domain.ModelGemini, err: errors.New("down")},
	)

	out, err := execute(t, deps, "run", writeAudio(t, "talk.wav"), "--models", "openai,gemini")
	if err == nil {
		t.Fatalf("expected error, output = %s", out)
	}
	if strings.Count(out, "down") != 2 {
		t.Fatalf("expected both failures listed, output = %s", out)
	}
}

// TestQueueProcessesEveryFile checks the queue command drains its input.
func TestQueueProcessesEveryFile(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{model: domain.ModelOpenAI}, &fakeBackend{model: domain.ModelGemini})

	out, err := execute(t, deps, "queue", writeAudio(t, "a.wav"), writeAudio(t, "b.wav"), writeAudio(t, "c.wav"), "--skip", "1")
	if err != nil {
		t.Fatalf("queue: %v\n%s", err, out)
	}
	if strings.Contains(out, "Processing a.wav") {
		t.Fatalf("skipped file was processed: %s", out)
	}
	if !strings.Contains(out, "Processing b.wav") || !strings.Contains(out, "Processing c.wav") {
		t.Fatalf("queue output = %s", out)
	}
	if !strings.Contains(out, "0 of 3 remaining") {
		t.Fatalf("queue summary missing: %s", out)
	}
}

// TestResolveAndExport resolves a finished session and exports one job to stdout.
func TestResolveAndExport(t *testing.T) {
	deps := newTestDeps(t, &fakeBackend{model: domain.ModelOpenAI}, &fakeBackend{model: domain.ModelGemini})

	result, err := deps.Services.Generate(context.Background(), bootstrap.NewAudio("talk.wav", "", []byte("RIFF")), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	out, err := execute(t, deps, "resolve", result.Session.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, "2 job(s) via transcriptions:session") {
		t.Fatalf("resolve output = %s", out)
	}

	out, err = execute(t, deps, "resolve", time.Now().UTC().Add(-time.Hour).Format(time.RFC3339))
	if err != nil {
		t.Fatalf("resolve timestamp: %v", err)
	}
	if !strings.Contains(out, "most recent jobs") {
		t.Fatalf("expected degraded fallback, output = %s", out)
	}

	jobID := result.Jobs[domain.ModelOpenAI].ID
	out, err = execute(t, deps, "export", jobID, "--format", "text", "--output", "-")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "First line.") || !strings.Contains(out, "Second line.") {
		t.Fatalf("export output = %s", out)
	}

	out, err = execute(t, deps, "export", jobID, "--format", "srt")
	if err != nil {
		t.Fatalf("export file: %v", err)
	}
	path := filepath.Join(deps.Services.Settings().DataDir, "exports", jobID+".srt")
	if !strings.Contains(out, path) {
		t.Fatalf("export output = %s, want path %s", out, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat export: %v", err)
	}
}

// TestArchiveRequiresCutoff checks flag validation and a successful archive.
func TestArchiveRequiresCutoff(t *testing.T) {
	deps := newTestDeps(t)

	if _, err := execute(t, deps, "archive"); err == nil {
		t.Fatal("expected error without cutoff")
	}
	if _, err := execute(t, deps, "archive", "--before", "yesterday"); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
	out, err := execute(t, deps, "archive", "--older-than", "720h")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.Contains(out, "Archived 0 record(s)") {
		t.Fatalf("archive output = %s", out)
	}
}

// TestDoctorFixPersistence checks report printing and a settings-only fix.
func TestDoctorFixPersistence(t *testing.T) {
	deps := newTestDeps(t)

	out, err := execute(t, deps, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	if !strings.Contains(out, "prerequisites") {
		t.Fatalf("doctor output = %s", out)
	}

	if _, err := execute(t, deps, "doctor", "--fix", "persistence"); err != nil {
		t.Fatalf("doctor --fix: %v", err)
	}
	if _, err := execute(t, deps, "doctor", "--fix", "nonsense"); err == nil {
		t.Fatal("expected error for unknown check id")
	}
}
