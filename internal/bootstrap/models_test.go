package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"transcription-studio/internal/domain"
)

// TestGetWhisperModelByID verifies known model lookup.
func TestGetWhisperModelByID(t *testing.T) {
	model, found := getWhisperModelByID("base")
	if !found {
		t.Fatal("expected base model to exist")
	}
	if model.FileName != "ggml-base.bin" {
		t.Fatalf("filename = %s, want ggml-base.bin", model.FileName)
	}
	if _, found := getWhisperModelByID("huge"); found {
		t.Fatal("expected unknown id to be missing")
	}
}

// TestResolveModelDownloadDirectoryForEmptyPath falls back to the data directory.
func TestResolveModelDownloadDirectoryForEmptyPath(t *testing.T) {
	dataDir := t.TempDir()
	dir, err := resolveModelDownloadDirectory("", dataDir)
	if err != nil {
		t.Fatalf("resolve dir: %v", err)
	}
	if dir != filepath.Join(dataDir, "models") {
		t.Fatalf("dir = %s, want %s", dir, filepath.Join(dataDir, "models"))
	}
}

// TestResolveModelDownloadDirectoryForModelFile uses model file parent directory.
func TestResolveModelDownloadDirectoryForModelFile(t *testing.T) {
	root := t.TempDir()
	dir, err := resolveModelDownloadDirectory(filepath.Join(root, "ggml-small.bin"), "")
	if err != nil {
		t.Fatalf("resolve dir: %v", err)
	}
	if dir != root {
		t.Fatalf("dir = %s, want %s", dir, root)
	}
}

// TestResolveModelDownloadDirectoryRejectsExistingNonModelFile rejects invalid file path.
func TestResolveModelDownloadDirectoryRejectsExistingNonModelFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(file, []byte("not model"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := resolveModelDownloadDirectory(file, ""); err == nil {
		t.Fatal("expected error for existing non-model file path")
	}
}

// TestMarkDownloadedModels marks catalog models when file exists in known dirs.
func TestMarkDownloadedModels(t *testing.T) {
	root := t.TempDir()
	modelPath := filepath.Join(root, "ggml-base.bin")
	if err := os.WriteFile(modelPath, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}

	models := []domain.WhisperModelOption{
		{ID: "base", FileName: "ggml-base.bin"},
		{ID: "small", FileName: "ggml-small.bin"},
	}
	markDownloadedModels(models, []string{root})

	if !models[0].Downloaded || models[0].LocalPath != modelPath {
		t.Fatalf("base = %+v, want downloaded at %s", models[0], modelPath)
	}
	if models[1].Downloaded {
		t.Fatal("expected small to remain not downloaded")
	}
}

// TestDownloadWhisperModelSelectsFile downloads from the catalog server and saves the path.
func TestDownloadWhisperModelSelectsFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ggml-tiny.bin" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ggml"))
	}))
	defer server.Close()

	services, store := newTestServices(t)
	services.modelBaseURL = server.URL

	settings, err := services.DownloadWhisperModel(context.Background(), "tiny")
	if err != nil {
		t.Fatalf("DownloadWhisperModel() error = %v", err)
	}
	want := filepath.Join(settings.DataDir, "models", "ggml-tiny.bin")
	if settings.WhisperModelPath != want {
		t.Fatalf("model path = %s, want %s", settings.WhisperModelPath, want)
	}
	if store.settings.WhisperModelPath != want {
		t.Fatalf("stored model path = %s, want %s", store.settings.WhisperModelPath, want)
	}

	models := services.WhisperModels()
	for _, model := range models {
		if model.ID == "tiny" && (!model.Downloaded || !model.Selected) {
			t.Fatalf("tiny = %+v, want downloaded and selected", model)
		}
		if model.ID == "base" && model.Downloaded {
			t.Fatal("expected base to remain not downloaded")
		}
	}

	if _, err := services.DownloadWhisperModel(context.Background(), "small"); err == nil {
		t.Fatal("expected error when the server has no such file")
	}
}
