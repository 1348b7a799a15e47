package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"transcription-studio/internal/domain"
	"transcription-studio/internal/session"
)

// TestResolveModelDownloadPlanForModelFilePath ensures explicit model files are preserved.
func TestResolveModelDownloadPlanForModelFilePath(t *testing.T) {
	target := filepath.Join(t.TempDir(), "ggml-model.bin")

	plan, err := resolveModelDownloadPlan(target, "")
	if err != nil {
		t.Fatalf("resolve plan: %v", err)
	}
	if plan.targetFile != target || plan.settingsPath != target {
		t.Fatalf("plan = %+v, want %s for both", plan, target)
	}
}

// TestResolveModelDownloadPlanForDirectory ensures folder paths download the default model.
func TestResolveModelDownloadPlanForDirectory(t *testing.T) {
	modelDir := filepath.Join(t.TempDir(), "models")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir model dir: %v", err)
	}

	plan, err := resolveModelDownloadPlan(modelDir, "")
	if err != nil {
		t.Fatalf("resolve plan: %v", err)
	}
	if want := filepath.Join(modelDir, defaultWhisperModelFilename); plan.targetFile != want {
		t.Fatalf("targetFile = %s, want %s", plan.targetFile, want)
	}
	if plan.settingsPath != modelDir {
		t.Fatalf("settingsPath = %s, want %s", plan.settingsPath, modelDir)
	}
}

// TestResolveModelDownloadPlanRejectsNonModelFile ensures invalid file paths are rejected.
func TestResolveModelDownloadPlanRejectsNonModelFile(t *testing.T) {
	badFile := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(badFile, []byte("not a model"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := resolveModelDownloadPlan(badFile, ""); err == nil {
		t.Fatal("expected error for non-model file path")
	}
}

// TestInstallOrFixDataDirCreatesDirectory ensures the data dir fix creates missing directories.
func TestInstallOrFixDataDirCreatesDirectory(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "studio")

	fixed, changed, err := installOrFixDataDir(domain.Settings{DataDir: dataDir})
	if err != nil {
		t.Fatalf("fix data dir: %v", err)
	}
	if changed || fixed.DataDir != dataDir {
		t.Fatalf("fixed = %+v changed = %v", fixed, changed)
	}
	if _, err := os.Stat(dataDir); err != nil {
		t.Fatalf("stat data dir: %v", err)
	}
}

// TestCreateWhisperAliasFromCandidate writes a launcher for the first whisper build found.
func TestCreateWhisperAliasFromCandidate(t *testing.T) {
	binDir := t.TempDir()
	lookPath := func(name string) (string, error) {
		if name == "whisper-cli" {
			return "/opt/whisper/whisper-cli", nil
		}
		return "", errors.New("not found")
	}

	if err := createWhisperAlias(binDir, lookPath); err != nil {
		t.Fatalf("createWhisperAlias() error = %v", err)
	}

	entries, err := os.ReadDir(binDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("bin entries = %v, err = %v", entries, err)
	}
	data, err := os.ReadFile(filepath.Join(binDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read alias: %v", err)
	}
	if !strings.Contains(string(data), "/opt/whisper/whisper-cli") {
		t.Fatalf("alias = %q", data)
	}

	none := func(string) (string, error) { return "", errors.New("not found") }
	if err := createWhisperAlias(t.TempDir(), none); err == nil {
		t.Fatal("expected error when no whisper build is installed")
	}
}

// TestFixPersistenceFallsBackToFile checks a settings-only remediation is saved.
func TestFixPersistenceFallsBackToFile(t *testing.T) {
	services, store := newTestServices(t)

	report, err := services.Fix(context.Background(), "persistence")
	if err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	if store.settings.Persistence != session.BackendFile {
		t.Fatalf("persistence = %s, want file", store.settings.Persistence)
	}
	for _, item := range report.Items {
		if item.ID == "persistence" && item.Status != domain.DiagnosticStatusPass {
			t.Fatalf("persistence item = %+v, want pass", item)
		}
	}

	if _, err := services.Fix(context.Background(), "backend_openai"); err == nil {
		t.Fatal("expected error for unsupported item")
	}
}

// TestFixModelPathDownloadsDefaultModel checks the model fix downloads into the models folder.
func TestFixModelPathDownloadsDefaultModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ggml"))
	}))
	defer server.Close()

	services, store := newTestServices(t)
	services.modelBaseURL = server.URL
	services.settings.WhisperModelPath = ""

	if _, err := services.Fix(context.Background(), "model_path"); err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	modelsDir := filepath.Join(services.Settings().DataDir, "models")
	if store.settings.WhisperModelPath != modelsDir {
		t.Fatalf("model path = %s, want %s", store.settings.WhisperModelPath, modelsDir)
	}
	if _, err := os.Stat(filepath.Join(modelsDir, defaultWhisperModelFilename)); err != nil {
		t.Fatalf("stat model: %v", err)
	}
}
