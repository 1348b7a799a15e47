package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"transcription-studio/internal/domain"
)

// Checker validates backend credentials, local tools and the data directory.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes the checks relevant to the selected models and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{c.checkDataDir(settings.DataDir)}
	if len(settings.Models) == 0 {
		items = append(items, domain.DiagnosticItem{
			ID:      "models",
			Name:    "Models",
			Status:  domain.DiagnosticStatusFail,
			Message: "No models selected.",
			Hint:    "Select at least one transcription model in settings.",
		})
	}

	for _, model := range lo.Uniq(settings.Models) {
		switch model {
		case domain.ModelOpenAI:
			items = append(items, checkCredential(model, "OpenAI API key", settings.OpenAIAPIKey, "OPENAI_API_KEY"))
		case domain.ModelGemini:
			items = append(items, checkCredential(model, "Gemini API key", settings.GeminiAPIKey, "GEMINI_API_KEY"))
		case domain.ModelPhi4:
			items = append(items, checkCredential(model, "Phi-4 endpoint", settings.Phi4Endpoint, "PHI4_ENDPOINT"))
		case domain.ModelWhisperLocal:
			items = append(items,
				c.checkTool("ffmpeg"),
				c.checkTool("whisper.cpp"),
				c.checkModelPath(settings.WhisperModelPath),
			)
		default:
			items = append(items, domain.DiagnosticItem{
				ID:      "model_" + string(model),
				Name:    string(model),
				Status:  domain.DiagnosticStatusFail,
				Message: fmt.Sprintf("Unknown model: %s", model),
				Hint:    "Remove it from the model selection.",
			})
		}
	}
	items = append(items, checkPersistence(settings))

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: lo.SomeBy(items, func(item domain.DiagnosticItem) bool {
			return item.Status == domain.DiagnosticStatusFail
		}),
		Items: items,
	}
}

// checkCredential verifies a backend has the setting it needs to be called.
func checkCredential(model domain.Model, name, value, envKey string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "backend_" + string(model),
		Name: name,
	}
	if strings.TrimSpace(value) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is not configured.", name)
		item.Hint = fmt.Sprintf("Set %s in the environment or the settings file, or deselect %s.", envKey, model)
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%s is configured.", name)
	return item
}

// checkPersistence flags snapshot backends that do not survive a restart.
func checkPersistence(settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:     "persistence",
		Name:   "Session persistence",
		Status: domain.DiagnosticStatusPass,
	}
	backend := strings.ToLower(strings.TrimSpace(settings.Persistence))
	switch backend {
	case "", "file":
		item.Message = "Snapshots are written to the data directory."
	case "redis":
		item.Message = fmt.Sprintf("Snapshots are written to redis at %s.", settings.RedisAddr)
	case "minio":
		item.Message = fmt.Sprintf("Snapshots are written to bucket %s.", settings.MinioBucket)
	case "memory":
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Snapshots are kept in memory only."
		item.Hint = "Interrupted sessions cannot be recovered after a restart."
	default:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Unknown persistence backend: %s", settings.Persistence)
		item.Hint = "Use file, redis, minio or memory."
	}
	return item
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH before using the local whisper model.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkModelPath validates configured whisper model file or model directory.
func (c *Checker) checkModelPath(modelPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "model_path",
		Name: "Whisper model path",
	}

	if strings.TrimSpace(modelPath) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Model path is empty."
		item.Hint = "Set a valid model file path or a directory containing whisper models."
		return item
	}

	info, err := c.stat(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Model path does not exist: %s", modelPath)
		} else {
			item.Message = fmt.Sprintf("Cannot access model path: %s", modelPath)
		}
		item.Hint = "Download a whisper.cpp model and configure the path in settings."
		return item
	}

	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Model file found: %s", modelPath)
		return item
	}

	entries, err := c.readDir(modelPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read model directory: %s", modelPath)
		item.Hint = "Check permissions for the model directory."
		return item
	}

	hasModel := lo.SomeBy(entries, func(entry os.DirEntry) bool {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		return !entry.IsDir() && (ext == ".bin" || ext == ".gguf")
	})
	if hasModel {
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Model directory is valid: %s", modelPath)
		return item
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No model files found in directory: %s", modelPath)
	item.Hint = "Place a .bin or .gguf model file in this directory or point to a model file directly."
	return item
}

// checkDataDir validates that snapshots and records can be written.
func (c *Checker) checkDataDir(dataDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "data_dir",
		Name: "Data directory",
	}

	if strings.TrimSpace(dataDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Data directory is empty."
		item.Hint = "Set a data directory where session snapshots and job records can be written."
		return item
	}

	if err := c.mkdirAll(dataDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create data directory: %s", dataDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dataDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Data directory is not writable: %s", dataDir)
		item.Hint = "Choose a writable directory for session data."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dataDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}
