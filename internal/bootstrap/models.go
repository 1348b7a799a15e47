package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"transcription-studio/internal/domain"
)

const whisperModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

var whisperModelCatalog = []domain.WhisperModelOption{
	{
		ID:          "tiny",
		Name:        "Tiny (Multilingual)",
		FileName:    "ggml-tiny.bin",
		SizeLabel:   "~75 MB",
		Description: "Fastest multilingual model.",
	},
	{
		ID:          "base",
		Name:        "Base (Multilingual)",
		FileName:    "ggml-base.bin",
		SizeLabel:   "~142 MB",
		Description: "Balanced speed and quality; keeps mixed-language speech.",
	},
	{
		ID:          "small",
		Name:        "Small (Multilingual)",
		FileName:    "ggml-small.bin",
		SizeLabel:   "~466 MB",
		Description: "Higher quality multilingual model.",
	},
	{
		ID:          "medium",
		Name:        "Medium (Multilingual)",
		FileName:    "ggml-medium.bin",
		SizeLabel:   "~1.5 GB",
		Description: "High quality multilingual model.",
	},
	{
		ID:          "large-v3-turbo",
		Name:        "Large v3 Turbo",
		FileName:    "ggml-large-v3-turbo.bin",
		SizeLabel:   "~1.6 GB",
		Description: "Near large-v3 quality at a fraction of the runtime.",
	},
}

// WhisperModels lists the downloadable ggml models for whisper-local, marking
// those already on disk and the one the settings point at.
func (s *Services) WhisperModels() []domain.WhisperModelOption {
	models := make([]domain.WhisperModelOption, len(whisperModelCatalog))
	copy(models, whisperModelCatalog)
	for i := range models {
		models[i].URL = s.modelURL(models[i].FileName)
	}

	settings := s.Settings()
	markDownloadedModels(models, resolveKnownModelDirs(settings))
	for i := range models {
		models[i].Selected = models[i].LocalPath != "" && filepath.Clean(models[i].LocalPath) == filepath.Clean(settings.WhisperModelPath)
	}
	return models
}

// DownloadWhisperModel fetches one catalog model and points the whisper-local backend at it.
func (s *Services) DownloadWhisperModel(ctx context.Context, modelID string) (domain.Settings, error) {
	id := strings.TrimSpace(modelID)
	if id == "" {
		return domain.Settings{}, fmt.Errorf("model id is required")
	}
	model, found := getWhisperModelByID(id)
	if !found {
		return domain.Settings{}, fmt.Errorf("unknown model id: %s", id)
	}

	settings := s.Settings()
	downloadDir, err := resolveModelDownloadDirectory(settings.WhisperModelPath, settings.DataDir)
	if err != nil {
		return domain.Settings{}, err
	}

	targetPath := filepath.Join(downloadDir, model.FileName)
	s.Logger.Info("downloading whisper model", "model", model.ID, "path", targetPath)
	if err := downloadURLToFile(ctx, s.httpClient, targetPath, s.modelURL(model.FileName)); err != nil {
		return domain.Settings{}, fmt.Errorf("download model %s: %w", model.Name, err)
	}

	settings.WhisperModelPath = targetPath
	return s.SaveSettings(settings)
}

func (s *Services) modelURL(fileName string) string {
	return strings.TrimRight(s.modelBaseURL, "/") + "/" + fileName
}

func getWhisperModelByID(id string) (domain.WhisperModelOption, bool) {
	for _, model := range whisperModelCatalog {
		if model.ID == id {
			return model, true
		}
	}
	return domain.WhisperModelOption{}, false
}

func resolveModelDownloadDirectory(modelPath, dataDir string) (string, error) {
	trimmed := strings.TrimSpace(modelPath)
	if trimmed == "" {
		return localModelsDir(dataDir), nil
	}

	info, err := os.Stat(trimmed)
	if err == nil {
		if info.IsDir() {
			return trimmed, nil
		}
		if isModelFile(trimmed) {
			return filepath.Dir(trimmed), nil
		}
		return "", fmt.Errorf("model path points to non-model file: %s", trimmed)
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("check model path: %w", err)
	}

	if isModelFile(trimmed) {
		return filepath.Dir(trimmed), nil
	}
	return trimmed, nil
}

func resolveKnownModelDirs(settings domain.Settings) []string {
	seen := map[string]struct{}{}
	var dirs []string
	add := func(path string) {
		p := strings.TrimSpace(path)
		if p == "" {
			return
		}
		clean := filepath.Clean(p)
		if _, ok := seen[clean]; ok || clean == "." {
			return
		}
		seen[clean] = struct{}{}
		dirs = append(dirs, clean)
	}

	if modelPath := strings.TrimSpace(settings.WhisperModelPath); modelPath != "" {
		if info, err := os.Stat(modelPath); err == nil && info.IsDir() {
			add(modelPath)
		} else if isModelFile(modelPath) {
			add(filepath.Dir(modelPath))
		} else {
			add(modelPath)
		}
	}
	if settings.DataDir != "" {
		add(localModelsDir(settings.DataDir))
	}
	return dirs
}

func markDownloadedModels(models []domain.WhisperModelOption, modelDirs []string) {
	for i := range models {
		for _, dir := range modelDirs {
			candidate := filepath.Join(dir, models[i].FileName)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			models[i].Downloaded = true
			models[i].LocalPath = candidate
			break
		}
	}
}
