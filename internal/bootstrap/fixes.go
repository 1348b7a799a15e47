package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"transcription-studio/internal/config"
	"transcription-studio/internal/domain"
	"transcription-studio/internal/session"
)

const (
	defaultWhisperModelFilename = "ggml-base.bin"
	modelDownloadTimeout        = 45 * time.Minute
)

// whisperCandidates are binaries a whisper.cpp build may install under.
var whisperCandidates = []string{"whisper-cli", "whisper", "whisper-cpp", "main"}

type modelDownloadPlan struct {
	targetFile   string
	settingsPath string
}

// Fix applies the remediation for one diagnostic item and returns the refreshed report.
func (s *Services) Fix(ctx context.Context, itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings := s.Settings()
	settingsChanged := false
	var fixErr error

	switch id {
	case "data_dir":
		settings, settingsChanged, fixErr = installOrFixDataDir(settings)
	case "models":
		settings.Models = append([]domain.Model(nil), domain.DefaultModels...)
		settingsChanged = true
	case "persistence":
		settings.Persistence = session.BackendFile
		settingsChanged = true
	case "model_path":
		settings, settingsChanged, fixErr = installOrFixModelPath(ctx, s.httpClient, s.modelURL(defaultWhisperModelFilename), settings)
	case "tool_whisper.cpp":
		fixErr = createWhisperAlias(localBinDir(settings.DataDir), exec.LookPath)
	case "tool_ffmpeg":
		fixErr = errors.New("ffmpeg must be installed with the system package manager")
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if _, saveErr := s.SaveSettings(settings); saveErr != nil {
			return s.RefreshDiagnostics(), fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := s.RefreshDiagnostics()
	if fixErr != nil {
		return report, fixErr
	}
	s.Logger.Info("diagnostic fixed", "item", id)
	return report, nil
}

// ensureLocalBinOnPATH prepends the data directory's bin folder so local tool aliases resolve.
func ensureLocalBinOnPATH(dataDir string) error {
	binDir := localBinDir(dataDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(dataDir string) string {
	return filepath.Join(dataDir, "bin")
}

func localModelsDir(dataDir string) string {
	return filepath.Join(dataDir, "models")
}

// createWhisperAlias exposes an installed whisper.cpp build under the name the pipeline runs.
func createWhisperAlias(binDir string, lookPath func(string) (string, error)) error {
	if _, err := lookPath("whisper.cpp"); err == nil {
		return nil
	}

	var sourcePath string
	for _, candidate := range whisperCandidates {
		if path, err := lookPath(candidate); err == nil {
			sourcePath = path
			break
		}
	}
	if sourcePath == "" {
		return fmt.Errorf("no compatible whisper executable found (tried: %s)", strings.Join(whisperCandidates, ", "))
	}
	return createWhisperAliasFromExecutable(binDir, sourcePath)
}

func createWhisperAliasFromExecutable(binDir, sourcePath string) error {
	if strings.TrimSpace(sourcePath) == "" {
		return fmt.Errorf("source executable path is empty")
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("create local bin directory: %w", err)
	}

	if goruntime.GOOS == "windows" {
		aliasPath := filepath.Join(binDir, "whisper.cpp.cmd")
		content := fmt.Sprintf("@echo off\r\n\"%s\" %%*\r\n", sourcePath)
		if err := os.WriteFile(aliasPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write whisper alias file: %w", err)
		}
		return nil
	}

	aliasPath := filepath.Join(binDir, "whisper.cpp")
	escaped := strings.ReplaceAll(sourcePath, "\"", "\\\"")
	content := fmt.Sprintf("#!/usr/bin/env sh\nexec \"%s\" \"$@\"\n", escaped)
	if err := os.WriteFile(aliasPath, []byte(content), 0o755); err != nil {
		return fmt.Errorf("write whisper alias script: %w", err)
	}
	return nil
}

func installOrFixDataDir(settings domain.Settings) (domain.Settings, bool, error) {
	dataDir := strings.TrimSpace(settings.DataDir)
	changed := false
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
		settings.DataDir = dataDir
		changed = true
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}
	return settings, changed, nil
}

func installOrFixModelPath(ctx context.Context, client *http.Client, sourceURL string, settings domain.Settings) (domain.Settings, bool, error) {
	plan, err := resolveModelDownloadPlan(settings.WhisperModelPath, settings.DataDir)
	if err != nil {
		return settings, false, err
	}

	if err := downloadURLToFile(ctx, client, plan.targetFile, sourceURL); err != nil {
		return settings, false, fmt.Errorf("download model: %w", err)
	}

	changed := strings.TrimSpace(settings.WhisperModelPath) != plan.settingsPath
	settings.WhisperModelPath = plan.settingsPath
	return settings, changed, nil
}

func resolveModelDownloadPlan(modelPath, dataDir string) (modelDownloadPlan, error) {
	trimmed := strings.TrimSpace(modelPath)
	if trimmed == "" {
		dir := localModelsDir(dataDir)
		return modelDownloadPlan{
			targetFile:   filepath.Join(dir, defaultWhisperModelFilename),
			settingsPath: dir,
		}, nil
	}

	info, err := os.Stat(trimmed)
	if err == nil {
		if info.IsDir() {
			return modelDownloadPlan{
				targetFile:   filepath.Join(trimmed, defaultWhisperModelFilename),
				settingsPath: trimmed,
			}, nil
		}
		if isModelFile(trimmed) {
			return modelDownloadPlan{targetFile: trimmed, settingsPath: trimmed}, nil
		}
		return modelDownloadPlan{}, fmt.Errorf("model path points to a non-model file: %s", trimmed)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return modelDownloadPlan{}, fmt.Errorf("check model path: %w", err)
	}

	if isModelFile(trimmed) {
		return modelDownloadPlan{targetFile: trimmed, settingsPath: trimmed}, nil
	}
	return modelDownloadPlan{
		targetFile:   filepath.Join(trimmed, defaultWhisperModelFilename),
		settingsPath: trimmed,
	}, nil
}

func isModelFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".bin" || ext == ".gguf"
}

// downloadURLToFile streams sourceURL into destinationPath through a temporary file.
func downloadURLToFile(ctx context.Context, client *http.Client, destinationPath, sourceURL string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, modelDownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "transcription-studio")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}
	return nil
}
