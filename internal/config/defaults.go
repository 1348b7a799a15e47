package config

import (
	"os"
	"path/filepath"

	"transcription-studio/internal/domain"
)

const appDirName = ".transcription-studio"

// DefaultDataDir is where snapshots, records and settings live by default.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, appDirName)
}

// DefaultPath is the settings file location unless STUDIO_CONFIG overrides it.
func DefaultPath() string {
	if path := os.Getenv("STUDIO_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(DefaultDataDir(), "settings.toml")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	dataDir := DefaultDataDir()
	return domain.Settings{
		DataDir:          dataDir,
		Models:           append([]domain.Model(nil), domain.DefaultModels...),
		PreserveEnglish:  true,
		OutputFormat:     domain.OutputFormatVTT,
		Persistence:      "file",
		WhisperModelPath: filepath.Join(dataDir, "models"),
		Language:         "auto",
		RedisAddr:        "localhost:6379",
		MinioBucket:      "transcription-studio",
	}
}

// RecordsPath is the sqlite database holding job records.
func RecordsPath(settings domain.Settings) string {
	return filepath.Join(settings.DataDir, "records.db")
}
