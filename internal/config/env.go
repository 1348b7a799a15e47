package config

import (
	"strconv"
	"strings"

	"transcription-studio/internal/domain"
)

// ApplyEnv overlays environment variables on settings. getenv is usually os.Getenv.
func ApplyEnv(cfg domain.Settings, getenv func(string) string) domain.Settings {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setString("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	setString("OPENAI_MODEL", &cfg.OpenAIModel)
	setString("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	setString("GEMINI_MODEL", &cfg.GeminiModel)
	setString("PHI4_ENDPOINT", &cfg.Phi4Endpoint)
	setString("PHI4_API_KEY", &cfg.Phi4APIKey)
	setString("WHISPER_MODEL_PATH", &cfg.WhisperModelPath)
	setString("STUDIO_DATA_DIR", &cfg.DataDir)
	setString("STUDIO_PERSISTENCE", &cfg.Persistence)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	setString("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	setString("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	setString("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	setString("MINIO_BUCKET", &cfg.MinioBucket)

	if v := strings.TrimSpace(getenv("REDIS_DB")); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = db
		}
	}
	if v := strings.TrimSpace(getenv("MINIO_USE_SSL")); v != "" {
		cfg.MinioUseSSL = strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(getenv("STUDIO_MODELS")); v != "" {
		cfg.Models = ParseModels(v)
	}
	return cfg
}

// ParseModels splits a comma-separated model list.
func ParseModels(raw string) []domain.Model {
	var models []domain.Model
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			models = append(models, domain.Model(part))
		}
	}
	return models
}

// Load reads the settings file at path and applies environment overrides.
func Load(path string, getenv func(string) string) (domain.Settings, error) {
	cfg, err := NewTOMLStore(path).Load()
	if err != nil {
		return domain.Settings{}, err
	}
	return ApplyEnv(cfg, getenv), nil
}
