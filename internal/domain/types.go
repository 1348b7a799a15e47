package domain

import (
	"fmt"
	"time"
)

// JobStatus tracks the lifecycle of one model's transcription attempt.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Model identifies one speech-to-text backend.
type Model string

const (
	ModelOpenAI       Model = "openai"
	ModelGemini       Model = "gemini"
	ModelPhi4         Model = "phi4"
	ModelWhisperLocal Model = "whisper-local"
)

// DefaultModels is the selection offered on first launch.
var DefaultModels = []Model{ModelOpenAI, ModelGemini, ModelPhi4}

// Segment is one timed caption cue, in seconds from the start of the audio.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"startSeconds"`
	End   float64 `json:"endSeconds"`
}

// Caption is the normalized segment-timed payload of a completed job.
type Caption struct {
	Segments []Segment `json:"segments"`
}

// TranscriptionJob is one unit of work for one model against one audio asset.
type TranscriptionJob struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"sessionKey"`
	Model      Model     `json:"model"`
	Status     JobStatus `json:"status"`
	Prompt     string    `json:"prompt"`
	Result     *Caption  `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AudioAsset is a concrete audio payload handed to the orchestrator.
type AudioAsset struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}

// Fingerprint identifies the asset for display. It is not a content hash.
func (a AudioAsset) Fingerprint() string {
	return fmt.Sprintf("%s:%d", a.Name, a.Size)
}

// Session aggregates every job spawned by one generate action.
type Session struct {
	ID               string                     `json:"id"`
	AudioFingerprint string                     `json:"audioFingerprint"`
	AudioName        string                     `json:"audioName"`
	SelectedModels   []Model                    `json:"selectedModels"`
	Prompt           string                     `json:"prompt"`
	JobsByModel      map[Model]TranscriptionJob `json:"jobsByModel"`
	StartedAt        time.Time                  `json:"startedAt"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
}

// AllTerminal reports whether every selected model has a settled job.
func (s Session) AllTerminal() bool {
	for _, model := range s.SelectedModels {
		job, ok := s.JobsByModel[model]
		if !ok || !job.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Succeeded returns the number of completed jobs.
func (s Session) Succeeded() int {
	count := 0
	for _, job := range s.JobsByModel {
		if job.Status == JobStatusCompleted {
			count++
		}
	}
	return count
}

// Incomplete lists models whose jobs were still pending or processing.
func (s Session) Incomplete() []Model {
	var out []Model
	for _, model := range s.SelectedModels {
		job, ok := s.JobsByModel[model]
		if !ok || !job.Status.IsTerminal() {
			out = append(out, model)
		}
	}
	return out
}

// Clone returns a copy whose job map can be mutated independently.
func (s Session) Clone() Session {
	out := s
	out.SelectedModels = append([]Model(nil), s.SelectedModels...)
	out.JobsByModel = make(map[Model]TranscriptionJob, len(s.JobsByModel))
	for model, job := range s.JobsByModel {
		out.JobsByModel[model] = job
	}
	return out
}

// OutputFormat selects what the prompt asks the backends to return.
type OutputFormat string

const (
	OutputFormatVTT   OutputFormat = "vtt"
	OutputFormatPlain OutputFormat = "plain"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	DataDir         string       `json:"dataDir" toml:"data_dir"`
	Models          []Model      `json:"models" toml:"models"`
	PreserveEnglish bool         `json:"preserveEnglish" toml:"preserve_english"`
	OutputFormat    OutputFormat `json:"outputFormat" toml:"output_format"`
	Persistence     string       `json:"persistence" toml:"persistence"`

	OpenAIAPIKey string `json:"-" toml:"openai_api_key"`
	OpenAIModel  string `json:"openaiModel" toml:"openai_model"`
	GeminiAPIKey string `json:"-" toml:"gemini_api_key"`
	GeminiModel  string `json:"geminiModel" toml:"gemini_model"`
	Phi4Endpoint string `json:"phi4Endpoint" toml:"phi4_endpoint"`
	Phi4APIKey   string `json:"-" toml:"phi4_api_key"`

	WhisperModelPath string `json:"whisperModelPath" toml:"whisper_model_path"`
	Language         string `json:"language" toml:"language"`

	RedisAddr      string `json:"redisAddr" toml:"redis_addr"`
	RedisPassword  string `json:"-" toml:"redis_password"`
	RedisDB        int    `json:"redisDb" toml:"redis_db"`
	MinioEndpoint  string `json:"minioEndpoint" toml:"minio_endpoint"`
	MinioAccessKey string `json:"-" toml:"minio_access_key"`
	MinioSecretKey string `json:"-" toml:"minio_secret_key"`
	MinioBucket    string `json:"minioBucket" toml:"minio_bucket"`
	MinioUseSSL    bool   `json:"minioUseSsl" toml:"minio_use_ssl"`
}
