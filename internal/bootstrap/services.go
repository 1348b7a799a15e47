package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"transcription-studio/internal/captions"
	"transcription-studio/internal/config"
	"transcription-studio/internal/diagnostics"
	"transcription-studio/internal/domain"
	"transcription-studio/internal/jobs"
	"transcription-studio/internal/orchestrator"
	"transcription-studio/internal/queue"
	"transcription-studio/internal/records"
	"transcription-studio/internal/resolver"
	"transcription-studio/internal/session"
	"transcription-studio/internal/transcribe"
)

const (
	eventHistory      = 1000
	backendTimeout    = 10 * time.Minute
	exportDirName     = "exports"
	defaultAudioType  = "application/octet-stream"
	recoveryCheckWait = 5 * time.Second
)

// Options configures NewServices. Zero values fall back to the real environment.
type Options struct {
	Store      config.Store
	Getenv     func(string) string
	Logger     *slog.Logger
	HTTPClient *http.Client
	Checker    *diagnostics.Checker
}

// Services wires settings, backends, persistence, records and the orchestrator
// into one graph shared by the desktop shell, the HTTP server and the CLI.
type Services struct {
	Store        config.Store
	Logger       *slog.Logger
	Events       *jobs.EventBus
	Backends     *transcribe.Registry
	Persistence  *session.Persistence
	Records      *records.Store
	Resolver     *resolver.Resolver
	Orchestrator *orchestrator.Orchestrator
	Queue        *queue.Controller

	blobs        session.BlobStore
	checker      *diagnostics.Checker
	httpClient   *http.Client
	modelBaseURL string

	mu          sync.RWMutex
	settings    domain.Settings
	diagnostics domain.DiagnosticReport
}

// NewServices loads settings and builds every component from them.
func NewServices(ctx context.Context, opts Options) (*Services, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := opts.Store
	if store == nil {
		store = config.NewTOMLStore(config.DefaultPath())
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: backendTimeout}
	}
	checker := opts.Checker
	if checker == nil {
		checker = diagnostics.NewChecker()
	}

	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(config.ApplyEnv(settings, getenv))

	if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := ensureLocalBinOnPATH(settings.DataDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	blobs, err := session.Open(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	recordStore, err := records.Open(config.RecordsPath(settings), logger)
	if err != nil {
		closeBlobs(blobs)
		return nil, fmt.Errorf("open records: %w", err)
	}

	s := &Services{
		Store:        store,
		Logger:       logger,
		Events:       jobs.NewEventBus(eventHistory),
		Backends:     transcribe.NewRegistry(),
		Persistence:  session.NewPersistence(blobs, logger),
		Records:      recordStore,
		Resolver:     resolver.New(recordStore.Table(), recordStore.View(), logger),
		blobs:        blobs,
		checker:      checker,
		httpClient:   client,
		modelBaseURL: whisperModelBaseURL,
		settings:     settings,
	}
	s.registerBackends(settings)

	s.Orchestrator = orchestrator.New(orchestrator.Options{
		Backends:    s.Backends,
		Persistence: s.Persistence,
		Recorder:    recordStore,
		Events:      s.Events,
		Logger:      logger,
	})
	s.Queue = queue.New(queue.Options{
		Runner:  s.Orchestrator,
		Request: s.Request,
		OnReset: s.Orchestrator.ClearSelection,
		Events:  s.Events,
		Logger:  logger,
	})
	s.diagnostics = checker.Run(settings)

	logger.Info("services ready",
		"data_dir", settings.DataDir,
		"persistence", settings.Persistence,
		"models", settings.Models,
	)
	return s, nil
}

// Close releases the records database and the session store connection.
func (s *Services) Close() error {
	closeBlobs(s.blobs)
	return s.Records.Close()
}

// Settings returns the active settings.
func (s *Services) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SaveSettings normalizes and persists settings, then rebuilds backends and diagnostics.
// Secrets left empty keep their current value. A persistence backend change applies on restart.
func (s *Services) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	current := s.Settings()
	normalized := normalizeSettings(mergeSecrets(settings, current))
	if err := s.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if normalized.Persistence != current.Persistence || normalized.DataDir != current.DataDir {
		s.Logger.Warn("storage settings changed; restart to apply",
			"persistence", normalized.Persistence,
			"data_dir", normalized.DataDir,
		)
	}
	s.applySettings(normalized)
	return normalized, nil
}

// Diagnostics returns the latest cached report.
func (s *Services) Diagnostics() domain.DiagnosticReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diagnostics
}

// RefreshDiagnostics reruns every check against the active settings.
func (s *Services) RefreshDiagnostics() domain.DiagnosticReport {
	settings := s.Settings()
	report := s.checker.Run(settings)
	s.mu.Lock()
	s.diagnostics = report
	s.mu.Unlock()
	return report
}

// Request returns the prompt and model selection used for new runs.
func (s *Services) Request() (string, []domain.Model) {
	settings := s.Settings()
	return transcribe.BuildPrompt(settings.PreserveEnglish, settings.OutputFormat), append([]domain.Model(nil), settings.Models...)
}

// Generate runs every model on audio. An empty model list uses the configured selection.
func (s *Services) Generate(ctx context.Context, audio domain.AudioAsset, models []domain.Model) (orchestrator.Result, error) {
	prompt, selected := s.Request()
	if len(models) == 0 {
		models = selected
	}
	return s.Orchestrator.Run(ctx, audio, prompt, models)
}

// Retry resubmits one model of the current session.
func (s *Services) Retry(ctx context.Context, audio domain.AudioAsset, model domain.Model) (domain.TranscriptionJob, error) {
	return s.Orchestrator.Retry(ctx, audio, model)
}

// PendingRecovery returns the persisted snapshot of an interrupted session, if any.
// The snapshot is never restored without an explicit RecoverSession call.
func (s *Services) PendingRecovery(ctx context.Context) (domain.Session, bool) {
	ctx, cancel := context.WithTimeout(ctx, recoveryCheckWait)
	defer cancel()
	return s.Persistence.Load(ctx)
}

// RecoverSession restores the persisted snapshot and returns it with its unsettled models.
func (s *Services) RecoverSession(ctx context.Context) (domain.Session, []domain.Model, error) {
	snapshot, ok := s.PendingRecovery(ctx)
	if !ok {
		return domain.Session{}, nil, orchestrator.ErrNoSession
	}
	incomplete, err := s.Orchestrator.Restore(snapshot)
	if err != nil {
		return domain.Session{}, nil, err
	}
	return snapshot, incomplete, nil
}

// DiscardRecovery drops the persisted snapshot.
func (s *Services) DiscardRecovery(ctx context.Context) error {
	return s.Persistence.Clear(ctx)
}

// ResolveSession lists the job records for a session key or timestamp.
func (s *Services) ResolveSession(ctx context.Context, key string) (resolver.Resolution, error) {
	return s.Resolver.Resolve(ctx, key)
}

// Job finds a job by id in the current session, then in the records store.
func (s *Services) Job(ctx context.Context, id string) (domain.TranscriptionJob, string, error) {
	if current, ok := s.Orchestrator.Current(); ok {
		for _, job := range current.JobsByModel {
			if job.ID == id {
				return job, current.AudioName, nil
			}
		}
	}
	job, err := s.Records.View().ByID(ctx, id)
	if err != nil {
		return domain.TranscriptionJob{}, "", err
	}
	return job, "", nil
}

// Export writes the caption of a completed job to w.
func (s *Services) Export(ctx context.Context, w io.Writer, jobID string, format captions.Format) (domain.TranscriptionJob, error) {
	job, audioName, err := s.Job(ctx, jobID)
	if err != nil {
		return domain.TranscriptionJob{}, err
	}
	if err := captions.Export(w, job, format, audioName); err != nil {
		return domain.TranscriptionJob{}, err
	}
	return job, nil
}

// ExportToFile writes a job export to path, or to the data directory's exports folder when path is empty.
func (s *Services) ExportToFile(ctx context.Context, jobID string, format captions.Format, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(s.Settings().DataDir, exportDirName, fmt.Sprintf("%s.%s", jobID, format.Extension()))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	_, exportErr := s.Export(ctx, file, jobID, format)
	closeErr := file.Close()
	if exportErr != nil {
		_ = os.Remove(tmpPath)
		return "", exportErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close export file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("move export into place: %w", err)
	}
	return path, nil
}

// Archive moves records created before cutoff into the archive table.
func (s *Services) Archive(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.Records.Archive(ctx, cutoff)
}

// LoadAudio reads an audio file into memory.
func LoadAudio(path string) (domain.AudioAsset, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.AudioAsset{}, errors.New("audio path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AudioAsset{}, fmt.Errorf("read audio %s: %w", path, err)
	}
	return NewAudio(filepath.Base(path), "", data), nil
}

// LoadAudioFiles reads several audio files, stopping at the first failure.
func LoadAudioFiles(paths []string) ([]domain.AudioAsset, error) {
	assets := make([]domain.AudioAsset, 0, len(paths))
	for _, path := range paths {
		asset, err := LoadAudio(path)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// NewAudio builds an asset from an in-memory payload, inferring the content type from the name.
func NewAudio(name, contentType string, data []byte) domain.AudioAsset {
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	}
	if contentType == "" {
		contentType = defaultAudioType
	}
	return domain.AudioAsset{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		Data:        data,
	}
}

func (s *Services) applySettings(settings domain.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	s.registerBackends(settings)
	s.RefreshDiagnostics()
}

// registerBackends registers a backend only when its credential, endpoint or model path is set,
// so unconfigured models fail validation before dispatch.
func (s *Services) registerBackends(settings domain.Settings) {
	s.setBackend(domain.ModelOpenAI, settings.OpenAIAPIKey, func() transcribe.Transcriber {
		return transcribe.NewOpenAIClient(settings.OpenAIAPIKey, settings.OpenAIModel, "", s.httpClient)
	})
	s.setBackend(domain.ModelGemini, settings.GeminiAPIKey, func() transcribe.Transcriber {
		return transcribe.NewGeminiClient(settings.GeminiAPIKey, settings.GeminiModel, "", s.httpClient)
	})
	s.setBackend(domain.ModelPhi4, settings.Phi4Endpoint, func() transcribe.Transcriber {
		return transcribe.NewPhi4Client(settings.Phi4Endpoint, settings.Phi4APIKey, s.httpClient)
	})
	s.setBackend(domain.ModelWhisperLocal, settings.WhisperModelPath, func() transcribe.Transcriber {
		return transcribe.NewPipeline(settings.WhisperModelPath, settings.Language, s.Logger)
	})
}

func (s *Services) setBackend(model domain.Model, required string, build func() transcribe.Transcriber) {
	if strings.TrimSpace(required) == "" {
		s.Backends.Unregister(model)
		return
	}
	s.Backends.Register(build())
}

// normalizeSettings trims user inputs and fills defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()

	settings.DataDir = strings.TrimSpace(settings.DataDir)
	if settings.DataDir == "" {
		settings.DataDir = defaults.DataDir
	}
	settings.Persistence = strings.ToLower(strings.TrimSpace(settings.Persistence))
	if settings.Persistence == "" {
		settings.Persistence = session.BackendFile
	}
	if settings.OutputFormat != domain.OutputFormatPlain {
		settings.OutputFormat = domain.OutputFormatVTT
	}
	settings.Language = strings.TrimSpace(settings.Language)
	if settings.Language == "" {
		settings.Language = "auto"
	}
	settings.WhisperModelPath = strings.TrimSpace(settings.WhisperModelPath)
	settings.Phi4Endpoint = strings.TrimSpace(settings.Phi4Endpoint)
	settings.Models = lo.Uniq(lo.FilterMap(settings.Models, func(model domain.Model, _ int) (domain.Model, bool) {
		trimmed := domain.Model(strings.TrimSpace(string(model)))
		return trimmed, trimmed != ""
	}))
	return settings
}

// mergeSecrets keeps current credentials when the incoming settings omit them.
func mergeSecrets(incoming, current domain.Settings) domain.Settings {
	keep := func(dst *string, value string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = value
		}
	}
	keep(&incoming.OpenAIAPIKey, current.OpenAIAPIKey)
	keep(&incoming.GeminiAPIKey, current.GeminiAPIKey)
	keep(&incoming.Phi4APIKey, current.Phi4APIKey)
	keep(&incoming.RedisPassword, current.RedisPassword)
	keep(&incoming.MinioAccessKey, current.MinioAccessKey)
	keep(&incoming.MinioSecretKey, current.MinioSecretKey)
	return incoming
}

func closeBlobs(blobs session.BlobStore) {
	if closer, ok := blobs.(io.Closer); ok {
		_ = closer.Close()
	}
}
