package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"transcription-studio/internal/captions"
	"transcription-studio/internal/config"
	"transcription-studio/internal/domain"
	"transcription-studio/internal/jobs"
	"transcription-studio/internal/orchestrator"
	"transcription-studio/internal/queue"
	"transcription-studio/internal/resolver"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const jobEventName = "job:event"

var audioDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Audio files",
		Pattern:     "*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.webm;*.mp4",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var modelDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Whisper models",
		Pattern:     "*.bin;*.gguf",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// ErrNoAudio is returned by retries when no audio is loaded for the current session.
var ErrNoAudio = errors.New("no audio loaded for the current session")

// App is the desktop shell: it binds Services to the Wails runtime and forwards progress events.
type App struct {
	services *Services
	assets   fs.FS
	emit     func(ctx context.Context, name string, data ...interface{})

	mu         sync.Mutex
	runtimeCtx context.Context
	cancel     context.CancelFunc
	audio      domain.AudioAsset
	detach     func()
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	services, err := NewServices(context.Background(), Options{
		Logger: config.NewLogger(os.Stderr, os.Getenv("LOG_LEVEL")),
	})
	if err != nil {
		return nil, err
	}
	return NewApp(services, assets), nil
}

// NewApp wraps already-built services.
func NewApp(services *Services, assets fs.FS) *App {
	return &App{
		services: services,
		assets:   assets,
		emit:     wailsruntime.EventsEmit,
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Transcription Studio",
		Width:       1280,
		Height:      820,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context and starts forwarding progress events.
func (a *App) Startup(ctx context.Context) {
	events, detach := a.services.Events.Subscribe(64)

	a.mu.Lock()
	a.runtimeCtx = ctx
	a.detach = detach
	a.mu.Unlock()

	go a.forwardEvents(events)
}

// Shutdown stops event forwarding, cancels any run and releases services.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	detach, cancel := a.detach, a.cancel
	a.runtimeCtx = nil
	a.detach = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if detach != nil {
		detach()
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.Warn("close services", "error", err)
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.services.Diagnostics()
}

// RefreshDiagnostics reruns dependency checks.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	return a.services.RefreshDiagnostics()
}

// InstallOrFixDiagnostic applies the remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	return a.services.Fix(context.Background(), itemID)
}

// GetSettings returns the active settings.
func (a *App) GetSettings() domain.Settings {
	return a.services.Settings()
}

// SaveSettings normalizes and persists settings, then refreshes backends and diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	return a.services.SaveSettings(settings)
}

// GetWhisperModels returns the downloadable whisper-local models.
func (a *App) GetWhisperModels() []domain.WhisperModelOption {
	return a.services.WhisperModels()
}

// DownloadWhisperModel downloads a catalog model and selects it.
func (a *App) DownloadWhisperModel(modelID string) (domain.Settings, error) {
	return a.services.DownloadWhisperModel(context.Background(), modelID)
}

// AvailableModels lists the registered transcription backends.
func (a *App) AvailableModels() []domain.Model {
	return a.services.Backends.Models()
}

// PickAudioFile opens a native file dialog for one audio file.
func (a *App) PickAudioFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio file",
		Filters: audioDialogFilter,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// PickAudioFiles opens a native file dialog for a bulk queue.
func (a *App) PickAudioFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	return wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select audio files",
		Filters: audioDialogFilter,
	})
}

// PickModelFile opens a native file dialog for whisper model selection.
func (a *App) PickModelFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select whisper model",
		Filters: modelDialogFilter,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// StartGeneration loads audio and runs the selected models in the background.
// Progress arrives through job events; an empty model list uses the configured selection.
func (a *App) StartGeneration(inputPath string, models []domain.Model) error {
	audio, err := LoadAudio(inputPath)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.cancel != nil || a.services.Orchestrator.Running() {
		a.mu.Unlock()
		return orchestrator.ErrRunInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.audio = audio
	a.cancel = cancel
	a.mu.Unlock()

	go func() {
		defer a.clearCancel(cancel)
		if _, err := a.services.Generate(ctx, audio, models); err != nil {
			a.services.Logger.Warn("generation finished with error", "audio", audio.Name, "error", err)
		}
	}()
	return nil
}

// CancelGeneration cancels the in-flight run; unfinished jobs settle as failed.
func (a *App) CancelGeneration() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("no generation is running")
	}
	cancel()
	return nil
}

// RetryModel resubmits one model. An empty path reuses the audio of the last generation.
func (a *App) RetryModel(model domain.Model, inputPath string) (domain.TranscriptionJob, error) {
	audio, err := a.retryAudio(inputPath)
	if err != nil {
		return domain.TranscriptionJob{}, err
	}
	return a.services.Retry(context.Background(), audio, model)
}

// CurrentSession returns the live session.
func (a *App) CurrentSession() (domain.Session, error) {
	current, ok := a.services.Orchestrator.Current()
	if !ok {
		return domain.Session{}, orchestrator.ErrNoSession
	}
	return current, nil
}

// PendingRecovery returns the snapshot of an interrupted session, or nil.
func (a *App) PendingRecovery() *domain.Session {
	snapshot, ok := a.services.PendingRecovery(context.Background())
	if !ok {
		return nil
	}
	return &snapshot
}

// RestoreSession applies the pending snapshot and returns the models that never settled.
func (a *App) RestoreSession() ([]domain.Model, error) {
	_, incomplete, err := a.services.RecoverSession(context.Background())
	return incomplete, err
}

// DiscardRecovery drops the pending snapshot.
func (a *App) DiscardRecovery() error {
	return a.services.DiscardRecovery(context.Background())
}

// SelectResult accepts one model's result as the chosen transcription.
func (a *App) SelectResult(model domain.Model) (domain.TranscriptionJob, error) {
	return a.services.Orchestrator.Select(model)
}

// EnqueueFiles replaces the bulk queue with the given files.
func (a *App) EnqueueFiles(paths []string) (queue.State, error) {
	assets, err := LoadAudioFiles(paths)
	if err != nil {
		return queue.State{}, err
	}
	a.services.Queue.Enqueue(assets)
	return a.services.Queue.State(), nil
}

// ProcessNextFile runs the file at the queue cursor in the background.
func (a *App) ProcessNextFile() (queue.State, error) {
	state := a.services.Queue.State()
	if state.Processing {
		return state, queue.ErrQueueBusy
	}
	if state.Remaining == 0 {
		return state, nil
	}

	go func() {
		if _, err := a.services.Queue.ProcessNext(context.Background()); err != nil {
			a.services.Logger.Warn("queued file finished with error", "error", err)
		}
	}()
	return state, nil
}

// SkipFile advances the queue without running the current file.
func (a *App) SkipFile() queue.State {
	a.services.Queue.Skip()
	return a.services.Queue.State()
}

// ResetQueue empties the queue and clears the accepted result.
func (a *App) ResetQueue() queue.State {
	a.services.Queue.Reset()
	return a.services.Queue.State()
}

// QueueState returns the queue position.
func (a *App) QueueState() queue.State {
	return a.services.Queue.State()
}

// ResolveSession lists job records for a session key or ISO timestamp.
func (a *App) ResolveSession(key string) (resolver.Resolution, error) {
	return a.services.ResolveSession(context.Background(), key)
}

// ExportJob writes a completed job's caption. An empty destination opens a save dialog.
func (a *App) ExportJob(jobID, format, destination string) (string, error) {
	parsed, err := captions.ParseFormat(format)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(destination) == "" {
		ctx, err := a.runtimeContext()
		if err != nil {
			return "", err
		}
		destination, err = wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
			Title:           "Export transcription",
			DefaultFilename: fmt.Sprintf("%s.%s", jobID, parsed.Extension()),
		})
		if err != nil {
			return "", err
		}
		if destination == "" {
			return "", nil
		}
	}
	return a.services.ExportToFile(context.Background(), jobID, parsed, destination)
}

// OpenExportFolder opens the given path, or the exports folder, in the file manager.
func (a *App) OpenExportFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = filepath.Join(a.services.Settings().DataDir, exportDirName)
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve export path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}
	return openInFileManager(openPath)
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.services.Events.Since(sinceSeq)
}

// forwardEvents mirrors bus events to the Wails runtime until the subscription closes.
func (a *App) forwardEvents(events <-chan jobs.Event) {
	for event := range events {
		a.mu.Lock()
		ctx := a.runtimeCtx
		a.mu.Unlock()
		if ctx != nil {
			a.emit(ctx, jobEventName, event)
		}
	}
}

func (a *App) retryAudio(inputPath string) (domain.AudioAsset, error) {
	if strings.TrimSpace(inputPath) != "" {
		return LoadAudio(inputPath)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.audio.Data) == 0 {
		return domain.AudioAsset{}, ErrNoAudio
	}
	return a.audio, nil
}

func (a *App) clearCancel(cancel context.CancelFunc) {
	cancel()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel = nil
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
