package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"transcription-studio/internal/captions"
	"transcription-studio/internal/domain"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Pipeline is the whisper-local backend: ffmpeg preprocessing then whisper.cpp VTT output.
type Pipeline struct {
	ffmpegPath  string
	whisperPath string
	modelPath   string
	language    string
	logger      *slog.Logger
	runner      commandRunner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
	stat        func(name string) (os.FileInfo, error)
	readDir     func(name string) ([]os.DirEntry, error)
	readFile    func(name string) ([]byte, error)
	writeFile   func(name string, data []byte, perm os.FileMode) error
}

// NewPipeline constructs the local whisper.cpp backend with OS dependencies.
func NewPipeline(modelPath, language string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		ffmpegPath:  "ffmpeg",
		whisperPath: "whisper.cpp",
		modelPath:   modelPath,
		language:    language,
		logger:      logger,
		runner:      &execRunner{},
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
		readDir:     os.ReadDir,
		readFile:    os.ReadFile,
		writeFile:   os.WriteFile,
	}
}

// Model returns the backend identifier.
func (p *Pipeline) Model() domain.Model {
	return domain.ModelWhisperLocal
}

// Transcribe writes the audio to a scratch directory, converts it and runs whisper.cpp.
func (p *Pipeline) Transcribe(ctx context.Context, req Request) (Response, error) {
	if len(req.Audio.Data) == 0 {
		return Response{}, &PipelineError{
			Stage:   "preprocessing",
			Message: "audio payload is empty",
		}
	}

	modelPath, err := p.resolveModelPath(p.modelPath)
	if err != nil {
		return Response{}, &PipelineError{
			Stage:   "transcribing",
			Message: err.Error(),
			Err:     err,
		}
	}

	tempDir, err := p.mkdirTemp("", "transcription-studio-*")
	if err != nil {
		return Response{}, &PipelineError{
			Stage:   "preprocessing",
			Message: "failed to create temporary workspace",
			Err:     err,
		}
	}
	defer func() { _ = p.removeAll(tempDir) }()

	inputPath := filepath.Join(tempDir, inputFileName(req.Audio.Name))
	if err := p.writeFile(inputPath, req.Audio.Data, 0o600); err != nil {
		return Response{}, &PipelineError{
			Stage:   "preprocessing",
			Message: "failed to stage audio payload",
			Err:     err,
		}
	}

	wavPath := filepath.Join(tempDir, "preprocessed-16k-mono.wav")
	args := buildFFmpegArgs(inputPath, wavPath)
	log, runErr := p.run(ctx, p.ffmpegPath, args)
	if runErr != nil {
		return Response{}, &PipelineError{
			Stage:      "preprocessing",
			Message:    "ffmpeg audio conversion failed",
			CommandLog: log,
			Err:        runErr,
		}
	}
	if _, err := p.stat(wavPath); err != nil {
		return Response{}, &PipelineError{
			Stage:      "preprocessing",
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}

	outBase := filepath.Join(tempDir, "transcript")
	whisperArgs := buildWhisperArgs(modelPath, wavPath, outBase, p.language, req.Prompt)
	whisperLog, runErr := p.run(ctx, p.whisperPath, whisperArgs)
	if runErr != nil {
		return Response{}, &PipelineError{
			Stage:      "transcribing",
			Message:    "whisper.cpp transcription failed",
			CommandLog: whisperLog,
			Err:        runErr,
		}
	}

	vttPath := outBase + ".vtt"
	content, err := p.readFile(vttPath)
	if err != nil {
		return Response{}, &PipelineError{
			Stage:      "exporting",
			Message:    "whisper.cpp completed but transcript .vtt file is missing",
			CommandLog: whisperLog,
			Err:        err,
		}
	}

	caption, err := captions.ParseVTT(string(content))
	if err != nil {
		return Response{}, &PipelineError{
			Stage:      "exporting",
			Message:    "whisper.cpp produced an unreadable vtt file",
			CommandLog: whisperLog,
			Err:        err,
		}
	}
	return Response{Segments: caption.Segments}, nil
}

// run executes one command and logs its outcome.
func (p *Pipeline) run(ctx context.Context, name string, args []string) (CommandLog, error) {
	result, err := p.runner.Run(ctx, name, args...)
	log := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	p.logger.Debug("command completed", "command", name, "exit_code", result.ExitCode)
	return log, err
}

// resolveModelPath returns model file path from file or directory input.
func (p *Pipeline) resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := p.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := p.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds preprocessing CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildWhisperArgs builds whisper.cpp args for vtt transcript output.
func buildWhisperArgs(modelPath, audioPath, outBase, language, prompt string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-ovtt",
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	if prompt = strings.TrimSpace(prompt); prompt != "" {
		args = append(args, "--prompt", prompt)
	}

	return args
}

// inputFileName keeps the original extension so ffmpeg can probe the container.
func inputFileName(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if ext == "" || ext == "." {
		ext = ".bin"
	}
	return "input" + ext
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	ffmpegPath string,
	whisperPath string,
	modelPath string,
	runner commandRunner,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	stat func(name string) (os.FileInfo, error),
) *Pipeline {
	return &Pipeline{
		ffmpegPath:  ffmpegPath,
		whisperPath: whisperPath,
		modelPath:   modelPath,
		language:    "auto",
		logger:      slog.Default(),
		runner:      runner,
		mkdirTemp:   mkdirTemp,
		removeAll:   removeAll,
		stat:        stat,
		readDir:     os.ReadDir,
		readFile:    os.ReadFile,
		writeFile:   os.WriteFile,
	}
}
