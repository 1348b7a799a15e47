package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"transcription-studio/internal/captions"
	"transcription-studio/internal/domain"
)

// Request is one submission of an audio asset to one backend.
type Request struct {
	Audio  domain.AudioAsset
	Prompt string
}

// Response is whatever shape a backend returned before normalization.
// At most one of Segments, Chunks or Text is expected to be meaningful.
type Response struct {
	Text     string
	Segments []domain.Segment
	Chunks   []captions.Chunk
}

// Transcriber is one opaque speech-to-text backend.
type Transcriber interface {
	Model() domain.Model
	Transcribe(ctx context.Context, req Request) (Response, error)
}

// ErrEmptyResponse is wrapped when a backend returns no usable content.
var ErrEmptyResponse = errors.New("backend returned no transcription content")

// RemoteError describes a failed or malformed backend call.
type RemoteError struct {
	Model      domain.Model `json:"model"`
	StatusCode int          `json:"statusCode,omitempty"`
	Message    string       `json:"message"`
	Err        error        `json:"-"`
}

// Error formats backend failures for job records and logs.
func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Model, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Model, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Normalize converts any backend response shape into a segment-timed caption.
// Segments and chunks with blank text are dropped; inverted timing is a RemoteError.
func Normalize(model domain.Model, resp Response) (domain.Caption, error) {
	switch {
	case len(resp.Segments) > 0:
		return checkSegments(model, resp.Segments)
	case len(resp.Chunks) > 0:
		return checkSegments(model, captions.FromChunks(resp.Chunks).Segments)
	case strings.TrimSpace(resp.Text) != "":
		return captions.FromText(resp.Text), nil
	default:
		return domain.Caption{}, emptyResponse(model)
	}
}

func checkSegments(model domain.Model, in []domain.Segment) (domain.Caption, error) {
	segments := make([]domain.Segment, 0, len(in))
	for _, seg := range in {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		if seg.End < seg.Start {
			return domain.Caption{}, &RemoteError{Model: model, Message: fmt.Sprintf("segment ends before it starts: %v > %v", seg.Start, seg.End)}
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return domain.Caption{}, emptyResponse(model)
	}
	return domain.Caption{Segments: segments}, nil
}

func emptyResponse(model domain.Model) error {
	return &RemoteError{Model: model, Message: ErrEmptyResponse.Error(), Err: ErrEmptyResponse}
}

// Registry maps model identifiers to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[domain.Model]Transcriber
}

// NewRegistry creates a registry holding the given backends.
func NewRegistry(backends ...Transcriber) *Registry {
	r := &Registry{backends: map[domain.Model]Transcriber{}}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds or replaces the backend for its model.
func (r *Registry) Register(t Transcriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[t.Model()] = t
}

// Unregister removes the backend for model, if any.
func (r *Registry) Unregister(model domain.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, model)
}

// Get returns the backend registered for model.
func (r *Registry) Get(model domain.Model) (Transcriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.backends[model]
	return t, ok
}

// Models lists registered models in sorted order.
func (r *Registry) Models() []domain.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Model, 0, len(r.backends))
	for model := range r.backends {
		out = append(out, model)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
