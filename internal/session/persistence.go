package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"transcription-studio/internal/domain"
)

// Key is the single fixed slot holding the in-flight session snapshot.
const Key = "transcription-session"

// PersistenceError describes a failed snapshot store operation.
type PersistenceError struct {
	Op  string
	Err error
}

// Error formats the failing operation.
func (e *PersistenceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *PersistenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Persistence saves and restores the in-flight session under Key.
// Writes are last-writer-wins.
type Persistence struct {
	store  BlobStore
	logger *slog.Logger
}

// NewPersistence binds a blob store. A nil logger uses slog.Default().
func NewPersistence(store BlobStore, logger *slog.Logger) *Persistence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persistence{store: store, logger: logger}
}

// Snapshot overwrites the slot with the session. Failures are logged and swallowed.
func (p *Persistence) Snapshot(ctx context.Context, session domain.Session) {
	if err := p.save(ctx, session); err != nil {
		p.logger.Warn("session snapshot failed", "session_id", session.ID, "error", err)
	}
}

func (p *Persistence) save(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}
	if err := p.store.Set(ctx, Key, data); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	return nil
}

// Load returns the saved session, if any. Unreadable snapshots are cleared and
// reported as absent.
func (p *Persistence) Load(ctx context.Context) (domain.Session, bool) {
	data, err := p.store.Get(ctx, Key)
	if errors.Is(err, ErrNotFound) {
		return domain.Session{}, false
	}
	if err != nil {
		p.logger.Warn("session load failed", "error", &PersistenceError{Op: "read", Err: err})
		return domain.Session{}, false
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil || session.ID == "" {
		p.logger.Warn("discarding unreadable session snapshot", "error", err)
		if clearErr := p.Clear(ctx); clearErr != nil {
			p.logger.Warn("session clear failed", "error", clearErr)
		}
		return domain.Session{}, false
	}
	if session.JobsByModel == nil {
		session.JobsByModel = map[domain.Model]domain.TranscriptionJob{}
	}
	return session, true
}

// Clear empties the slot.
func (p *Persistence) Clear(ctx context.Context) error {
	if err := p.store.Delete(ctx, Key); err != nil {
		return &PersistenceError{Op: "clear", Err: err}
	}
	return nil
}
