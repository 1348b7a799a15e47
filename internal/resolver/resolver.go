package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"transcription-studio/internal/domain"
)

const (
	// Window is the half-width of the creation-time match around a timestamp key.
	Window = 10 * time.Minute
	// RecentLimit bounds the degraded fallback.
	RecentLimit = 10
)

// Source is one queryable relation of job records. Results are newest first.
type Source interface {
	Name() string
	BySessionKey(ctx context.Context, key string) ([]domain.TranscriptionJob, error)
	ByCreatedRange(ctx context.Context, from, to time.Time) ([]domain.TranscriptionJob, error)
	Recent(ctx context.Context, limit int) ([]domain.TranscriptionJob, error)
}

// Strategy is one step of the resolution chain.
type Strategy struct {
	Name     string
	Degraded bool
	query    func(ctx context.Context) ([]domain.TranscriptionJob, error)
}

// Resolution is the outcome of resolving one session key.
type Resolution struct {
	Key      string                    `json:"key"`
	Jobs     []domain.TranscriptionJob `json:"jobs"`
	Strategy string                    `json:"strategy"`
	Degraded bool                      `json:"degraded"`
}

// ResolutionError is returned when the key is unusable or a query fails.
type ResolutionError struct {
	Key      string
	Strategy string
	Err      error
}

// Error formats the failing key and strategy.
func (e *ResolutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Strategy == "" {
		return fmt.Sprintf("resolve session %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("resolve session %q via %s: %v", e.Key, e.Strategy, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ResolutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Resolver maps a session key to its job records.
type Resolver struct {
	primary Source
	view    Source
	logger  *slog.Logger
}

// New creates a resolver over the primary table and the denormalized view.
func New(primary, view Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{primary: primary, view: view, logger: logger}
}

// IsTimestampKey reports whether the key carries date/time markers.
func IsTimestampKey(key string) bool {
	return strings.Contains(key, "T") && strings.Contains(key, "Z")
}

// Plan returns the ordered strategies attempted for key.
func (r *Resolver) Plan(key string) ([]Strategy, error) {
	if !IsTimestampKey(key) {
		return []Strategy{
			r.exact(r.primary, key),
			r.exact(r.view, key),
		}, nil
	}

	at, err := parseTimestampKey(key)
	if err != nil {
		return nil, err
	}
	from, to := at.Add(-Window), at.Add(Window)
	return []Strategy{
		r.window(r.primary, from, to),
		r.window(r.view, from, to),
		{
			Name:     r.view.Name() + ":recent",
			Degraded: true,
			query: func(ctx context.Context) ([]domain.TranscriptionJob, error) {
				return r.view.Recent(ctx, RecentLimit)
			},
		},
	}, nil
}

// Resolve runs the chain and returns the first strategy that yields rows.
// When every strategy is empty the last one attempted is reported.
func (r *Resolver) Resolve(ctx context.Context, key string) (Resolution, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Resolution{}, &ResolutionError{Key: key, Err: fmt.Errorf("session key is required")}
	}

	plan, err := r.Plan(key)
	if err != nil {
		return Resolution{}, &ResolutionError{Key: key, Err: err}
	}

	var res Resolution
	for _, strategy := range plan {
		jobs, err := strategy.query(ctx)
		if err != nil {
			return Resolution{}, &ResolutionError{Key: key, Strategy: strategy.Name, Err: err}
		}
		sortNewestFirst(jobs)
		res = Resolution{Key: key, Jobs: jobs, Strategy: strategy.Name, Degraded: strategy.Degraded}
		r.logger.Debug("session strategy attempted", "key", key, "strategy", strategy.Name, "rows", len(jobs))
		if len(jobs) > 0 {
			break
		}
	}

	if res.Jobs == nil {
		res.Jobs = []domain.TranscriptionJob{}
	}
	if res.Degraded {
		r.logger.Info("session resolved from degraded fallback", "key", key, "rows", len(res.Jobs))
	}
	return res, nil
}

func (r *Resolver) exact(source Source, key string) Strategy {
	return Strategy{
		Name: source.Name() + ":session",
		query: func(ctx context.Context) ([]domain.TranscriptionJob, error) {
			return source.BySessionKey(ctx, key)
		},
	}
}

func (r *Resolver) window(source Source, from, to time.Time) Strategy {
	return Strategy{
		Name: source.Name() + ":window",
		query: func(ctx context.Context) ([]domain.TranscriptionJob, error) {
			return source.ByCreatedRange(ctx, from, to)
		},
	}
}

func parseTimestampKey(key string) (time.Time, error) {
	decoded, err := url.PathUnescape(key)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp key: %w", err)
	}
	at, err := time.Parse(time.RFC3339, decoded)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %w", err)
	}
	return at, nil
}

func sortNewestFirst(jobs []domain.TranscriptionJob) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
