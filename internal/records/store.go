package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"transcription-studio/internal/domain"
)

// Relation names in the records database.
const (
	TableTranscriptions = "transcriptions"
	TableArchive        = "transcriptions_archive"
	ViewTranscriptions  = "transcription_jobs"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("record not found")

const recordColumns = "id, session_key, model, status, prompt, result, error_message, attempt, created_at, updated_at"

// Store is the JobRecord store backed by sqlite through gorm.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open creates or opens the sqlite database at path and migrates it.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, errors.New("records database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create records directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open records database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("records connection pool: %w", err)
	}
	// sqlite allows one writer; jobs settle concurrently.
	sqlDB.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&JobRecord{}); err != nil {
		return fmt.Errorf("migrate %s: %w", TableTranscriptions, err)
	}
	if err := s.db.Table(TableArchive).AutoMigrate(&JobRecord{}); err != nil {
		return fmt.Errorf("migrate %s: %w", TableArchive, err)
	}

	for _, table := range []string{TableTranscriptions, TableArchive} {
		for _, column := range []string{"session_key", "created_at"} {
			index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", table, column, table, column)
			if err := s.db.Exec(index).Error; err != nil {
				return fmt.Errorf("index %s.%s: %w", table, column, err)
			}
		}
	}

	view := fmt.Sprintf(
		"CREATE VIEW IF NOT EXISTS %s AS SELECT %s FROM %s UNION ALL SELECT %s FROM %s",
		ViewTranscriptions, recordColumns, TableTranscriptions, recordColumns, TableArchive,
	)
	if err := s.db.Exec(view).Error; err != nil {
		return fmt.Errorf("create %s view: %w", ViewTranscriptions, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record upserts the job row keyed by job id.
func (s *Store) Record(ctx context.Context, job domain.TranscriptionJob) error {
	row := FromJob(job)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("record job %s: %w", job.ID, err)
	}
	return nil
}

// Archive moves rows created before cutoff out of the primary table.
// Archived rows stay visible through the view.
func (s *Store) Archive(ctx context.Context, cutoff time.Time) (int64, error) {
	var moved int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s WHERE created_at < ?",
			TableArchive, recordColumns, recordColumns, TableTranscriptions,
		)
		if err := tx.Exec(insert, cutoff.UnixMilli()).Error; err != nil {
			return err
		}
		result := tx.Where("created_at < ?", cutoff.UnixMilli()).Delete(&JobRecord{})
		if result.Error != nil {
			return result.Error
		}
		moved = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive records: %w", err)
	}
	s.logger.Info("archived job records", "count", moved, "cutoff", cutoff)
	return moved, nil
}

// Table is the primary normalized relation.
func (s *Store) Table() *Relation {
	return &Relation{db: s.db, name: TableTranscriptions}
}

// View is the denormalized relation spanning live and archived rows.
func (s *Store) View() *Relation {
	return &Relation{db: s.db, name: ViewTranscriptions}
}

// Relation queries one table or view, always newest first.
type Relation struct {
	db   *gorm.DB
	name string
}

// Name returns the relation name.
func (r *Relation) Name() string {
	return r.name
}

// BySessionKey returns rows whose session key matches exactly.
func (r *Relation) BySessionKey(ctx context.Context, key string) ([]domain.TranscriptionJob, error) {
	var rows []JobRecord
	err := r.query(ctx).Where("session_key = ?", key).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%s by session key: %w", r.name, err)
	}
	return toJobs(rows), nil
}

// ByCreatedRange returns rows created within [from, to].
func (r *Relation) ByCreatedRange(ctx context.Context, from, to time.Time) ([]domain.TranscriptionJob, error) {
	var rows []JobRecord
	err := r.query(ctx).
		Where("created_at >= ? AND created_at <= ?", from.UnixMilli(), to.UnixMilli()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%s by created range: %w", r.name, err)
	}
	return toJobs(rows), nil
}

// Recent returns the limit most recently created rows.
func (r *Relation) Recent(ctx context.Context, limit int) ([]domain.TranscriptionJob, error) {
	var rows []JobRecord
	err := r.query(ctx).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%s recent: %w", r.name, err)
	}
	return toJobs(rows), nil
}

func (r *Relation) query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.name).Order("created_at DESC")
}

// ByID returns the row with the given job id.
func (r *Relation) ByID(ctx context.Context, id string) (domain.TranscriptionJob, error) {
	var row JobRecord
	err := r.db.WithContext(ctx).Table(r.name).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TranscriptionJob{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.TranscriptionJob{}, fmt.Errorf("%s by id: %w", r.name, err)
	}
	return row.ToJob(), nil
}
