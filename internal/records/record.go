package records

import (
	"time"

	"transcription-studio/internal/domain"
)

// JobRecord is the stored row for one transcription attempt.
// Times are unix milliseconds so range filters compare numerically.
type JobRecord struct {
	ID           string          `gorm:"primaryKey;column:id"`
	SessionKey   string          `gorm:"column:session_key"`
	Model        string          `gorm:"column:model"`
	Status       string          `gorm:"column:status"`
	Prompt       string          `gorm:"column:prompt"`
	Result       *domain.Caption `gorm:"column:result;serializer:json"`
	ErrorMessage string          `gorm:"column:error_message"`
	Attempt      int             `gorm:"column:attempt"`
	CreatedAt    int64           `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt    int64           `gorm:"column:updated_at;autoUpdateTime:false"`
}

// TableName binds the model to the primary table.
func (JobRecord) TableName() string {
	return TableTranscriptions
}

// FromJob converts a domain job into its row form.
func FromJob(job domain.TranscriptionJob) JobRecord {
	return JobRecord{
		ID:           job.ID,
		SessionKey:   job.SessionKey,
		Model:        string(job.Model),
		Status:       string(job.Status),
		Prompt:       job.Prompt,
		Result:       job.Result,
		ErrorMessage: job.Error,
		Attempt:      job.Attempt,
		CreatedAt:    job.CreatedAt.UnixMilli(),
		UpdatedAt:    job.UpdatedAt.UnixMilli(),
	}
}

// ToJob converts a row back into a domain job.
func (r JobRecord) ToJob() domain.TranscriptionJob {
	return domain.TranscriptionJob{
		ID:         r.ID,
		SessionKey: r.SessionKey,
		Model:      domain.Model(r.Model),
		Status:     domain.JobStatus(r.Status),
		Prompt:     r.Prompt,
		Result:     r.Result,
		Error:      r.ErrorMessage,
		Attempt:    r.Attempt,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

func toJobs(rows []JobRecord) []domain.TranscriptionJob {
	jobs := make([]domain.TranscriptionJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.ToJob())
	}
	return jobs
}
