package captions

import (
	"fmt"
	"io"

	"transcription-studio/internal/domain"
)

// Extension returns the file extension for the format, without the dot.
func (f Format) Extension() string {
	if f == FormatText {
		return "txt"
	}
	return string(f)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	case FormatSRT:
		return "application/x-subrip; charset=utf-8"
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Export writes a completed job's caption to w in the requested format.
func Export(w io.Writer, job domain.TranscriptionJob, format Format, audioName string) error {
	if job.Status != domain.JobStatusCompleted || job.Result == nil {
		return fmt.Errorf("job %s has no result to export", job.ID)
	}
	if format == FormatPDF {
		return WritePDF(w, job, audioName)
	}

	text, err := Render(*job.Result, format)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, text); err != nil {
		return fmt.Errorf("write %s export: %w", format, err)
	}
	return nil
}
