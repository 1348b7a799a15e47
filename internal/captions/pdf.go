package captions

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"transcription-studio/internal/domain"
)

// WritePDF renders a printable transcript of one job with cue timestamps.
func WritePDF(w io.Writer, job domain.TranscriptionJob, audioName string) error {
	if job.Result == nil {
		return fmt.Errorf("job %s has no result to export", job.ID)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Transcript %s", job.ID), false)
	pdf.SetAuthor("transcription-studio", false)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := strings.TrimSpace(audioName)
	if title == "" {
		title = "Transcript"
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(title))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Model: %s", job.Model)))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Created: %s", job.CreatedAt.Local().Format(time.DateTime)))
	pdf.Ln(10)

	if len(job.Result.Segments) == 0 {
		pdf.MultiCell(0, 6, "(empty)", "", "L", false)
	}
	for _, seg := range job.Result.Segments {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.Cell(0, 5, fmt.Sprintf("%s - %s", Timestamp(seg.Start, '.'), Timestamp(seg.End, '.')))
		pdf.Ln(5)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(strings.TrimSpace(seg.Text)), "", "L", false)
		pdf.Ln(2)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
