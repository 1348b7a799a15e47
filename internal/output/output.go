package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"transcription-studio/internal/domain"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

// Diagnostic prints one check line. Hints are only shown for items that did not pass.
func (f *Formatter) Diagnostic(item domain.DiagnosticItem) {
	marker := "✅"
	switch item.Status {
	case domain.DiagnosticStatusWarn:
		marker = "⚠️ "
	case domain.DiagnosticStatusFail:
		marker = "❌"
	}
	fmt.Fprintf(f.w, "  %s %s: %s\n", marker, item.Name, item.Message)
	if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
		fmt.Fprintf(f.w, "     %s (fix id: %s)\n", item.Hint, item.ID)
	}
}

func (f *Formatter) Report(report domain.DiagnosticReport) {
	for _, item := range report.Items {
		f.Diagnostic(item)
	}
	if report.HasFailures {
		f.Warning("\nSome prerequisites are missing.")
	} else {
		f.Success("\nAll prerequisites met.")
	}
}

func (f *Formatter) SessionHeader(session domain.Session) {
	fmt.Fprintf(f.w, "🎙️  Session %s (%s)\n", session.ID, session.AudioName)
}

// Session prints one line per selected model in selection order.
func (f *Formatter) Session(session domain.Session) {
	f.SessionHeader(session)
	for _, model := range session.SelectedModels {
		job, ok := session.JobsByModel[model]
		if !ok {
			fmt.Fprintf(f.w, "  %-14s %s\n", model, "missing")
			continue
		}
		f.Job(job)
	}
}

func (f *Formatter) Job(job domain.TranscriptionJob) {
	detail := ""
	switch {
	case job.Error != "":
		detail = job.Error
	case job.Result != nil:
		detail = fmt.Sprintf("%d segments", len(job.Result.Segments))
	}
	fmt.Fprintf(f.w, "  %-14s %-10s %s  %s\n", job.Model, job.Status, job.ID, detail)
}

// Jobs prints a job list sorted by model then attempt.
func (f *Formatter) Jobs(jobs []domain.TranscriptionJob) {
	sorted := append([]domain.TranscriptionJob(nil), jobs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Model != sorted[j].Model {
			return sorted[i].Model < sorted[j].Model
		}
		return sorted[i].Attempt < sorted[j].Attempt
	})
	for _, job := range sorted {
		fmt.Fprintf(f.w, "  %s  ", job.CreatedAt.Local().Format(time.DateTime))
		f.Job(job)
	}
}

func (f *Formatter) Queue(items []string, cursor, remaining int) {
	if len(items) == 0 {
		f.Info("Queue is empty")
		return
	}
	for i, item := range items {
		marker := " "
		switch {
		case i < cursor:
			marker = "✓"
		case i == cursor:
			marker = "›"
		}
		fmt.Fprintf(f.w, "  %s %s\n", marker, item)
	}
	fmt.Fprintf(f.w, "  %d of %d remaining\n", remaining, len(items))
}

func (f *Formatter) WhisperModel(option domain.WhisperModelOption) {
	flags := make([]string, 0, 2)
	if option.Downloaded {
		flags = append(flags, "downloaded")
	}
	if option.Selected {
		flags = append(flags, "selected")
	}
	status := ""
	if len(flags) > 0 {
		status = " [" + strings.Join(flags, ", ") + "]"
	}
	fmt.Fprintf(f.w, "  %-16s %-8s %s%s\n", option.ID, option.SizeLabel, option.Description, status)
}
