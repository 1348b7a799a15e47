package captions

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"transcription-studio/internal/domain"
)

// TestFromTextSplitsSentencesIntoFiveSecondSegments checks synthetic timing.
func TestFromTextSplitsSentencesIntoFiveSecondSegments(t *testing.T) {
	caption := FromText("Hello there. How are you? Fine!")
	if len(caption.Segments) != 3 {
		t.Fatalf("segments = %d, want 3: %+v", len(caption.Segments), caption.Segments)
	}

	want := []domain.Segment{
		{Text: "Hello there.", Start: 0, End: 5},
		{Text: "How are you?", Start: 5, End: 10},
		{Text: "Fine!", Start: 10, End: 15},
	}
	for i, seg := range caption.Segments {
		if seg != want[i] {
			t.Fatalf("segment %d = %+v, want %+v", i, seg, want[i])
		}
	}
}

// TestFromTextKeepsUnpunctuatedRemainder checks text without terminal punctuation.
func TestFromTextKeepsUnpunctuatedRemainder(t *testing.T) {
	caption := FromText("First part. trailing words")
	if len(caption.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(caption.Segments))
	}
	if caption.Segments[1].Text != "trailing words" {
		t.Fatalf("remainder = %q", caption.Segments[1].Text)
	}

	single := FromText("no punctuation at all")
	if len(single.Segments) != 1 || single.Segments[0].End != SyntheticSegmentSeconds {
		t.Fatalf("single = %+v", single.Segments)
	}
}

// TestFromTextEmpty returns an empty, non-nil segment list.
func TestFromTextEmpty(t *testing.T) {
	caption := FromText("   ")
	if caption.Segments == nil || len(caption.Segments) != 0 {
		t.Fatalf("segments = %#v, want empty slice", caption.Segments)
	}
}

// TestFromChunksMapsOneToOne verifies structured chunks keep their timing.
func TestFromChunksMapsOneToOne(t *testing.T) {
	caption := FromChunks([]Chunk{
		{Text: " one ", Timestamp: [2]float64{0, 1.5}},
		{Text: "two", Timestamp: [2]float64{1.5, 4}},
	})
	if len(caption.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(caption.Segments))
	}
	if caption.Segments[0].Text != "one" || caption.Segments[1].Start != 1.5 || caption.Segments[1].End != 4 {
		t.Fatalf("unexpected segments: %+v", caption.Segments)
	}
}

// TestFromChunksSkipsBlankText checks whitespace-only chunks are dropped.
func TestFromChunksSkipsBlankText(t *testing.T) {
	caption := FromChunks([]Chunk{
		{Text: "one", Timestamp: [2]float64{0, 1}},
		{Text: "   ", Timestamp: [2]float64{1, 2}},
		{Text: "two", Timestamp: [2]float64{2, 3}},
	})
	if len(caption.Segments) != 2 || caption.Segments[1].Text != "two" {
		t.Fatalf("segments = %+v", caption.Segments)
	}
}

// TestTimestampFormatting checks hour rollover and millisecond precision.
func TestTimestampFormatting(t *testing.T) {
	tests := []struct {
		seconds float64
		sep     byte
		want    string
	}{
		{0, '.', "00:00:00.000"},
		{5, '.', "00:00:05.000"},
		{61.25, '.', "00:01:01.250"},
		{3723.5, ',', "01:02:03,500"},
		{2.3, '.', "00:00:02.300"},
		{-1, '.', "00:00:00.000"},
	}
	for _, tt := range tests {
		if got := Timestamp(tt.seconds, tt.sep); got != tt.want {
			t.Fatalf("Timestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

// TestVTTAndParseVTT verifies rendered cues can be read back.
func TestVTTAndParseVTT(t *testing.T) {
	caption := domain.Caption{Segments: []domain.Segment{
		{Text: "Hello.", Start: 0, End: 5},
		{Text: "World.", Start: 5, End: 10.5},
	}}

	vtt := VTT(caption)
	if !strings.HasPrefix(vtt, "WEBVTT\n\n00:00:00.000 --> 00:00:05.000\nHello.\n") {
		t.Fatalf("unexpected vtt:\n%s", vtt)
	}

	parsed, err := ParseVTT(vtt)
	if err != nil {
		t.Fatalf("ParseVTT() error = %v", err)
	}
	if len(parsed.Segments) != 2 || parsed.Segments[1].End != 10.5 || parsed.Segments[1].Text != "World." {
		t.Fatalf("parsed = %+v", parsed.Segments)
	}
}

// TestParseVTTWhisperOutput checks short timestamps, cue ids and multi-line text.
func TestParseVTTWhisperOutput(t *testing.T) {
	content := "WEBVTT\n\n1\n00:01.000 --> 00:03.500 align:start\nfirst line\nsecond line\n\n00:00:04.000 --> 00:00:06.000\nnext\n"
	parsed, err := ParseVTT(content)
	if err != nil {
		t.Fatalf("ParseVTT() error = %v", err)
	}
	if len(parsed.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(parsed.Segments))
	}
	if parsed.Segments[0].Text != "first line second line" || parsed.Segments[0].Start != 1 || parsed.Segments[0].End != 3.5 {
		t.Fatalf("first = %+v", parsed.Segments[0])
	}
}

// TestParseVTTInvalidTimestamp surfaces malformed cue timing.
func TestParseVTTInvalidTimestamp(t *testing.T) {
	if _, err := ParseVTT("WEBVTT\n\nnope --> 00:00:01.000\ntext\n"); err == nil {
		t.Fatal("expected parse error")
	}
}

// TestRenderFormats covers srt, text and json output.
func TestRenderFormats(t *testing.T) {
	caption := domain.Caption{Segments: []domain.Segment{{Text: "a", Start: 0, End: 1}, {Text: "b", Start: 1, End: 2}}}

	srt, err := Render(caption, FormatSRT)
	if err != nil {
		t.Fatalf("srt: %v", err)
	}
	if !strings.HasPrefix(srt, "1\n00:00:00,000 --> 00:00:01,000\na\n\n2\n") {
		t.Fatalf("unexpected srt:\n%s", srt)
	}

	text, err := Render(caption, FormatText)
	if err != nil || text != "a b" {
		t.Fatalf("text = %q, err = %v", text, err)
	}

	js, err := Render(caption, FormatJSON)
	if err != nil || !strings.Contains(js, `"startSeconds": 1`) {
		t.Fatalf("json = %s, err = %v", js, err)
	}

	if _, err := Render(caption, FormatPDF); err == nil {
		t.Fatal("expected pdf to be rejected by Render")
	}
}

// TestParseFormat verifies defaults and rejection of unknown formats.
func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatVTT {
		t.Fatalf("ParseFormat(\"\") = %q, %v", f, err)
	}
	if f, err := ParseFormat(" SRT "); err != nil || f != FormatSRT {
		t.Fatalf("ParseFormat(SRT) = %q, %v", f, err)
	}
	if _, err := ParseFormat("docx"); err == nil {
		t.Fatal("expected error for docx")
	}
}

// TestWritePDF checks a PDF document is produced for a completed job.
func TestWritePDF(t *testing.T) {
	job := domain.TranscriptionJob{
		ID:        "job-1",
		Model:     domain.ModelOpenAI,
		Status:    domain.JobStatusCompleted,
		Result:    &domain.Caption{Segments: []domain.Segment{{Text: "Hello.", Start: 0, End: 5}}},
		CreatedAt: time.Now(),
	}

	var buf bytes.Buffer
	if err := WritePDF(&buf, job, "lecture.mp3"); err != nil {
		t.Fatalf("WritePDF() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output does not look like a pdf: %q", buf.Bytes()[:min(8, buf.Len())])
	}

	if err := WritePDF(&buf, domain.TranscriptionJob{ID: "job-2"}, ""); err == nil {
		t.Fatal("expected error for job without result")
	}
}

// TestExport checks text exports and the rejection of unfinished jobs.
func TestExport(t *testing.T) {
	job := domain.TranscriptionJob{
		ID:     "job-1",
		Status: domain.JobStatusCompleted,
		Result: &domain.Caption{Segments: []domain.Segment{{Text: "Hello.", Start: 0, End: 5}}},
	}

	var buf bytes.Buffer
	if err := Export(&buf, job, FormatSRT, "clip.mp3"); err != nil {
		t.Fatalf("Export(srt) error = %v", err)
	}
	if !strings.Contains(buf.String(), "00:00:00,000 --> 00:00:05,000") {
		t.Fatalf("srt = %q", buf.String())
	}

	pending := domain.TranscriptionJob{ID: "job-2", Status: domain.JobStatusProcessing}
	if err := Export(&buf, pending, FormatVTT, ""); err == nil {
		t.Fatal("expected error for unfinished job")
	}

	if FormatText.Extension() != "txt" || FormatVTT.Extension() != "vtt" {
		t.Fatalf("extensions = %s, %s", FormatText.Extension(), FormatVTT.Extension())
	}
	if FormatPDF.ContentType() != "application/pdf" {
		t.Fatalf("pdf content type = %s", FormatPDF.ContentType())
	}
}
