package captions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"transcription-studio/internal/domain"
)

// Format names an export representation of a caption.
type Format string

const (
	FormatVTT  Format = "vtt"
	FormatSRT  Format = "srt"
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a user-supplied export format.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatVTT, FormatSRT, FormatText, FormatJSON, FormatPDF:
		return f, nil
	case "":
		return FormatVTT, nil
	default:
		return "", fmt.Errorf("unsupported caption format: %s", raw)
	}
}

// Render converts a caption into the text formats. PDF is handled by WritePDF.
func Render(caption domain.Caption, format Format) (string, error) {
	switch format {
	case FormatVTT:
		return VTT(caption), nil
	case FormatSRT:
		return SRT(caption), nil
	case FormatText:
		return PlainText(caption), nil
	case FormatJSON:
		data, err := json.MarshalIndent(caption, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode caption json: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("format %s is not a text format", format)
	}
}

// VTT renders a WEBVTT document.
func VTT(caption domain.Caption) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	for _, seg := range caption.Segments {
		fmt.Fprintf(&sb, "%s --> %s\n%s\n\n", Timestamp(seg.Start, '.'), Timestamp(seg.End, '.'), strings.TrimSpace(seg.Text))
	}
	return sb.String()
}

// SRT renders a numbered SubRip document.
func SRT(caption domain.Caption) string {
	var sb strings.Builder
	for i, seg := range caption.Segments {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n", i+1, Timestamp(seg.Start, ','), Timestamp(seg.End, ','), strings.TrimSpace(seg.Text))
	}
	return sb.String()
}

// PlainText joins segment text with spaces.
func PlainText(caption domain.Caption) string {
	parts := make([]string, 0, len(caption.Segments))
	for _, seg := range caption.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Timestamp formats seconds as HH:MM:SS<sep>mmm.
func Timestamp(seconds float64, sep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	hours := total / 3_600_000
	minutes := total % 3_600_000 / 60_000
	secs := total % 60_000 / 1000
	millis := total % 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, sep, millis)
}

// ParseVTT reads cues from a WEBVTT document. Cue identifiers and settings are ignored.
func ParseVTT(content string) (domain.Caption, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	segments := []domain.Segment{}

	var current *domain.Segment
	var lines []string
	flush := func() {
		if current != nil {
			current.Text = strings.TrimSpace(strings.Join(lines, " "))
			segments = append(segments, *current)
		}
		current = nil
		lines = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.Contains(line, "-->"):
			flush()
			parts := strings.SplitN(line, "-->", 2)
			start, err := parseTimestamp(parts[0])
			if err != nil {
				return domain.Caption{}, err
			}
			endField := strings.Fields(parts[1])
			if len(endField) == 0 {
				return domain.Caption{}, fmt.Errorf("cue without end time: %q", line)
			}
			end, err := parseTimestamp(endField[0])
			if err != nil {
				return domain.Caption{}, err
			}
			current = &domain.Segment{Start: start, End: end}
		case current != nil:
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.Caption{}, fmt.Errorf("read vtt: %w", err)
	}
	flush()

	return domain.Caption{Segments: segments}, nil
}

// parseTimestamp accepts HH:MM:SS.mmm and MM:SS.mmm (comma or dot separators).
func parseTimestamp(raw string) (float64, error) {
	value := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid cue timestamp: %q", raw)
	}

	total := 0.0
	for _, part := range parts[:len(parts)-1] {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid cue timestamp: %q", raw)
		}
		total = total*60 + float64(n)
	}
	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cue timestamp: %q", raw)
	}
	return total*60 + secs, nil
}
