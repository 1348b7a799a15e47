package transcribe

import (
	"strings"

	"transcription-studio/internal/domain"
)

// DefaultPrompt is sent when the operator has not changed any prompt option.
const DefaultPrompt = "Please preserve all English words exactly as spoken"

// BuildPrompt assembles the instruction text from the operator's prompt options.
func BuildPrompt(preserveEnglish bool, format domain.OutputFormat) string {
	var sb strings.Builder
	if preserveEnglish {
		sb.WriteString("Please preserve all English words exactly as spoken. ")
	}
	if format == domain.OutputFormatPlain {
		sb.WriteString("Generate plain text without timestamps. ")
	} else {
		sb.WriteString("Generate output with timestamps in VTT format. ")
	}
	return strings.TrimSpace(sb.String())
}
