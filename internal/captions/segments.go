package captions

import (
	"regexp"
	"strings"

	"transcription-studio/internal/domain"
)

// SyntheticSegmentSeconds is the duration assigned to each sentence of flat text.
const SyntheticSegmentSeconds = 5.0

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

// Chunk is a pre-segmented backend cue with a [start, end] timestamp pair.
type Chunk struct {
	Text      string     `json:"text"`
	Timestamp [2]float64 `json:"timestamp"`
}

// FromText splits flat text on sentence boundaries into consecutive 5 second segments.
// Trailing text without terminal punctuation becomes its own segment.
func FromText(text string) domain.Caption {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Caption{Segments: []domain.Segment{}}
	}

	var sentences []string
	last := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}

	segments := make([]domain.Segment, 0, len(sentences))
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		index := float64(len(segments))
		segments = append(segments, domain.Segment{
			Text:  sentence,
			Start: index * SyntheticSegmentSeconds,
			End:   (index + 1) * SyntheticSegmentSeconds,
		})
	}
	return domain.Caption{Segments: segments}
}

// FromChunks maps timestamped chunks segment-for-segment, skipping chunks with no text.
func FromChunks(chunks []Chunk) domain.Caption {
	segments := make([]domain.Segment, 0, len(chunks))
	for _, chunk := range chunks {
		text := strings.TrimSpace(chunk.Text)
		if text == "" {
			continue
		}
		segments = append(segments, domain.Segment{
			Text:  text,
			Start: chunk.Timestamp[0],
			End:   chunk.Timestamp[1],
		})
	}
	return domain.Caption{Segments: segments}
}
