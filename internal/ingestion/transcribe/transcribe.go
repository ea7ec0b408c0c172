package transcribe

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Segment is one time-aligned transcript span, ascending by Start.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcriber turns an extracted audio track into transcript segments.
// Implementations are pluggable; the orchestrator treats any failure as a
// degraded (empty) transcript rather than a pipeline failure.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string) ([]Segment, error)
}

// JoinText concatenates segment texts with single spaces.
func JoinText(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(text)
	}
	return b.String()
}

// Usable reports whether a transcript carries enough signal to steer the
// analyzer. Music-only or emoji-only captions come back as a handful of
// repeated tokens and must not drive exercise detection.
func Usable(segments []Segment) bool {
	joined := JoinText(segments)
	if len(joined) < 20 {
		return false
	}
	return distinctAlphaTokens(joined) >= 3
}

func distinctAlphaTokens(text string) int {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := map[string]bool{}
	for _, tok := range tokens {
		if tok != "" {
			seen[tok] = true
		}
	}
	return len(seen)
}

// sortAscending orders segments by start time in place. Providers mostly
// return ordered output already; this pins the contract.
func sortAscending(segments []Segment) []Segment {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
	return segments
}
