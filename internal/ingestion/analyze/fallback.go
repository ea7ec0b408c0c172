package analyze

import (
	"context"
	"fmt"
	"strings"

	"github.com/moveatlas/moveatlas-backend/internal/ingestion/keyframes"
	"github.com/moveatlas/moveatlas-backend/internal/ingestion/transcribe"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// fallbackKeywords are the movements the degraded path can still name
// with some certainty from audio alone. Order matters: the first match in
// a transcript span wins, so more specific phrases precede generic ones.
var fallbackKeywords = []string{
	"push-up", "squat", "plank", "lunge", "burpee", "jumping jack",
	"mountain climber", "sit-up", "crunch", "bridge", "downward dog",
	"warrior", "tree pose", "sun salutation",
}

// minFallbackSpanSec matches the normalizer's duration floor; emitting
// shorter candidates would only get them dropped downstream.
const minFallbackSpanSec = 3.5

// fallbackConfidence sits exactly at the normalizer's confidence floor:
// keyword hits survive normalization but lose every merge against a real
// analyzer candidate.
const fallbackConfidence = 0.3

type fallbackAnalyzer struct {
	log *logger.Logger
}

// NewFallback returns the keyword analyzer the orchestrator degrades to
// when the configured analyzer fails. It reads only the transcript; frames
// and context are ignored.
func NewFallback(log *logger.Logger) Analyzer {
	return &fallbackAnalyzer{log: log.With("analyzer", "keyword_fallback")}
}

func (a *fallbackAnalyzer) Name() string { return "keyword_fallback" }

func (a *fallbackAnalyzer) Analyze(ctx context.Context, _ []keyframes.Frame, transcript []transcribe.Segment, _ Context) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	level := 5
	intensity := 5
	var out []Candidate
	for _, seg := range transcript {
		if seg.End-seg.Start < minFallbackSpanSec {
			continue
		}
		text := strings.ToLower(seg.Text)
		for _, kw := range fallbackKeywords {
			if !strings.Contains(text, kw) {
				continue
			}
			plain := strings.ReplaceAll(kw, "-", " ")
			out = append(out, Candidate{
				Name:         titleCase(plain),
				Start:        seg.Start,
				End:          seg.End,
				HowTo:        fmt.Sprintf("Perform %s as demonstrated in the video", plain),
				Benefits:     "Improves strength and fitness",
				Counteracts:  "Sedentary lifestyle",
				RoundsReps:   "Follow video instructions",
				FitnessLevel: &level,
				Intensity:    &intensity,
				Confidence:   fallbackConfidence,
			})
			break
		}
	}
	a.log.Info("keyword fallback produced candidates", "count", len(out), "transcript_segments", len(transcript))
	return out, nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
