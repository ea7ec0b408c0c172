package analyze

import (
	"context"

	"github.com/moveatlas/moveatlas-backend/internal/ingestion/keyframes"
	"github.com/moveatlas/moveatlas-backend/internal/ingestion/transcribe"
)

// Candidate is one raw exercise segment proposed by an analyzer. Times are
// in seconds relative to the media file. The normalizer owns validation;
// analyzers only promise confidence in [0,1].
type Candidate struct {
	Name         string  `json:"name"`
	Start        float64 `json:"start_time"`
	End          float64 `json:"end_time"`
	HowTo        string  `json:"how_to,omitempty"`
	Benefits     string  `json:"benefits,omitempty"`
	Counteracts  string  `json:"counteracts,omitempty"`
	RoundsReps   string  `json:"rounds_reps,omitempty"`
	FitnessLevel *int    `json:"fitness_level,omitempty"`
	Intensity    *int    `json:"intensity,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// Context carries the non-visual signal for one media item. CarouselIndex
// is 1-based; FirstIsHook flags the common pattern where a carousel opener
// is an attention hook rather than a full demonstration.
type Context struct {
	Platform      string
	CarouselIndex int
	CarouselCount int
	FirstIsHook   bool
	Title         string
	Description   string
	Tags          []string
	Uploader      string
	DurationSec   float64
}

// Analyzer proposes exercise segments from keyframes plus transcript plus
// context. Transcript may be empty when the quality gate rejected it.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, frames []keyframes.Frame, transcript []transcribe.Segment, meta Context) ([]Candidate, error)
}
