package analyze

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/moveatlas/moveatlas-backend/internal/clients/openai"
	"github.com/moveatlas/moveatlas-backend/internal/ingestion/keyframes"
	"github.com/moveatlas/moveatlas-backend/internal/ingestion/transcribe"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// maxPromptFrames caps how many keyframes ride along in one call. Dense
// videos get an even subsample so coverage survives the cap.
const maxPromptFrames = 24

type openaiAnalyzer struct {
	log *logger.Logger
	ai  openai.Client
}

func NewOpenAIAnalyzer(log *logger.Logger, ai openai.Client) (Analyzer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &openaiAnalyzer{log: log.With("analyzer", "openai"), ai: ai}, nil
}

func (a *openaiAnalyzer) Name() string { return "openai" }

func (a *openaiAnalyzer) Analyze(ctx context.Context, frames []keyframes.Frame, transcript []transcribe.Segment, meta Context) ([]Candidate, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to analyze")
	}
	sampled := subsampleFrames(frames, maxPromptFrames)

	images := make([]openai.ImageInput, 0, len(sampled))
	for _, f := range sampled {
		dataURL, err := frameDataURL(f.Path)
		if err != nil {
			return nil, fmt.Errorf("encode frame %s: %w", f.Path, err)
		}
		images = append(images, openai.ImageInput{ImageURL: dataURL, Detail: "low"})
	}

	user := buildUserPrompt(sampled, transcript, meta)
	raw, err := a.ai.GenerateJSONWithImages(ctx, analyzerSystemPrompt, user, images, "exercise_segments", analyzerSchema())
	if err != nil {
		return nil, err
	}

	candidates, err := parseCandidates(raw)
	if err != nil {
		return nil, err
	}
	a.log.Info("Analysis complete",
		"frames_sent", len(sampled),
		"candidates", len(candidates),
	)
	return candidates, nil
}

// subsampleFrames keeps at most limit frames, evenly spaced, always
// including the first and last.
func subsampleFrames(frames []keyframes.Frame, limit int) []keyframes.Frame {
	if limit <= 0 || len(frames) <= limit {
		return frames
	}
	out := make([]keyframes.Frame, 0, limit)
	step := float64(len(frames)-1) / float64(limit-1)
	prev := -1
	for i := 0; i < limit; i++ {
		idx := int(float64(i)*step + 0.5)
		if idx >= len(frames) {
			idx = len(frames) - 1
		}
		if idx == prev {
			continue
		}
		out = append(out, frames[idx])
		prev = idx
	}
	return out
}

func frameDataURL(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw), nil
}

type candidatePayload struct {
	Exercises []struct {
		Name         string   `json:"name"`
		Start        *float64 `json:"start_time"`
		End          *float64 `json:"end_time"`
		HowTo        *string  `json:"how_to"`
		Benefits     *string  `json:"benefits"`
		Counteracts  *string  `json:"counteracts"`
		RoundsReps   *string  `json:"rounds_reps"`
		FitnessLevel *int     `json:"fitness_level"`
		Intensity    *int     `json:"intensity"`
		Confidence   *float64 `json:"confidence"`
	} `json:"exercises"`
}

// parseCandidates lifts the structured output into typed candidates.
// Entries missing a name or timestamps are dropped here; everything else
// is the normalizer's call.
func parseCandidates(raw map[string]any) ([]Candidate, error) {
	blob, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("remarshal analyzer output: %w", err)
	}
	var payload candidatePayload
	if err := json.Unmarshal(blob, &payload); err != nil {
		return nil, fmt.Errorf("analyzer output shape: %w", err)
	}

	out := make([]Candidate, 0, len(payload.Exercises))
	for _, e := range payload.Exercises {
		if e.Name == "" || e.Start == nil || e.End == nil {
			continue
		}
		c := Candidate{
			Name:         e.Name,
			Start:        *e.Start,
			End:          *e.End,
			FitnessLevel: e.FitnessLevel,
			Intensity:    e.Intensity,
		}
		if e.HowTo != nil {
			c.HowTo = *e.HowTo
		}
		if e.Benefits != nil {
			c.Benefits = *e.Benefits
		}
		if e.Counteracts != nil {
			c.Counteracts = *e.Counteracts
		}
		if e.RoundsReps != nil {
			c.RoundsReps = *e.RoundsReps
		}
		if e.Confidence != nil {
			c.Confidence = *e.Confidence
		}
		if c.Confidence < 0 {
			c.Confidence = 0
		}
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		out = append(out, c)
	}
	return out, nil
}
