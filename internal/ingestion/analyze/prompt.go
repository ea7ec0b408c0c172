package analyze

import (
	"fmt"
	"strings"

	"github.com/moveatlas/moveatlas-backend/internal/ingestion/keyframes"
	"github.com/moveatlas/moveatlas-backend/internal/ingestion/transcribe"
)

const analyzerSystemPrompt = `You are a fitness video analyst. You receive keyframes sampled from one video, optionally a transcript, and posting context. Identify every distinct exercise or movement demonstrated long enough to follow along.

Rules you must never break:
- Only report segments at least 3.5 seconds long.
- Never emit overlapping segments for the same movement. When a continuous flow is shown, report either the flow or its component movements, not both.
- If no exercise is demonstrated, return an empty list. Do not invent movements to fill the list.
- confidence is a number between 0 and 1 reflecting how sure you are the segment shows the named exercise at those timestamps.

For each exercise fill what the video supports and leave the rest empty: how_to (second-person coaching steps), benefits, counteracts (what the movement compensates for, for example "prolonged sitting"), rounds_reps (sets, reps or holds if stated or visible), fitness_level and intensity on a 0 to 10 scale.`

// analyzerSchema is the strict structured-output contract. Optional fields
// are nullable rather than omitted because strict mode requires every key.
func analyzerSchema() map[string]any {
	optionalString := map[string]any{"type": []string{"string", "null"}}
	optionalInt := map[string]any{
		"type":    []string{"integer", "null"},
		"minimum": 0,
		"maximum": 10,
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"exercises"},
		"properties": map[string]any{
			"exercises": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required": []string{
						"name", "start_time", "end_time", "how_to", "benefits",
						"counteracts", "rounds_reps", "fitness_level", "intensity",
						"confidence",
					},
					"properties": map[string]any{
						"name":          map[string]any{"type": "string", "maxLength": 200},
						"start_time":    map[string]any{"type": "number"},
						"end_time":      map[string]any{"type": "number"},
						"how_to":        optionalString,
						"benefits":      optionalString,
						"counteracts":   optionalString,
						"rounds_reps":   optionalString,
						"fitness_level": optionalInt,
						"intensity":     optionalInt,
						"confidence": map[string]any{
							"type":    "number",
							"minimum": 0,
							"maximum": 1,
						},
					},
				},
			},
		},
	}
}

func buildUserPrompt(frames []keyframes.Frame, transcript []transcribe.Segment, meta Context) string {
	var b strings.Builder

	b.WriteString("POST CONTEXT\n")
	if meta.Platform != "" {
		fmt.Fprintf(&b, "platform: %s\n", meta.Platform)
	}
	if meta.CarouselCount > 1 {
		fmt.Fprintf(&b, "carousel item %d of %d\n", meta.CarouselIndex, meta.CarouselCount)
		if meta.FirstIsHook && meta.CarouselIndex == 1 {
			b.WriteString("note: the first carousel item is often a hook or teaser rather than a full demonstration; if it only teases, return an empty list\n")
		}
	}
	if meta.Title != "" {
		fmt.Fprintf(&b, "title: %s\n", meta.Title)
	}
	if meta.Description != "" {
		fmt.Fprintf(&b, "description: %s\n", truncate(meta.Description, 1200))
	}
	if len(meta.Tags) > 0 {
		fmt.Fprintf(&b, "tags: %s\n", strings.Join(meta.Tags, ", "))
	}
	if meta.Uploader != "" {
		fmt.Fprintf(&b, "uploader: %s\n", meta.Uploader)
	}
	if meta.DurationSec > 0 {
		fmt.Fprintf(&b, "video duration: %.1f seconds\n", meta.DurationSec)
	}

	if len(transcript) > 0 {
		b.WriteString("\nTRANSCRIPT\n")
		for _, s := range transcript {
			text := strings.TrimSpace(s.Text)
			if text == "" {
				continue
			}
			if s.End > s.Start {
				fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", s.Start, s.End, text)
			} else {
				fmt.Fprintf(&b, "%s\n", text)
			}
		}
	} else {
		b.WriteString("\nTRANSCRIPT\nnone usable; rely on the frames\n")
	}

	b.WriteString("\nFRAMES\n")
	fmt.Fprintf(&b, "%d keyframes follow in order. Frame timestamps in milliseconds: ", len(frames))
	for i, f := range frames {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", f.TimestampMS)
	}
	b.WriteString("\nFrames from the same cut share a camera setup; a cut change often separates different exercises.\n")

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
