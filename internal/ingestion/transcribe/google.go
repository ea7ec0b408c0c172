package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/moveatlas/moveatlas-backend/internal/clients/gcp"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// googleTranscriber rides Google Cloud Speech-to-Text. The pipeline hands
// it the mono 16k audio the extractor produced.
type googleTranscriber struct {
	log          *logger.Logger
	speech       gcp.Speech
	sampleRateHz int
}

func NewGoogleTranscriber(log *logger.Logger, speech gcp.Speech) (Transcriber, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if speech == nil {
		return nil, fmt.Errorf("speech client required")
	}
	return &googleTranscriber{
		log:          log.With("transcriber", "google"),
		speech:       speech,
		sampleRateHz: 16000,
	}, nil
}

func (t *googleTranscriber) Name() string { return "google" }

func (t *googleTranscriber) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	res, err := t.speech.TranscribeAudioFile(ctx, audioPath, t.sampleRateHz)
	if err != nil {
		return nil, err
	}
	out := make([]Segment, 0, len(res.Segments))
	for _, s := range res.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, Segment{Start: s.Start, End: s.End, Text: text})
	}
	if len(out) == 0 && strings.TrimSpace(res.Text) != "" {
		out = append(out, Segment{Text: strings.TrimSpace(res.Text)})
	}
	t.log.Debug("Transcription complete", "segments", len(out))
	return sortAscending(out), nil
}
