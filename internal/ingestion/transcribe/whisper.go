package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/moveatlas/moveatlas-backend/internal/clients/openai"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// whisperTranscriber rides the OpenAI audio transcription endpoint.
type whisperTranscriber struct {
	log *logger.Logger
	ai  openai.Client
}

func NewWhisperTranscriber(log *logger.Logger, ai openai.Client) (Transcriber, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	return &whisperTranscriber{log: log.With("transcriber", "whisper"), ai: ai}, nil
}

func (t *whisperTranscriber) Name() string { return "whisper" }

func (t *whisperTranscriber) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	raw, err := t.ai.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	out := make([]Segment, 0, len(raw))
	for _, s := range raw {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, Segment{Start: s.Start, End: s.End, Text: text})
	}
	t.log.Debug("Transcription complete", "segments", len(out))
	return sortAscending(out), nil
}
