package gcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/moveatlas/moveatlas-backend/internal/pkg/ctxutil"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// Speech transcribes extracted audio tracks through Google Cloud
// Speech-to-Text. Audio is sent inline, which caps usable input at roughly
// ten megabytes; the pipeline extracts mono 16k FLAC so short-form fitness
// videos stay well inside that.
type Speech interface {
	TranscribeAudioFile(ctx context.Context, audioPath string, sampleRateHz int) (*SpeechResult, error)
	Close() error
}

type SpeechSegment struct {
	Start float64
	End   float64
	Text  string
}

type SpeechResult struct {
	Text     string
	Segments []SpeechSegment
}

const maxInlineAudioBytes = 10 << 20

type speechService struct {
	log        *logger.Logger
	client     *speech.Client
	language   string
	model      string
	maxRetries int
}

func NewSpeech(log *logger.Logger) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	language := strings.TrimSpace(os.Getenv("GOOGLE_SPEECH_LANGUAGE"))
	if language == "" {
		language = "en-US"
	}
	model := strings.TrimSpace(os.Getenv("GOOGLE_SPEECH_MODEL"))
	if model == "" {
		model = "video"
	}

	c, err := speech.NewClient(context.Background(), clientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &speechService{
		log:        log.With("client", "gcp.Speech"),
		client:     c,
		language:   language,
		model:      model,
		maxRetries: 4,
	}, nil
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) TranscribeAudioFile(ctx context.Context, audioPath string, sampleRateHz int) (*SpeechResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return &SpeechResult{}, nil
	}
	if len(audio) > maxInlineAudioBytes {
		return nil, fmt.Errorf("audio %s is %d bytes, over the inline recognize limit", filepath.Base(audioPath), len(audio))
	}

	if sampleRateHz <= 0 {
		sampleRateHz = 16000
	}
	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               s.language,
			Model:                      s.model,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			Encoding:                   encodingForPath(audioPath),
			SampleRateHertz:            int32(sampleRateHz),
			AudioChannelCount:          1,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := s.recognizeWithRetry(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize: %w", err)
	}
	return parseRecognizeResponse(resp), nil
}

func encodingForPath(audioPath string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(audioPath)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func (s *speechService) recognizeWithRetry(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err == nil {
			var resp *speechpb.LongRunningRecognizeResponse
			resp, err = op.Wait(ctx)
			if err == nil {
				return resp, nil
			}
		}
		last = err

		code := status.Code(err)
		if code != codes.Unavailable && code != codes.ResourceExhausted && code != codes.DeadlineExceeded {
			return nil, err
		}
		if attempt == s.maxRetries {
			break
		}
		s.log.Warn("Speech recognize retrying",
			"attempt", attempt+1,
			"code", code.String(),
			"sleep", backoff.String(),
		)
		if sErr := ctxutil.Sleep(ctx, backoff); sErr != nil {
			return nil, sErr
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, last
}

type timedWord struct {
	word  string
	start float64
	end   float64
}

// parseRecognizeResponse flattens result alternatives into a full text plus
// ~10 second word-aligned spans. Without word offsets the whole transcript
// collapses into a single zero-timed segment.
func parseRecognizeResponse(resp *speechpb.LongRunningRecognizeResponse) *SpeechResult {
	out := &SpeechResult{}
	if resp == nil || len(resp.Results) == 0 {
		return out
	}

	words := []timedWord{}
	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(text)

		for _, w := range alt.Words {
			if w == nil || strings.TrimSpace(w.Word) == "" {
				continue
			}
			words = append(words, timedWord{
				word:  w.Word,
				start: durToSec(w.StartTime),
				end:   durToSec(w.EndTime),
			})
		}
	}
	out.Text = strings.TrimSpace(full.String())

	if len(words) == 0 {
		if out.Text != "" {
			out.Segments = []SpeechSegment{{Text: out.Text}}
		}
		return out
	}
	out.Segments = groupWordsByTime(words, 10.0)
	return out
}

func groupWordsByTime(words []timedWord, windowSec float64) []SpeechSegment {
	if windowSec <= 0 {
		windowSec = 10
	}
	segs := []SpeechSegment{}
	curStart := words[0].start
	curEnd := words[0].end
	var buf strings.Builder

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text == "" {
			return
		}
		segs = append(segs, SpeechSegment{Start: curStart, End: curEnd, Text: text})
		buf.Reset()
	}

	for _, w := range words {
		if (w.start-curStart) >= windowSec && buf.Len() > 0 {
			flush()
			curStart = w.start
			curEnd = w.end
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w.word)
		if w.end > curEnd {
			curEnd = w.end
		}
	}
	flush()
	return segs
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
