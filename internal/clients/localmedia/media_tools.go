package localmedia

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
	"github.com/moveatlas/moveatlas-backend/internal/utils"
)

// MediaTools wraps the system binaries every pipeline stage leans on:
//
// REQUIRED BINARIES in worker runtime:
// - ffmpeg for audio extraction, dense frame export, and clip cutting
// - ffprobe for container/stream inspection
//
// Calls are synchronous and should run from worker pipelines, not request
// handlers.
type MediaTools interface {
	AssertReady(ctx context.Context) error

	Probe(ctx context.Context, mediaPath string) (*ProbeResult, error)
	ExtractAudio(ctx context.Context, videoPath string, outPath string, opts AudioExtractOptions) (string, error)
	ExportFrames(ctx context.Context, videoPath string, outDir string, opts FrameExportOptions) ([]string, error)
	CutClip(ctx context.Context, videoPath string, startSec, endSec float64, outPath string) error
}

type ProbeResult struct {
	DurationSeconds float64
	SizeBytes       int64
	HasVideo        bool
	HasAudio        bool
	Width           int
	Height          int
	VideoCodec      string
	Container       string
}

type AudioExtractOptions struct {
	SampleRateHz int    // e.g., 16000
	Channels     int    // 1
	Format       string // "wav" or "flac"
}

type FrameExportOptions struct {
	FPS         float64 // dense sampling rate, e.g. 8.0
	Width       int     // 0 keep original; else scale width and keep aspect
	Format      string  // "jpg" or "png"
	JPEGQuality int     // 2..31 (lower is higher quality) for ffmpeg -q:v
	MaxFrames   int     // safety cap
}

type mediaTools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string

	defaultTimeout time.Duration
}

func NewMediaTools(log *logger.Logger) MediaTools {
	mtLog := log.With("client", "MediaTools")
	return &mediaTools{
		log:            mtLog,
		ffmpegPath:     utils.GetEnv("FFMPEG_PATH", "ffmpeg", mtLog),
		ffprobePath:    utils.GetEnv("FFPROBE_PATH", "ffprobe", mtLog),
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *mediaTools) AssertReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	return nil
}

type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func (m *mediaTools) Probe(ctx context.Context, mediaPath string) (*ProbeResult, error) {
	if mediaPath == "" {
		return nil, fmt.Errorf("mediaPath required")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		mediaPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", mediaPath, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("ffprobe output unparseable: %w", err)
	}

	result := &ProbeResult{Container: parsed.Format.FormatName}
	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			result.DurationSeconds = d
		}
	}
	if parsed.Format.Size != "" {
		if sz, err := strconv.ParseInt(parsed.Format.Size, 10, 64); err == nil {
			result.SizeBytes = sz
		}
	}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			result.HasVideo = true
			if result.VideoCodec == "" {
				result.VideoCodec = s.CodecName
			}
			if s.Width > result.Width {
				result.Width = s.Width
				result.Height = s.Height
			}
		case "audio":
			result.HasAudio = true
		}
	}
	return result, nil
}

func (m *mediaTools) ExtractAudio(ctx context.Context, videoPath string, outPath string, opts AudioExtractOptions) (string, error) {
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	sr := opts.SampleRateHz
	if sr <= 0 {
		sr = 16000
	}
	ch := opts.Channels
	if ch <= 0 {
		ch = 1
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "wav"
	}
	if format != "wav" && format != "flac" {
		return "", fmt.Errorf("unsupported audio format: %s", format)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	// ffmpeg -i in.mp4 -vn -ac 1 -ar 16000 -f wav out.wav
	args := []string{
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", strconv.Itoa(ch),
		"-ar", strconv.Itoa(sr),
		"-f", format,
		outPath,
	}
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, string(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("audio output missing at %s", outPath)
	}
	return outPath, nil
}

// ExportFrames writes a constant-rate frame dump the keyframe selector
// consumes. Frame i (1-based in the filename) sits at (i-1)/FPS seconds.
func (m *mediaTools) ExportFrames(ctx context.Context, videoPath string, outDir string, opts FrameExportOptions) ([]string, error) {
	if videoPath == "" {
		return nil, fmt.Errorf("videoPath required")
	}
	if outDir == "" {
		return nil, fmt.Errorf("outDir required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "jpg"
	}
	if format != "jpg" && format != "jpeg" && format != "png" {
		return nil, fmt.Errorf("unsupported frame format: %s", format)
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = 8.0
	}
	maxFrames := opts.MaxFrames
	if maxFrames <= 0 {
		maxFrames = 2400 // 5 minutes at 8 fps
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	vf := fmt.Sprintf("fps=%0.6f", fps)
	if opts.Width > 0 {
		vf = vf + fmt.Sprintf(",scale=%d:-1", opts.Width)
	}

	outPattern := filepath.Join(outDir, "frame_%06d."+format)
	args := []string{"-y", "-i", videoPath, "-vf", vf}
	if format == "jpg" || format == "jpeg" {
		q := opts.JPEGQuality
		if q <= 0 {
			q = 3
		}
		args = append(args, "-q:v", strconv.Itoa(q))
	}
	args = append(args, outPattern)

	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg export frames failed: %w; out=%s", err, string(out))
	}

	frames, _ := globSorted(outDir, `^frame_\d+\.(png|jpe?g)$`)
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames produced by ffmpeg; out=%s", string(out))
	}
	if len(frames) > maxFrames {
		frames = frames[:maxFrames]
	}
	return frames, nil
}

// CutClip re-encodes [startSec, endSec) into a self-contained file. Stream
// copy would snap to keyframe boundaries and miss the duration tolerance
// the materializer verifies, so the cut pays for a fast re-encode.
func (m *mediaTools) CutClip(ctx context.Context, videoPath string, startSec, endSec float64, outPath string) error {
	if videoPath == "" {
		return fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return fmt.Errorf("outPath required")
	}
	if endSec <= startSec {
		return fmt.Errorf("invalid clip range [%0.3f, %0.3f]", startSec, endSec)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	duration := endSec - startSec
	args := []string{
		"-y",
		"-ss", formatSeconds(startSec),
		"-i", videoPath,
		"-t", formatSeconds(duration),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-avoid_negative_ts", "make_zero",
		outPath,
	}
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg cut clip failed: %w; out=%s", err, string(out))
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func globSorted(dir string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if re.MatchString(strings.ToLower(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
