package keyframes

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/moveatlas/moveatlas-backend/internal/clients/localmedia"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// Frame is one kept keyframe, ordered by timestamp.
type Frame struct {
	Path        string
	CutIndex    int
	FrameNumber int
	TimestampMS int
	DiffScore   float64
}

// Extractor reduces a video to the minimum frame set the analyzer needs to
// reason about complete movements.
type Extractor interface {
	Extract(ctx context.Context, videoPath string, workDir string) ([]Frame, error)
}

type Options struct {
	// FPS is the dense sampling rate and doubles as the per-second keep
	// ceiling.
	FPS float64
	// Window is how many trailing diffs feed the adaptive cut threshold.
	Window int
	// K scales the stdev in the cut threshold (mean + K*stdev).
	K float64
	// CutFloor keeps near-static footage from turning noise into cuts when
	// the window stdev collapses toward zero.
	CutFloor float64
	// Workers bounds the concurrent frame decodes.
	Workers int
	// FrameWidth is the exported frame width handed to the analyzer.
	FrameWidth int
}

func (o Options) withDefaults() Options {
	if o.FPS <= 0 {
		o.FPS = 8.0
	}
	if o.Window <= 0 {
		o.Window = 24
	}
	if o.K <= 0 {
		o.K = 3.0
	}
	if o.CutFloor <= 0 {
		o.CutFloor = 8.0
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.FrameWidth <= 0 {
		o.FrameWidth = 512
	}
	return o
}

// minKeepScore floors the per-segment pruning threshold so compression
// shimmer never counts as movement.
const minKeepScore = 4.0

// minCutWindowFill is how many diffs the sliding window needs before the
// adaptive threshold is trusted.
const minCutWindowFill = 8

type extractor struct {
	log   *logger.Logger
	media localmedia.MediaTools
	opts  Options
}

func NewExtractor(log *logger.Logger, media localmedia.MediaTools, opts Options) (Extractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if media == nil {
		return nil, fmt.Errorf("media tools required")
	}
	return &extractor{
		log:   log.With("component", "KeyframeExtractor"),
		media: media,
		opts:  opts.withDefaults(),
	}, nil
}

func (e *extractor) Extract(ctx context.Context, videoPath string, workDir string) ([]Frame, error) {
	if videoPath == "" {
		return nil, fmt.Errorf("videoPath required")
	}
	if workDir == "" {
		return nil, fmt.Errorf("workDir required")
	}

	denseDir := filepath.Join(workDir, "frames_dense")
	keepDir := filepath.Join(workDir, "keyframes")

	paths, err := e.media.ExportFrames(ctx, videoPath, denseDir, localmedia.FrameExportOptions{
		FPS:         e.opts.FPS,
		Width:       e.opts.FrameWidth,
		Format:      "jpg",
		JPEGQuality: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("export frames: %w", err)
	}

	grays, err := e.decodeAll(ctx, paths)
	if err != nil {
		return nil, err
	}

	diffs := computeDiffs(grays)
	cuts := detectCuts(diffs, e.opts.Window, e.opts.K, e.opts.CutFloor)
	picked := selectFrames(grays, diffs, cuts)
	picked = enforceBounds(picked, len(grays), diffs, cuts, e.opts.FPS)

	if err := os.MkdirAll(keepDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir keyframes dir: %w", err)
	}
	frames := make([]Frame, 0, len(picked))
	for _, p := range picked {
		ms := int(math.Round(float64(p.denseIndex) / e.opts.FPS * 1000))
		name := frameName(p.cutIndex, p.denseIndex+1, ms, p.score, ".jpg")
		dest := filepath.Join(keepDir, name)
		if err := os.Rename(paths[p.denseIndex], dest); err != nil {
			return nil, fmt.Errorf("keep frame %d: %w", p.denseIndex, err)
		}
		frames = append(frames, Frame{
			Path:        dest,
			CutIndex:    p.cutIndex,
			FrameNumber: p.denseIndex + 1,
			TimestampMS: ms,
			DiffScore:   p.score,
		})
	}

	e.log.Info("Keyframes selected",
		"dense", len(paths),
		"cuts", len(cuts),
		"kept", len(frames),
	)
	return frames, nil
}

func (e *extractor) decodeAll(ctx context.Context, paths []string) ([]grayFrame, error) {
	grays := make([]grayFrame, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range paths {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			gf, err := loadGrayFrame(paths[i])
			if err != nil {
				return err
			}
			grays[i] = gf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("decode frames: %w", err)
	}
	return grays, nil
}

// computeDiffs scores each dense frame against its predecessor. Index 0
// scores zero.
func computeDiffs(grays []grayFrame) []float64 {
	diffs := make([]float64, len(grays))
	for i := 1; i < len(grays); i++ {
		diffs[i] = meanAbsDiff(grays[i], grays[i-1])
	}
	return diffs
}

// detectCuts returns the dense indices that open a segment, always
// starting with 0. The window resets after each declared cut so the spike
// itself never inflates the running stats.
func detectCuts(diffs []float64, window int, k float64, floorScore float64) []int {
	cuts := []int{0}
	if len(diffs) < 2 {
		return cuts
	}
	recent := make([]float64, 0, window)
	for i := 1; i < len(diffs); i++ {
		if len(recent) >= minCutWindowFill {
			mean, std := meanStd(recent)
			threshold := mean + k*std
			if threshold < floorScore {
				threshold = floorScore
			}
			if diffs[i] > threshold {
				cuts = append(cuts, i)
				recent = recent[:0]
				continue
			}
		}
		recent = append(recent, diffs[i])
		if len(recent) > window {
			recent = recent[1:]
		}
	}
	return cuts
}

type selected struct {
	denseIndex int
	cutIndex   int
	score      float64
}

// selectFrames prunes within each cut-delimited segment: a frame survives
// when it moved enough relative to the previously kept frame. Cut
// boundaries and the overall first and last frames always survive.
func selectFrames(grays []grayFrame, diffs []float64, cuts []int) []selected {
	n := len(grays)
	if n == 0 {
		return nil
	}
	picked := []selected{}
	have := map[int]bool{}
	add := func(idx, cut int, score float64) {
		if have[idx] {
			return
		}
		have[idx] = true
		picked = append(picked, selected{denseIndex: idx, cutIndex: cut, score: score})
	}

	for ci, segStart := range cuts {
		segEnd := n - 1
		if ci+1 < len(cuts) {
			segEnd = cuts[ci+1] - 1
		}
		if segStart > segEnd {
			continue
		}
		add(segStart, ci, diffs[segStart])

		interior := diffs[segStart+1 : segEnd+1]
		mean, std := meanStd(interior)
		threshold := mean + std
		if threshold < minKeepScore {
			threshold = minKeepScore
		}

		lastKept := segStart
		for i := segStart + 1; i <= segEnd; i++ {
			score := meanAbsDiff(grays[i], grays[lastKept])
			if score > threshold {
				add(i, ci, score)
				lastKept = i
			}
		}
	}

	if !have[n-1] {
		add(n-1, cutIndexOf(n-1, cuts), diffs[n-1])
	}

	sort.Slice(picked, func(i, j int) bool { return picked[i].denseIndex < picked[j].denseIndex })
	return picked
}

// enforceBounds applies the rate bounds over the whole video: gaps wider
// than one second get a midpoint frame back, and any one second bucket
// keeps at most fps frames, dropping the lowest scores first.
func enforceBounds(picked []selected, frameCount int, diffs []float64, cuts []int, fps float64) []selected {
	if len(picked) == 0 || fps <= 0 {
		return picked
	}
	have := map[int]bool{}
	for _, p := range picked {
		have[p.denseIndex] = true
	}

	for {
		sort.Slice(picked, func(i, j int) bool { return picked[i].denseIndex < picked[j].denseIndex })
		inserted := false
		for i := 1; i < len(picked); i++ {
			a := picked[i-1].denseIndex
			b := picked[i].denseIndex
			if float64(b-a)/fps <= 1.0 {
				continue
			}
			mid := (a + b) / 2
			if mid == a || have[mid] {
				continue
			}
			picked = append(picked, selected{denseIndex: mid, cutIndex: cutIndexOf(mid, cuts), score: diffs[mid]})
			have[mid] = true
			inserted = true
			break
		}
		if !inserted {
			break
		}
	}

	maxPerSec := int(fps + 0.5)
	if maxPerSec < 1 {
		maxPerSec = 1
	}
	protected := func(idx int) bool {
		if idx == 0 || idx == frameCount-1 {
			return true
		}
		for _, c := range cuts {
			if c == idx {
				return true
			}
		}
		return false
	}

	buckets := map[int][]selected{}
	for _, p := range picked {
		sec := int(float64(p.denseIndex) / fps)
		buckets[sec] = append(buckets[sec], p)
	}
	out := make([]selected, 0, len(picked))
	for _, bucket := range buckets {
		if len(bucket) > maxPerSec {
			sort.Slice(bucket, func(i, j int) bool { return bucket[i].score < bucket[j].score })
			trimmed := make([]selected, 0, len(bucket))
			over := len(bucket) - maxPerSec
			for _, p := range bucket {
				if over > 0 && !protected(p.denseIndex) {
					over--
					continue
				}
				trimmed = append(trimmed, p)
			}
			bucket = trimmed
		}
		out = append(out, bucket...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].denseIndex < out[j].denseIndex })
	return out
}

func cutIndexOf(idx int, cuts []int) int {
	ci := 0
	for i, c := range cuts {
		if c <= idx {
			ci = i
		}
	}
	return ci
}
