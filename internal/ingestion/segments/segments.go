package segments

import (
	"math"
	"sort"

	"github.com/moveatlas/moveatlas-backend/internal/ingestion/analyze"
)

// The normalizer turns raw analyzer candidates into the final segment set
// for one media file. Every rule runs in a fixed order so the outcome is
// deterministic regardless of which analyzer produced the candidates:
// coerce, clip and enforce the duration floor, collapse near-duplicate
// starts, consolidate heavy overlaps, extend a lone partial segment,
// filter on confidence, and sort by start.

const (
	// MinDuration is the shortest segment worth clipping; anything under
	// it cannot show a followable movement.
	MinDuration = 3.5
	// nearStartWindow collapses candidates whose starts sit within it;
	// analyzers frequently emit the same movement twice with slightly
	// shifted boundaries.
	nearStartWindow = 3.0
	// overlapIoU is the intersection-over-union above which two segments
	// count as the same movement.
	overlapIoU = 0.5
	// extendCoverage is the fraction of the video a lone candidate must
	// cover before it is left alone; below it the segment grows to the
	// whole video.
	extendCoverage = 0.8
	// MinConfidence drops weak candidates after all merging, so a weak
	// duplicate can still strengthen a strong survivor's claim.
	MinConfidence = 0.3
)

// Normalize applies the full rule set against a video of duration seconds.
// The input slice is not modified.
func Normalize(candidates []analyze.Candidate, duration float64) []analyze.Candidate {
	out := coerce(candidates)
	out = clipAndFloor(out, duration)
	out = collapseNearStarts(out)
	out = consolidateOverlaps(out)
	out = extendLoneSegment(out, duration)
	out = filterConfidence(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// coerce rejects candidates whose timestamps are not finite numbers.
func coerce(in []analyze.Candidate) []analyze.Candidate {
	out := make([]analyze.Candidate, 0, len(in))
	for _, c := range in {
		if !finite(c.Start) || !finite(c.End) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clipAndFloor clamps segments into [0, duration] and drops anything that
// comes out shorter than the duration floor. A non-positive duration means
// the probe could not measure the video; clamping then only floors at zero.
func clipAndFloor(in []analyze.Candidate, duration float64) []analyze.Candidate {
	out := make([]analyze.Candidate, 0, len(in))
	for _, c := range in {
		if c.Start < 0 {
			c.Start = 0
		}
		if duration > 0 && c.End > duration {
			c.End = duration
		}
		if c.End-c.Start < MinDuration {
			continue
		}
		out = append(out, c)
	}
	return out
}

// collapseNearStarts merges candidates whose starts differ by less than
// the window, keeping the better of each colliding pair.
func collapseNearStarts(in []analyze.Candidate) []analyze.Candidate {
	sorted := sortedByStart(in)
	out := make([]analyze.Candidate, 0, len(sorted))
	for _, c := range sorted {
		idx := -1
		for i, kept := range out {
			if math.Abs(c.Start-kept.Start) < nearStartWindow {
				idx = i
				break
			}
		}
		if idx == -1 {
			out = append(out, c)
			continue
		}
		if better(c, out[idx]) {
			out[idx] = c
		}
	}
	return out
}

// consolidateOverlaps merges candidates whose ranges overlap more than
// the IoU threshold.
func consolidateOverlaps(in []analyze.Candidate) []analyze.Candidate {
	sorted := sortedByStart(in)
	out := make([]analyze.Candidate, 0, len(sorted))
	for _, c := range sorted {
		idx := -1
		for i, kept := range out {
			if iou(c, kept) > overlapIoU {
				idx = i
				break
			}
		}
		if idx == -1 {
			out = append(out, c)
			continue
		}
		if better(c, out[idx]) {
			out[idx] = c
		}
	}
	return out
}

func iou(a, b analyze.Candidate) float64 {
	interStart := math.Max(a.Start, b.Start)
	interEnd := math.Min(a.End, b.End)
	inter := interEnd - interStart
	if inter <= 0 {
		return 0
	}
	union := math.Max(a.End, b.End) - math.Min(a.Start, b.Start)
	if union <= 0 {
		return 0
	}
	return inter / union
}

// better decides which of two colliding candidates survives: higher
// confidence first, then longer duration, then the earlier start so the
// outcome never depends on input order.
func better(a, b analyze.Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	da, db := a.End-a.Start, b.End-b.Start
	if da != db {
		return da > db
	}
	return a.Start < b.Start
}

// extendLoneSegment grows a single surviving candidate to the whole video
// when it covers less than the coverage threshold. A lone detection with a
// narrow range usually means the analyzer anchored on one demonstration of
// a movement repeated for the full take.
func extendLoneSegment(in []analyze.Candidate, duration float64) []analyze.Candidate {
	if len(in) != 1 || duration <= 0 {
		return in
	}
	c := in[0]
	if (c.End-c.Start)/duration >= extendCoverage {
		return in
	}
	c.Start = 0
	c.End = duration
	return []analyze.Candidate{c}
}

func filterConfidence(in []analyze.Candidate) []analyze.Candidate {
	out := make([]analyze.Candidate, 0, len(in))
	for _, c := range in {
		if c.Confidence < MinConfidence {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sortedByStart(in []analyze.Candidate) []analyze.Candidate {
	out := make([]analyze.Candidate, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
