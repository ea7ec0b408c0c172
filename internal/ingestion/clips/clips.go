package clips

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/moveatlas/moveatlas-backend/internal/clients/localmedia"
	"github.com/moveatlas/moveatlas-backend/internal/platform/logger"
)

// Reason classifies a materialization failure. The orchestrator folds all
// of them into one pipeline failure kind but keeps the reason in the
// message for diagnosis.
type Reason string

const (
	ReasonToolExit         Reason = "tool_exit_nonzero"
	ReasonProbeFailed      Reason = "probe_failed"
	ReasonDurationMismatch Reason = "duration_mismatch"
	ReasonIO               Reason = "io"
)

type Error struct {
	Reason  Reason
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("materialize %s: %s: %s", e.Reason, e.Path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// durationTolerance is how far the cut file's probed duration may drift
// from the requested span. Keyframe-aligned cuts land within a fraction
// of a second; larger drift means the tool cut the wrong range.
const durationTolerance = 0.25

// Materializer cuts exercise clips out of source videos and verifies each
// cut before the caller persists anything that references it. A clip that
// fails verification is removed so the clips tree never holds partials.
type Materializer struct {
	log   *logger.Logger
	media localmedia.MediaTools
}

func NewMaterializer(log *logger.Logger, media localmedia.MediaTools) *Materializer {
	return &Materializer{
		log:   log.With("component", "ClipMaterializer"),
		media: media,
	}
}

// Materialize produces a self-contained clip of source covering
// [start, end] at targetPath. On any failure the partial file is removed
// and an *Error describes what went wrong.
func (m *Materializer) Materialize(ctx context.Context, sourcePath string, start, end float64, targetPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.media.CutClip(ctx, sourcePath, start, end, targetPath); err != nil {
		m.discard(targetPath)
		return &Error{
			Reason:  ReasonToolExit,
			Path:    targetPath,
			Message: fmt.Sprintf("cut [%0.2f, %0.2f] failed: %v", start, end, err),
			Cause:   err,
		}
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		m.discard(targetPath)
		return &Error{Reason: ReasonIO, Path: targetPath, Message: "clip file missing after cut", Cause: err}
	}
	if info.Size() == 0 {
		m.discard(targetPath)
		return &Error{Reason: ReasonIO, Path: targetPath, Message: "clip file is empty"}
	}

	probe, err := m.media.Probe(ctx, targetPath)
	if err != nil {
		m.discard(targetPath)
		return &Error{Reason: ReasonProbeFailed, Path: targetPath, Message: "clip probe failed", Cause: err}
	}
	if !probe.HasVideo {
		m.discard(targetPath)
		return &Error{Reason: ReasonProbeFailed, Path: targetPath, Message: "clip has no readable video stream"}
	}
	want := end - start
	if probe.DurationSeconds <= 0 || math.Abs(probe.DurationSeconds-want) > durationTolerance {
		m.discard(targetPath)
		return &Error{
			Reason:  ReasonDurationMismatch,
			Path:    targetPath,
			Message: fmt.Sprintf("probed duration %.3fs, wanted %.3fs (+/- %.2fs)", probe.DurationSeconds, want, durationTolerance),
		}
	}

	m.log.Info("materialized clip",
		"path", targetPath,
		"duration_sec", probe.DurationSeconds,
		"size_bytes", info.Size(),
	)
	return nil
}

func (m *Materializer) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.log.Warn("failed to remove partial clip", "path", path, "error", err)
	}
}

// Filename builds the deterministic clip name for an exercise: a readable
// slug of the name plus a short hash over (name, source, start) so the
// same detection always lands on the same file and distinct detections
// never collide.
func Filename(name, source string, start float64, ext string) string {
	return fmt.Sprintf("%s_%s%s", Slug(name), shortHash(name, source, start), ext)
}

const slugMaxLen = 80

// Slug lowercases the exercise name, folds runs of non-alphanumerics into
// single underscores, and truncates to a filesystem-friendly length.
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	s := strings.TrimRight(b.String(), "_")
	if len(s) > slugMaxLen {
		s = strings.TrimRight(s[:slugMaxLen], "_")
	}
	if s == "" {
		return "exercise"
	}
	return s
}

func shortHash(name, source string, start float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.3f", name, source, start)))
	return hex.EncodeToString(sum[:])[:8]
}
