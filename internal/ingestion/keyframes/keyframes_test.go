package keyframes

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

func uniformFrame(v uint8) grayFrame {
	gf := make(grayFrame, diffRasterW*diffRasterH)
	for i := range gf {
		gf[i] = v
	}
	return gf
}

func TestMeanAbsDiff(t *testing.T) {
	a := uniformFrame(10)
	b := uniformFrame(40)
	if got := meanAbsDiff(a, b); got != 30 {
		t.Fatalf("meanAbsDiff: want=30 got=%v", got)
	}
	if got := meanAbsDiff(a, a); got != 0 {
		t.Fatalf("meanAbsDiff identical: want=0 got=%v", got)
	}
}

func TestComputeDiffs(t *testing.T) {
	grays := []grayFrame{uniformFrame(0), uniformFrame(0), uniformFrame(100)}
	diffs := computeDiffs(grays)
	if len(diffs) != 3 || diffs[0] != 0 || diffs[1] != 0 || diffs[2] != 100 {
		t.Fatalf("computeDiffs: got=%v", diffs)
	}
}

func TestDetectCutsFindsSpike(t *testing.T) {
	diffs := make([]float64, 30)
	for i := 1; i < len(diffs); i++ {
		diffs[i] = 2.0
	}
	diffs[15] = 50.0

	cuts := detectCuts(diffs, 24, 3.0, 8.0)
	if len(cuts) != 2 || cuts[0] != 0 || cuts[1] != 15 {
		t.Fatalf("detectCuts: want=[0 15] got=%v", cuts)
	}
}

func TestDetectCutsIgnoresSpikeBeforeWindowWarmsUp(t *testing.T) {
	diffs := make([]float64, 30)
	for i := 1; i < len(diffs); i++ {
		diffs[i] = 2.0
	}
	diffs[4] = 50.0
	diffs[20] = 50.0

	cuts := detectCuts(diffs, 24, 3.0, 8.0)
	if len(cuts) != 2 || cuts[1] != 20 {
		t.Fatalf("detectCuts: want=[0 20] got=%v", cuts)
	}
}

func TestSelectFramesKeepsBoundariesOnly(t *testing.T) {
	grays := make([]grayFrame, 20)
	for i := range grays {
		if i < 10 {
			grays[i] = uniformFrame(0)
		} else {
			grays[i] = uniformFrame(200)
		}
	}
	diffs := computeDiffs(grays)

	picked := selectFrames(grays, diffs, []int{0, 10})
	want := []int{0, 10, 19}
	if len(picked) != len(want) {
		t.Fatalf("selectFrames: want=%v got=%+v", want, picked)
	}
	for i, p := range picked {
		if p.denseIndex != want[i] {
			t.Fatalf("selectFrames[%d]: want=%d got=%d", i, want[i], p.denseIndex)
		}
	}
	if picked[1].cutIndex != 1 {
		t.Fatalf("cut boundary frame cut index: want=1 got=%d", picked[1].cutIndex)
	}
}

func TestSelectFramesKeepsMovingFrames(t *testing.T) {
	// Uniform motion: each frame 20 gray levels brighter. Relative to the
	// last kept frame the score doubles every second step, so every other
	// frame survives.
	grays := make([]grayFrame, 12)
	for i := range grays {
		grays[i] = uniformFrame(uint8(i * 20))
	}
	diffs := computeDiffs(grays)

	picked := selectFrames(grays, diffs, []int{0})
	want := []int{0, 2, 4, 6, 8, 10, 11}
	if len(picked) != len(want) {
		t.Fatalf("selectFrames: want=%v got=%+v", want, picked)
	}
	for i, p := range picked {
		if p.denseIndex != want[i] {
			t.Fatalf("selectFrames[%d]: want=%d got=%d", i, want[i], p.denseIndex)
		}
	}
}

func TestEnforceBoundsFillsGaps(t *testing.T) {
	diffs := make([]float64, 41)
	picked := []selected{
		{denseIndex: 0, cutIndex: 0},
		{denseIndex: 40, cutIndex: 0},
	}
	out := enforceBounds(picked, 41, diffs, []int{0}, 8.0)

	want := []int{0, 5, 10, 15, 20, 25, 30, 35, 40}
	if len(out) != len(want) {
		t.Fatalf("enforceBounds: want=%v got=%+v", want, out)
	}
	for i, p := range out {
		if p.denseIndex != want[i] {
			t.Fatalf("enforceBounds[%d]: want=%d got=%d", i, want[i], p.denseIndex)
		}
	}
	for i := 1; i < len(out); i++ {
		gap := float64(out[i].denseIndex-out[i-1].denseIndex) / 8.0
		if gap > 1.0 {
			t.Fatalf("gap over one second between %d and %d", out[i-1].denseIndex, out[i].denseIndex)
		}
	}
}

func TestFrameNameRoundTrip(t *testing.T) {
	name := frameName(2, 37, 4625, 23.75, ".jpg")
	if name != "cut_2_frame_37_time_4625_diff_23.75.jpg" {
		t.Fatalf("frameName: got=%q", name)
	}
	cut, frame, ms, diff, err := ParseFrameName(name)
	if err != nil {
		t.Fatalf("ParseFrameName: %v", err)
	}
	if cut != 2 || frame != 37 || ms != 4625 || diff != 23.75 {
		t.Fatalf("ParseFrameName fields: got cut=%d frame=%d ms=%d diff=%v", cut, frame, ms, diff)
	}

	if _, _, _, _, err := ParseFrameName("frame_000001.jpg"); err == nil {
		t.Fatalf("ParseFrameName should reject dense frame names")
	}
}

func TestLoadGrayFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame_000001.jpg")

	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_ = f.Close()

	gf, err := loadGrayFrame(path)
	if err != nil {
		t.Fatalf("loadGrayFrame: %v", err)
	}
	if len(gf) != diffRasterW*diffRasterH {
		t.Fatalf("raster size: want=%d got=%d", diffRasterW*diffRasterH, len(gf))
	}
	for i, v := range gf {
		if v < 110 || v > 130 {
			t.Fatalf("pixel %d far from uniform gray: %d", i, v)
		}
	}
}
