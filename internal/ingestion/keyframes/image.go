package keyframes

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Frames are compared on a fixed tiny grayscale raster. Differencing does
// not need resolution, it needs stability across aspect ratios.
const (
	diffRasterW = 64
	diffRasterH = 64
)

type grayFrame []uint8

// loadGrayFrame decodes one exported frame and squashes it onto the diff
// raster.
func loadGrayFrame(path string) (grayFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img, err = png.Decode(f)
	default:
		img, err = jpeg.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return rasterize(img), nil
}

func rasterize(img image.Image) grayFrame {
	small := image.NewRGBA(image.Rect(0, 0, diffRasterW, diffRasterH))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	out := make(grayFrame, diffRasterW*diffRasterH)
	for y := 0; y < diffRasterH; y++ {
		for x := 0; x < diffRasterW; x++ {
			i := small.PixOffset(x, y)
			r := int(small.Pix[i])
			g := int(small.Pix[i+1])
			b := int(small.Pix[i+2])
			out[y*diffRasterW+x] = uint8((299*r + 587*g + 114*b) / 1000)
		}
	}
	return out
}

// meanAbsDiff scores two rasters on a 0..255 scale.
func meanAbsDiff(a, b grayFrame) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var sum int
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(a))
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
