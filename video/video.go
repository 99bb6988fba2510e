// Package video turns decoded pixel tensors into image files. All transforms
// return new values; nothing is normalized or clamped in place.
package video

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/latentlab/videodit/tensor"
)

// Frames converts a decoded pixel tensor [1, 3, frames, height, width] with
// values in [-1, 1] into one RGBA image per frame.
func Frames(pixels *tensor.Array) ([]*image.RGBA, error) {
	if pixels.Ndim() != 5 || pixels.Dim(0) != 1 || pixels.Dim(1) != 3 {
		return nil, fmt.Errorf("video: expected [1, 3, frames, height, width], got %v", pixels.Shape())
	}
	t, h, w := pixels.Dim(2), pixels.Dim(3), pixels.Dim(4)

	frames := make([]*image.RGBA, t)
	for ti := 0; ti < t; ti++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := img.PixOffset(x, y)
				img.Pix[i+0] = quantize(pixels.At(0, 0, ti, y, x))
				img.Pix[i+1] = quantize(pixels.At(0, 1, ti, y, x))
				img.Pix[i+2] = quantize(pixels.At(0, 2, ti, y, x))
				img.Pix[i+3] = 0xff
			}
		}
		frames[ti] = img
	}
	return frames, nil
}

// quantize maps [-1, 1] to a byte, clamping out-of-range values.
func quantize(v float32) uint8 {
	s := (v + 1) / 2 * 255
	if s < 0 {
		s = 0
	}
	if s > 255 {
		s = 255
	}
	return uint8(s + 0.5)
}

// Resize scales a frame with Catmull-Rom interpolation.
func Resize(img *image.RGBA, width, height int) *image.RGBA {
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Meta describes a written frame sequence for downstream muxing.
type Meta struct {
	FPS    int `json:"fps"`
	Frames int `json:"frames"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

// WriteMeta saves clip.json next to the frames.
func WriteMeta(dir string, m Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "clip.json"), data, 0o644)
}

// WriteFrames saves frames as zero-padded PNGs under dir, creating it if
// needed, and returns the written paths in frame order.
func WriteFrames(dir string, frames []*image.RGBA) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(frames))
	for i, frame := range frames {
		p := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i))
		f, err := os.Create(p)
		if err != nil {
			return nil, err
		}
		if err := png.Encode(f, frame); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
