// Package preprocess turns raw camera frames into high-contrast bitmaps that
// the recognition engine reads reliably.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	apperrors "go-meter-reader/internal/errors"
)

// ProcessedFrame is the binarized crop of a frame plus the statistics that
// produced it.
type ProcessedFrame struct {
	Image     *image.NRGBA
	Mean      float64
	Threshold int
	Histogram [256]int
}

// Width returns the processed bitmap width.
func (p *ProcessedFrame) Width() int { return p.Image.Bounds().Dx() }

// Height returns the processed bitmap height.
func (p *ProcessedFrame) Height() int { return p.Image.Bounds().Dy() }

// PNG encodes the processed bitmap, used for previews and engine input.
func (p *ProcessedFrame) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, p.Image, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode processed frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Preprocessor applies crop, upscale, grayscale, contrast and threshold.
type Preprocessor struct {
	opts Options
}

// New creates a preprocessor with the given options.
func New(opts Options) *Preprocessor {
	return &Preprocessor{opts: opts}
}

// NewDefault creates a preprocessor with DefaultOptions.
func NewDefault() *Preprocessor {
	return New(DefaultOptions())
}

// CropRect returns the central crop region for a w x h source.
func (p *Preprocessor) CropRect(w, h int) image.Rectangle {
	cw := int(math.Floor(float64(w) * p.opts.CropWidthRatio))
	ch := int(math.Floor(float64(h) * p.opts.CropHeightRatio))
	x := (w - cw) / 2
	y := (h - ch) / 2
	return image.Rect(x, y, x+cw, y+ch)
}

// Process returns a new bitmap; src is never modified. Callers must not pass
// empty frames, a zero-sized source or crop is reported as a validation error.
func (p *Preprocessor) Process(src image.Image) (*ProcessedFrame, error) {
	if src == nil {
		return nil, apperrors.NewValidationError("frame is nil", nil)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("frame has no pixels (%dx%d)", w, h), nil)
	}

	crop := p.CropRect(w, h)
	if crop.Empty() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("frame too small to crop (%dx%d)", w, h), nil)
	}

	cropped := imaging.Crop(src, crop.Add(b.Min))
	scale := p.opts.Scale
	if scale < 1 {
		scale = 1
	}
	out := imaging.Resize(cropped, crop.Dx()*scale, crop.Dy()*scale, p.opts.Filter)

	frame := &ProcessedFrame{Image: out}
	frame.Mean = grayscale(out, &frame.Histogram)
	frame.Threshold = threshold(frame.Mean, p.opts)
	binarize(out, frame.Threshold, p.opts.Contrast)
	return frame, nil
}

// grayscale replaces RGB with BT.601 luma in place and returns the mean.
func grayscale(img *image.NRGBA, hist *[256]int) float64 {
	var sum float64
	n := 0
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			l := luma(row[i], row[i+1], row[i+2])
			row[i], row[i+1], row[i+2] = l, l, l
			hist[l]++
			sum += float64(l)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func luma(r, g, b uint8) uint8 {
	l := math.Round(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
	if l > 255 {
		l = 255
	}
	return uint8(l)
}

func threshold(mean float64, opts Options) int {
	t := int(math.Floor(mean * opts.MeanFactor))
	if t < opts.MinThreshold {
		return opts.MinThreshold
	}
	return t
}

// Stretch applies the contrast stretch around 128, clamped to [0,255].
func Stretch(v uint8, factor float64) float64 {
	s := (float64(v)-128)*factor + 128
	return math.Max(0, math.Min(255, s))
}

func binarize(img *image.NRGBA, thr int, contrast float64) {
	t := float64(thr)
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			var v uint8
			if Stretch(row[i], contrast) > t {
				v = 255
			}
			row[i], row[i+1], row[i+2] = v, v, v
		}
	}
}
