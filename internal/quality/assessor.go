// Package quality measures how readable a camera frame is, so that a failed
// capture can tell the user what to change.
package quality

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// Frames are measured at this width; sharpness and exposure do not need the
// full sensor resolution.
const sampleWidth = 320

// Thresholds defines when a frame is considered too dark, too bright or blurry.
type Thresholds struct {
	MinLaplacianVariance float64
	MinBrightness        float64
	MaxBrightness        float64
}

// DefaultThresholds returns thresholds tuned for hand-held meter photos.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinLaplacianVariance: 100.0,
		MinBrightness:        80.0,
		MaxBrightness:        220.0,
	}
}

// Report holds the measurements of one frame.
type Report struct {
	Brightness  float64 `json:"brightness"`
	Contrast    float64 `json:"contrast"`
	Sharpness   float64 `json:"sharpness"`
	Dark        bool    `json:"dark"`
	Overexposed bool    `json:"overexposed"`
	Blurry      bool    `json:"blurry"`
}

// Acceptable reports whether no issue was detected.
func (r Report) Acceptable() bool {
	return !r.Dark && !r.Overexposed && !r.Blurry
}

// Assessor computes Reports. It is safe for concurrent use.
type Assessor struct {
	thresholds Thresholds
	slicePool  sync.Pool
}

// NewAssessor creates an assessor with default thresholds.
func NewAssessor() *Assessor {
	return NewAssessorWithThresholds(DefaultThresholds())
}

// NewAssessorWithThresholds creates an assessor with custom thresholds.
func NewAssessorWithThresholds(t Thresholds) *Assessor {
	return &Assessor{
		thresholds: t,
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

// Assess measures brightness, contrast and Laplacian sharpness of img.
func (a *Assessor) Assess(img image.Image) Report {
	if img == nil || img.Bounds().Empty() {
		return Report{}
	}
	if img.Bounds().Dx() > sampleWidth {
		img = imaging.Resize(img, sampleWidth, 0, imaging.Box)
	}
	gray := toGray(img)

	brightness, contrast := a.exposure(gray)
	sharpness := a.laplacianVariance(gray)

	return Report{
		Brightness:  brightness,
		Contrast:    contrast,
		Sharpness:   sharpness,
		Dark:        brightness < a.thresholds.MinBrightness,
		Overexposed: brightness > a.thresholds.MaxBrightness,
		Blurry:      sharpness < a.thresholds.MinLaplacianVariance,
	}
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			l := (299*r + 587*g + 114*bl) / 1000
			gray.Pix[y*gray.Stride+x] = uint8(l >> 8)
		}
	}
	return gray
}

func (a *Assessor) exposure(gray *image.Gray) (mean, stdDev float64) {
	data := a.slicePool.Get().([]float64)
	defer func() { a.slicePool.Put(data[:0]) }()

	for _, p := range gray.Pix {
		data = append(data, float64(p))
	}
	if len(data) == 0 {
		return 0, 0
	}
	return stat.MeanStdDev(data, nil)
}

// laplacianVariance uses the 4-neighbour kernel [0 1 0; 1 -4 1; 0 1 0].
func (a *Assessor) laplacianVariance(gray *image.Gray) float64 {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	data := a.slicePool.Get().([]float64)
	defer func() { a.slicePool.Put(data[:0]) }()

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)
			data = append(data, -4*center+top+bottom+left+right)
		}
	}
	return stat.Variance(data, nil)
}
