package preprocess

import "github.com/disintegration/imaging"

// Options controls how a camera frame is turned into an OCR-ready bitmap.
type Options struct {
	// Central crop, as fractions of the source width and height.
	CropWidthRatio  float64
	CropHeightRatio float64

	// Upscale factor applied to the crop in both dimensions.
	Scale  int
	Filter imaging.ResampleFilter

	// Contrast stretch around the 128 midpoint.
	Contrast float64

	// Binarization threshold is max(MinThreshold, floor(mean * MeanFactor)).
	MinThreshold int
	MeanFactor   float64
}

// DefaultOptions returns the tuning used for meter displays: a 70% x 40%
// band around the center, doubled, stretched by 1.2 and binarized.
func DefaultOptions() Options {
	return Options{
		CropWidthRatio:  0.7,
		CropHeightRatio: 0.4,
		Scale:           2,
		Filter:          imaging.Linear,
		Contrast:        1.2,
		MinThreshold:    100,
		MeanFactor:      0.9,
	}
}

// WithCrop returns options with a different central crop.
func (opts Options) WithCrop(widthRatio, heightRatio float64) Options {
	opts.CropWidthRatio = widthRatio
	opts.CropHeightRatio = heightRatio
	return opts
}

// WithScale returns options with a different upscale factor.
func (opts Options) WithScale(scale int) Options {
	opts.Scale = scale
	return opts
}

// WithNearestNeighbor switches resampling to nearest neighbour, which keeps
// the output strictly two-tone before thresholding.
func (opts Options) WithNearestNeighbor() Options {
	opts.Filter = imaging.NearestNeighbor
	return opts
}

// WithContrast returns options with a different contrast factor.
func (opts Options) WithContrast(factor float64) Options {
	opts.Contrast = factor
	return opts
}
