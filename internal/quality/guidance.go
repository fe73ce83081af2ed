package quality

// Guidance messages shown after a capture without a readable number.
const (
	GuidanceDefault     = "Improve lighting or move closer to the meter."
	GuidanceDark        = "The meter is too dark. Improve the lighting and try again."
	GuidanceOverexposed = "There is glare on the meter. Change the angle to avoid reflections."
	GuidanceBlurry      = "The image is blurry. Hold the camera steady and move closer."
)

// Guidance picks the hint matching the issue seen in most frames.
func Guidance(reports []Report) string {
	var dark, bright, blurry int
	for _, r := range reports {
		if r.Dark {
			dark++
		}
		if r.Overexposed {
			bright++
		}
		if r.Blurry {
			blurry++
		}
	}

	half := len(reports) / 2
	switch {
	case len(reports) == 0:
		return GuidanceDefault
	case dark > half && dark >= blurry:
		return GuidanceDark
	case bright > half && bright >= blurry:
		return GuidanceOverexposed
	case blurry > half:
		return GuidanceBlurry
	default:
		return GuidanceDefault
	}
}
