package validation

import (
	"math"
	"strconv"
	"strings"

	apperrors "go-meter-reader/internal/errors"
)

// MaxReadingValue bounds accepted meter readings; mechanical registers roll
// over well below this.
const MaxReadingValue = 1e9

// ParseReading converts a typed or recognized meter value to a number.
// A decimal comma is accepted ("123,4").
func ParseReading(value string) (float64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, apperrors.NewValidationError("reading value is required", nil)
	}
	s = strings.Replace(s, ",", ".", 1)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperrors.NewValidationError("reading value is not a number", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperrors.NewValidationError("reading value must be finite", nil)
	}
	if v < 0 {
		return 0, apperrors.NewValidationError("reading value must not be negative", nil)
	}
	if v > MaxReadingValue {
		return 0, apperrors.NewValidationError("reading value is out of range", nil)
	}
	return v, nil
}
