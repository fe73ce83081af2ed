package tesseract

import (
	"context"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

func TestMeanConfidence(t *testing.T) {
	tests := []struct {
		name  string
		boxes []gosseract.BoundingBox
		want  float64
	}{
		{"no boxes", nil, 0},
		{"single word", []gosseract.BoundingBox{{Word: "123", Confidence: 80}}, 80},
		{"mean of words", []gosseract.BoundingBox{{Word: "12", Confidence: 90}, {Word: "3.4", Confidence: 70}}, 80},
		{"empty words skipped", []gosseract.BoundingBox{{Word: "", Confidence: 0}, {Word: "5", Confidence: 60}}, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := meanConfidence(tt.boxes); got != tt.want {
				t.Errorf("meanConfidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngineOnBlankImage(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Skipf("tesseract not available: %v", err)
	}
	defer engine.Close()

	res, err := engine.Recognize(context.Background(), imaging.New(64, 32, color.White))
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.Confidence < 0 || res.Confidence > 100 {
		t.Errorf("Confidence = %v, want within 0..100", res.Confidence)
	}
}
