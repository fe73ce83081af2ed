// Package tesseract provides the Tesseract-backed recognition engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/recognition"
)

// Config selects language data and segmentation.
type Config struct {
	Language       string
	TessdataPrefix string
	PageSegMode    gosseract.PageSegMode
}

// DefaultConfig reads a single block of digits with English data.
func DefaultConfig() Config {
	return Config{
		Language:    "eng",
		PageSegMode: gosseract.PSM_SINGLE_BLOCK,
	}
}

// Engine is a configured gosseract client. It is not safe for concurrent use.
type Engine struct {
	client *gosseract.Client
}

// NewEngine creates and warms up a client so that missing language data is
// reported now instead of on the first capture.
func NewEngine(cfg Config) (*Engine, error) {
	client := gosseract.NewClient()

	if cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			client.Close()
			return nil, apperrors.NewEngineUnavailableError("invalid tessdata prefix", err)
		}
	}
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, apperrors.NewEngineUnavailableError(fmt.Sprintf("unsupported language %q", lang), err)
	}
	if err := client.SetWhitelist(recognition.Whitelist); err != nil {
		client.Close()
		return nil, apperrors.NewEngineUnavailableError("failed to set character whitelist", err)
	}
	if err := client.SetPageSegMode(cfg.PageSegMode); err != nil {
		client.Close()
		return nil, apperrors.NewEngineUnavailableError("failed to set page segmentation mode", err)
	}

	e := &Engine{client: client}
	if err := e.warmUp(); err != nil {
		client.Close()
		return nil, apperrors.NewEngineUnavailableError("failed to load language data", err).
			WithDetails("install the " + lang + " traineddata or set TESSDATA_PREFIX")
	}
	return e, nil
}

// Factory adapts NewEngine to recognition.EngineFactory.
func Factory(cfg Config) recognition.EngineFactory {
	return func(ctx context.Context) (recognition.Engine, error) {
		return NewEngine(cfg)
	}
}

func (e *Engine) warmUp() error {
	blank := imaging.New(8, 8, color.White)
	data, err := encodePNG(blank)
	if err != nil {
		return err
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return err
	}
	_, err = e.client.Text()
	return err
}

// Recognize reads digits from img. Confidence is the mean word confidence
// reported by Tesseract on its native 0..100 scale.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (recognition.Result, error) {
	if err := ctx.Err(); err != nil {
		return recognition.Result{}, err
	}
	data, err := encodePNG(img)
	if err != nil {
		return recognition.Result{}, err
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return recognition.Result{}, fmt.Errorf("set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return recognition.Result{}, fmt.Errorf("extract text: %w", err)
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Text without confidence still scores on length.
		return recognition.Result{Text: text}, nil
	}
	return recognition.Result{Text: text, Confidence: meanConfidence(boxes)}, nil
}

// Close releases the underlying Tesseract API.
func (e *Engine) Close() error {
	return e.client.Close()
}

func meanConfidence(boxes []gosseract.BoundingBox) float64 {
	var sum float64
	n := 0
	for _, b := range boxes {
		if b.Word == "" {
			continue
		}
		sum += b.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
