package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"go-meter-reader/internal/camera"
	"go-meter-reader/internal/capture"
	"go-meter-reader/internal/logger"
)

// ManifestName is the label file expected in an evaluation directory. It maps
// image file names to the expected meter value.
const ManifestName = "labels.json"

// Case is one labelled image.
type Case struct {
	Name     string
	Expected string
	Image    image.Image
}

// LoadCases reads dir/labels.json and decodes every listed image.
func LoadCases(dir string) ([]Case, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	labels := map[string]string{}
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	cases := make([]Case, 0, len(names))
	for _, name := range names {
		img, err := imaging.Open(filepath.Join(dir, filepath.Base(name)), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		cases = append(cases, Case{Name: name, Expected: labels[name], Image: img})
	}
	return cases, nil
}

// Runner drives the capture controller over still images.
type Runner struct {
	controller *capture.Controller
	attempts   int
}

// NewRunner creates a runner making attempts recognition attempts per image.
func NewRunner(controller *capture.Controller, attempts int) *Runner {
	if attempts < 1 {
		attempts = 1
	}
	return &Runner{controller: controller, attempts: attempts}
}

// Run evaluates every case. Engine unavailability aborts the evaluation.
func (r *Runner) Run(ctx context.Context, cases []Case) ([]Sample, Report, error) {
	samples := make([]Sample, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return samples, Summarize(samples), err
		}

		session := camera.NewSession(camera.NewStillSource(c.Name, c.Image), nil)
		if err := session.Open(ctx); err != nil {
			return samples, Summarize(samples), err
		}
		out, err := r.controller.Run(ctx, session, r.attempts, 0, capture.WithSessionID(c.Name))
		if err != nil {
			return samples, Summarize(samples), err
		}

		s := NewSample(c.Name, c.Expected, out.Value)
		s.RawText = out.RawText
		s.Status = string(out.Status)
		s.Score = out.Score
		samples = append(samples, s)

		logger.WithFields(logrus.Fields{
			"image":    c.Name,
			"expected": c.Expected,
			"got":      out.Value,
			"cer":      s.CER,
		}).Debug("Evaluated image")
	}
	return samples, Summarize(samples), nil
}
