// Command evaluate runs the capture pipeline over a directory of labelled
// meter photos and prints accuracy metrics as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"go-meter-reader/internal/capture"
	"go-meter-reader/internal/evaluation"
	"go-meter-reader/internal/logger"
	"go-meter-reader/internal/preprocess"
	"go-meter-reader/internal/recognition"
	"go-meter-reader/internal/recognition/tesseract"
)

func main() {
	dir := flag.String("dir", ".", "directory containing images and "+evaluation.ManifestName)
	attempts := flag.Int("attempts", 1, "recognition attempts per image")
	lang := flag.String("lang", "eng", "tesseract language")
	tessdata := flag.String("tessdata", os.Getenv("TESSDATA_PREFIX"), "tessdata directory")
	timeout := flag.Duration("timeout", 10*time.Second, "per-attempt recognition timeout")
	verbose := flag.Bool("v", false, "include per-image samples in the output")
	flag.Parse()

	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cases, err := evaluation.LoadCases(*dir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load evaluation set")
	}

	cfg := tesseract.DefaultConfig()
	cfg.Language = *lang
	cfg.TessdataPrefix = *tessdata
	engine := recognition.NewAdapter(tesseract.Factory(cfg))
	defer engine.Close()

	ctrl := capture.NewController(preprocess.NewDefault(), engine, capture.WithAttemptTimeout(*timeout))
	samples, report, runErr := evaluation.NewRunner(ctrl, *attempts).Run(ctx, cases)
	if runErr != nil {
		logger.WithError(runErr).Error("Evaluation stopped early")
	}

	logger.WithFields(logrus.Fields{
		"samples":          report.Samples,
		"exact_match_rate": report.ExactMatchRate,
		"mean_cer":         report.MeanCER,
	}).Info("Evaluation finished")

	out := struct {
		Report  evaluation.Report   `json:"report"`
		Samples []evaluation.Sample `json:"samples,omitempty"`
	}{Report: report}
	if *verbose {
		out.Samples = samples
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.WithError(err).Fatal("Failed to write report")
	}
	if runErr != nil {
		engine.Close()
		os.Exit(1)
	}
}
