// Package evaluation measures recognition accuracy of the capture pipeline
// against labelled meter photos.
package evaluation

import (
	"strings"
	"unicode/utf8"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"
)

// CER is the character error rate of got against expected: edit distance
// divided by the expected length.
func CER(expected, got string) float64 {
	n := utf8.RuneCountInString(expected)
	if n == 0 {
		if got == "" {
			return 0
		}
		return 1
	}
	return float64(levenshtein.Distance(expected, got)) / float64(n)
}

// WER is the word error rate over whitespace-separated tokens.
func WER(expected, got string) float64 {
	ref := strings.Fields(expected)
	if len(ref) == 0 {
		if strings.TrimSpace(got) == "" {
			return 0
		}
		return 1
	}
	rate, _ := wer.WER(ref, strings.Fields(got))
	return rate
}

// Sample is the evaluation of one labelled image.
type Sample struct {
	Name     string  `json:"name"`
	Expected string  `json:"expected"`
	Got      string  `json:"got"`
	RawText  string  `json:"raw_text,omitempty"`
	Status   string  `json:"status"`
	Score    float64 `json:"score"`
	CER      float64 `json:"cer"`
	WER      float64 `json:"wer"`
	Exact    bool    `json:"exact"`
}

// NewSample scores one recognized value.
func NewSample(name, expected, got string) Sample {
	return Sample{
		Name:     name,
		Expected: expected,
		Got:      got,
		CER:      CER(expected, got),
		WER:      WER(expected, got),
		Exact:    expected == got,
	}
}

// Report aggregates samples.
type Report struct {
	Samples        int     `json:"samples"`
	ExactMatches   int     `json:"exact_matches"`
	NoMatches      int     `json:"no_matches"`
	ExactMatchRate float64 `json:"exact_match_rate"`
	MeanCER        float64 `json:"mean_cer"`
	MeanWER        float64 `json:"mean_wer"`
}

// Summarize averages the per-sample error rates.
func Summarize(samples []Sample) Report {
	r := Report{Samples: len(samples)}
	if len(samples) == 0 {
		return r
	}
	var cer, wordRate float64
	for _, s := range samples {
		if s.Exact {
			r.ExactMatches++
		}
		if s.Got == "" {
			r.NoMatches++
		}
		cer += s.CER
		wordRate += s.WER
	}
	n := float64(len(samples))
	r.ExactMatchRate = float64(r.ExactMatches) / n
	r.MeanCER = cer / n
	r.MeanWER = wordRate / n
	return r
}
