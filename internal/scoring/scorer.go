// Package scoring extracts a meter value from recognized text and ranks
// attempts against each other.
package scoring

import (
	"math"
	"regexp"

	"go-meter-reader/internal/preprocess"
	"go-meter-reader/internal/recognition"
)

var (
	// Whitespace and commas collapse into a single decimal point.
	separatorPattern = regexp.MustCompile(`[\s,]+`)

	// A numeric run that does not continue a letter token, so unit and label
	// fragments such as "m3" or a misread "O1" are skipped.
	numberPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(\d+(?:\.\d+)?)`)

	// Any numeric run, used when every run is glued to a letter.
	anyNumberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// Candidate is the scored outcome of one capture attempt.
type Candidate struct {
	Score   float64
	Number  string // empty when no numeric token was found
	RawText string
	Frame   *preprocess.ProcessedFrame
}

// Matched reports whether the attempt produced a numeric token.
func (c Candidate) Matched() bool {
	return c.Number != ""
}

// Normalize replaces every run of whitespace or commas with ".".
func Normalize(text string) string {
	return separatorPattern.ReplaceAllString(text, ".")
}

// ExtractNumber returns the first numeric token of normalized text, or "".
// Tokens standing on their own win over digits glued to a letter.
func ExtractNumber(text string) string {
	normalized := Normalize(text)
	if m := numberPattern.FindStringSubmatch(normalized); m != nil {
		return m[1]
	}
	return anyNumberPattern.FindString(normalized)
}

// Score rates a recognition result: the length of the extracted token plus
// confidence/100, or zero when nothing numeric was read.
func Score(result recognition.Result) Candidate {
	c := Candidate{RawText: result.Text}
	c.Number = ExtractNumber(result.Text)
	if c.Number == "" {
		return c
	}
	c.Score = float64(len(c.Number)) + clampConfidence(result.Confidence)/100
	return c
}

func clampConfidence(conf float64) float64 {
	if math.IsNaN(conf) || conf < 0 {
		return 0
	}
	return math.Min(conf, 100)
}

// Best tracks the highest-scoring candidate of a session. The zero value is
// ready to use and holds an empty, unmatched candidate.
type Best struct {
	candidate Candidate
	attempt   int
}

// Offer replaces the current best only when c scores strictly higher, so ties
// keep the earliest winner. It returns true when c became the best.
func (b *Best) Offer(attempt int, c Candidate) bool {
	if c.Score <= b.candidate.Score {
		return false
	}
	b.candidate = c
	b.attempt = attempt
	return true
}

// Candidate returns the current best.
func (b *Best) Candidate() Candidate {
	return b.candidate
}

// Attempt returns the 1-based attempt that produced the best, 0 if none.
func (b *Best) Attempt() int {
	return b.attempt
}
