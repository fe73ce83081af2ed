package scoring

import (
	"math"
	"testing"

	"go-meter-reader/internal/recognition"
)

func TestExtractNumber(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain integer", "004512", "004512"},
		{"decimal", "1234.56", "1234.56"},
		{"comma decimal with unit", "1,234.5m³", "1.234"},
		{"label glued to digit", "O1 2,5 m3", "2.5"},
		{"whitespace inside reading", "12 345", "12.345"},
		{"newline noise", "\n 0457.3 \n", "0457.3"},
		{"unit before value", "m3 123", "123"},
		{"digits glued to a letter only", "O123", "123"},
		{"single digit after letters", "ab5", "5"},
		{"separate token wins over glued", "x12 34", "34"},
		{"no digits", "no digits here", ""},
		{"empty", "", ""},
		{"only dots", "...", ""},
		{"trailing dot", "42.", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractNumber(tt.text); got != tt.want {
				t.Errorf("ExtractNumber(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"1,234.5m³":  "1.234.5m³",
		"O1 2,5 m3":  "O1.2.5.m3",
		"1 ,\t 2":    "1.2",
		"no-change":  "no-change",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		result     recognition.Result
		wantNumber string
		wantScore  float64
	}{
		{"long match high confidence", recognition.Result{Text: "12345", Confidence: 90}, "12345", 5.9},
		{"decimal counts the point", recognition.Result{Text: "12.5", Confidence: 50}, "12.5", 4.5},
		{"no match scores zero", recognition.Result{Text: "no digits here", Confidence: 99}, "", 0},
		{"confidence clamped high", recognition.Result{Text: "7", Confidence: 250}, "7", 2},
		{"negative confidence ignored", recognition.Result{Text: "7", Confidence: -3}, "7", 1},
		{"NaN confidence ignored", recognition.Result{Text: "77", Confidence: math.NaN()}, "77", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Score(tt.result)
			if c.Number != tt.wantNumber {
				t.Errorf("Number = %q, want %q", c.Number, tt.wantNumber)
			}
			if math.Abs(c.Score-tt.wantScore) > 1e-9 {
				t.Errorf("Score = %v, want %v", c.Score, tt.wantScore)
			}
			if c.Matched() != (tt.wantNumber != "") {
				t.Errorf("Matched() = %v", c.Matched())
			}
			if c.RawText != tt.result.Text {
				t.Errorf("RawText = %q", c.RawText)
			}
		})
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	r := recognition.Result{Text: " 0,457 3", Confidence: 73.5}
	first := Score(r)
	for i := 0; i < 100; i++ {
		if got := Score(r); got != first {
			t.Fatalf("call %d returned %+v, want %+v", i, got, first)
		}
	}
}

func TestBestMonotonicAndTieStable(t *testing.T) {
	scores := []float64{0, 3.5, 2.1, 3.5, 5.2, 5.2, 1}
	wantAttempt := []int{0, 2, 2, 2, 5, 5, 5}

	var best Best
	maxSoFar := 0.0
	prev := 0.0
	for i, s := range scores {
		attempt := i + 1
		best.Offer(attempt, Candidate{Score: s, Number: "x", RawText: "attempt"})

		got := best.Candidate().Score
		if got < prev {
			t.Fatalf("best score decreased at attempt %d: %v -> %v", attempt, prev, got)
		}
		if s > maxSoFar {
			maxSoFar = s
		}
		if got != maxSoFar {
			t.Errorf("attempt %d: best = %v, want max %v", attempt, got, maxSoFar)
		}
		if best.Attempt() != wantAttempt[i] {
			t.Errorf("attempt %d: best attempt = %d, want %d", attempt, best.Attempt(), wantAttempt[i])
		}
		prev = got
	}
}

func TestBestZeroValue(t *testing.T) {
	var best Best
	if best.Candidate().Matched() {
		t.Error("zero Best must hold an unmatched candidate")
	}
	if best.Offer(1, Candidate{}) {
		t.Error("a zero-score candidate must not replace the empty best")
	}
	if best.Attempt() != 0 {
		t.Errorf("Attempt() = %d", best.Attempt())
	}
}
