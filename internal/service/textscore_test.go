package service

import (
	"math"
	"testing"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "the quick brown fox", "the quick brown fox", 1},
		{"disjoint", "alpha beta", "gamma delta", 0},
		{"both empty", "", "", 1},
		{"case and punctuation ignored", "Hello, World!", "hello world", 1},
		{"half overlap", "a b", "a c", 1.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("jaccard(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDivergence(t *testing.T) {
	if got := divergence([]string{"same text", "same text", "same text"}); got != 0 {
		t.Fatalf("identical texts diverge by %f, want 0", got)
	}
	if got := divergence([]string{"only one"}); got != 0 {
		t.Fatalf("single text diverges by %f, want 0", got)
	}
	got := divergence([]string{"alpha beta gamma", "delta epsilon zeta"})
	if got != 1 {
		t.Fatalf("disjoint texts diverge by %f, want 1", got)
	}
}

func TestKeywordCoverage(t *testing.T) {
	if got := keywordCoverage("the water cycle involves evaporation", "water cycle"); got != 1 {
		t.Fatalf("full coverage = %f, want 1", got)
	}
	if got := keywordCoverage("unrelated text", "water cycle"); got != 0 {
		t.Fatalf("no coverage = %f, want 0", got)
	}
	// Tokens shorter than 3 runes are ignored.
	if got := keywordCoverage("anything", "a b"); got != 1 {
		t.Fatalf("stop-token-only reference = %f, want 1", got)
	}
}

func TestFinalNumber(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"12345 * 67890 = 838102050", 838102050, true},
		{"the total is 1,234,567.89 dollars", 1234567.89, true},
		{"temperature dropped to -40 overnight", -40, true},
		{"no digits here", 0, false},
	}
	for _, tt := range tests {
		got, ok := finalNumber(tt.text)
		if ok != tt.ok || math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("finalNumber(%q) = %f, %v; want %f, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSentences(t *testing.T) {
	got := sentences("First point. Second point!\nThird point?")
	if len(got) != 3 {
		t.Fatalf("sentences = %v, want 3 entries", got)
	}
	if got[1] != "Second point" {
		t.Fatalf("got[1] = %q", got[1])
	}
}
