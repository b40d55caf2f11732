package service

import (
	"regexp"
	"strconv"
	"strings"
)

// tokenize lowercases the text and splits it into alphanumeric word tokens.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokenize(text) {
		set[t] = struct{}{}
	}
	return set
}

// jaccard is the token-set overlap of two texts in [0,1]. Two empty texts
// count as identical.
func jaccard(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// divergence is one minus the mean pairwise Jaccard similarity across the
// texts, in [0,1]. Fewer than two texts diverge by definition not at all.
func divergence(texts []string) float64 {
	if len(texts) < 2 {
		return 0
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(texts); i++ {
		for j := i + 1; j < len(texts); j++ {
			sum += jaccard(texts[i], texts[j])
			pairs++
		}
	}
	return 1 - sum/float64(pairs)
}

// keywordCoverage is the fraction of the reference's tokens that appear in
// the answer, ignoring short stop-like tokens. 1 when the reference has no
// substantive tokens.
func keywordCoverage(answer, reference string) float64 {
	ansSet := tokenSet(answer)
	total, hit := 0, 0
	for _, t := range tokenize(reference) {
		if len(t) < 3 {
			continue
		}
		total++
		if _, ok := ansSet[t]; ok {
			hit++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(hit) / float64(total)
}

// sentences splits text into trimmed sentences on terminal punctuation and
// newlines.
func sentences(text string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

var numberPattern = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// finalNumber extracts the last numeric literal in the text, the usual
// position of an arithmetic result. Returns false when the text contains
// no number.
func finalNumber(text string) (float64, bool) {
	matches := numberPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	return parseNumber(matches[len(matches)-1])
}

// allNumbers extracts every numeric literal in the text.
func allNumbers(text string) []float64 {
	var out []float64
	for _, m := range numberPattern.FindAllString(text, -1) {
		if v, ok := parseNumber(m); ok {
			out = append(out, v)
		}
	}
	return out
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
