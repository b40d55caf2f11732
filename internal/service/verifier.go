package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/quorumlabs/quorum/internal/config"
	"github.com/quorumlabs/quorum/internal/domain/consensus"
	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/domain/verify"
	"github.com/quorumlabs/quorum/internal/port/toolbroker"
)

// Verifier checks a consensus result against the query's acceptance
// criteria. A pure function of its inputs: it holds no mutable state and
// makes no provider calls.
type Verifier struct {
	cfg config.Engine
}

// NewVerifier creates a verifier with the engine tunables.
func NewVerifier(cfg config.Engine) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify runs every check and derives the overall status. tool carries the
// authoritative broker result when the query used one; a disagreement
// between it and the answer is always an issue, rated blocking. budgetLeft
// feeds the status derivation.
func (v *Verifier) Verify(q *query.Query, res *consensus.Result, tool *toolbroker.Result, budgetLeft bool) *verify.Report {
	report := &verify.Report{}

	v.checkRefusal(res, report)
	v.checkCompleteness(q, res, report)
	v.checkConsistency(q, res, report)
	v.checkFormat(q, res, report)
	v.checkNumeric(q, res, tool, report)

	report.Confidence = clamp01(res.Confidence - 0.15*float64(len(report.Issues)))
	report.Derive(budgetLeft)
	return report
}

// checkRefusal flags an empty answer or an outright refusal. Blocking: no
// amount of downstream fixing makes a refusal an answer.
func (v *Verifier) checkRefusal(res *consensus.Result, report *verify.Report) {
	if plausibleAnswer(res.Text) {
		return
	}
	report.Issues = append(report.Issues, verify.Issue{
		Kind:        verify.IssueRefusal,
		Severity:    verify.SeverityBlocking,
		Description: "the answer is empty or a refusal",
	})
}

// checkCompleteness requires every explicit sub-question and declared
// criterion to be addressed, judged by keyword coverage.
func (v *Verifier) checkCompleteness(q *query.Query, res *consensus.Result, report *verify.Report) {
	for _, sub := range q.SubQuestions() {
		if keywordCoverage(res.Text, sub) < 0.3 {
			report.Issues = append(report.Issues, verify.Issue{
				Kind:        verify.IssueIncomplete,
				Severity:    verify.SeverityFixable,
				Description: fmt.Sprintf("the answer does not address: %s", sub),
			})
		}
	}
}

// checkConsistency looks for sentence pairs that share most of their
// vocabulary but disagree on negation, the cheapest detectable form of
// self-contradiction.
func (v *Verifier) checkConsistency(q *query.Query, res *consensus.Result, report *verify.Report) {
	sents := sentences(res.Text)
	for i := 0; i < len(sents); i++ {
		for j := i + 1; j < len(sents); j++ {
			if jaccard(sents[i], sents[j]) >= 0.6 && negated(sents[i]) != negated(sents[j]) {
				report.Issues = append(report.Issues, verify.Issue{
					Kind:        verify.IssueContradiction,
					Severity:    verify.SeverityFixable,
					Description: fmt.Sprintf("statements conflict: %q vs %q", sents[i], sents[j]),
				})
				return
			}
		}
	}

	// An arithmetic answer asserting two different results contradicts
	// itself even without negation.
	if q.Kind == query.KindArithmetic {
		if nums := resultNumbers(res.Text); len(nums) > 1 {
			report.Issues = append(report.Issues, verify.Issue{
				Kind:        verify.IssueContradiction,
				Severity:    verify.SeverityFixable,
				Description: "the answer asserts multiple conflicting results",
			})
		}
	}
}

func negated(s string) bool {
	for _, t := range tokenize(s) {
		switch t {
		case "not", "no", "never", "cannot", "isnt", "doesnt", "wont":
			return true
		}
	}
	return false
}

// resultNumbers returns the distinct values the text asserts as results,
// collecting every number after the last "=" or "is" of each asserting
// sentence. Numbers before the marker are operands, not assertions.
func resultNumbers(text string) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, s := range sentences(text) {
		var tail string
		if i := strings.LastIndex(s, "="); i >= 0 {
			tail = s[i+1:]
		} else if i := strings.LastIndex(strings.ToLower(s), " is "); i >= 0 {
			tail = s[i+4:]
		} else {
			continue
		}
		for _, n := range allNumbers(tail) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// checkFormat verifies the declared output format structurally.
func (v *Verifier) checkFormat(q *query.Query, res *consensus.Result, report *verify.Report) {
	if matchesFormat(res.Text, q.Format) {
		return
	}
	report.Issues = append(report.Issues, verify.Issue{
		Kind:        verify.IssueFormat,
		Severity:    verify.SeverityFixable,
		Description: fmt.Sprintf("the answer does not match the declared %s format", q.Format),
	})
}

// checkNumeric runs the arithmetic-task checks: a numeric final answer must
// be present, and when an authoritative tool result exists the answer must
// agree with it. A tool disagreement is rated blocking; returning a number
// the calculator refutes is worse than returning nothing.
func (v *Verifier) checkNumeric(q *query.Query, res *consensus.Result, tool *toolbroker.Result, report *verify.Report) {
	if q.Kind != query.KindArithmetic {
		return
	}

	got, ok := finalNumber(res.Text)
	if !ok {
		report.Issues = append(report.Issues, verify.Issue{
			Kind:        verify.IssueMissingAnswer,
			Severity:    verify.SeverityFixable,
			Description: "an arithmetic task requires a numeric final answer",
		})
		return
	}

	if tool == nil {
		return
	}
	want, ok := finalNumber(tool.Value)
	if !ok {
		return
	}
	if math.Abs(got-want) > 1e-9 {
		report.Issues = append(report.Issues, verify.Issue{
			Kind:        verify.IssueNumericMismatch,
			Severity:    verify.SeverityBlocking,
			Description: fmt.Sprintf("the answer gives %s but the authoritative %s result is %s", formatNumber(got), tool.Tool, formatNumber(want)),
		})
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
