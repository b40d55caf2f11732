package service_test

import (
	"testing"

	"github.com/quorumlabs/quorum/internal/domain/consensus"
	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/domain/verify"
	"github.com/quorumlabs/quorum/internal/port/toolbroker"
	"github.com/quorumlabs/quorum/internal/service"
)

func resultWith(text string) *consensus.Result {
	return &consensus.Result{Strategy: consensus.SingleBest, Text: text, Confidence: 0.8}
}

func TestVerifyCleanAnswerPasses(t *testing.T) {
	v := service.NewVerifier(testEngineCfg())
	q := query.Query{Text: "Explain the water cycle", Kind: query.KindGeneral, Format: query.FormatAny}

	report := v.Verify(&q, resultWith("The water cycle involves evaporation, condensation and rain."), nil, true)
	if report.Status != verify.StatusPass {
		t.Fatalf("status = %s (issues %v), want pass", report.Status, report.Issues)
	}
	if report.Confidence < 0 || report.Confidence > 1 {
		t.Fatalf("confidence %f out of [0,1]", report.Confidence)
	}
}

func TestVerifyNumericMismatchIsBlocking(t *testing.T) {
	v := service.NewVerifier(testEngineCfg())
	q := query.Query{Text: "What is 12345 * 67890?", Kind: query.KindArithmetic}
	tool := &toolbroker.Result{Tool: "calculator", Value: "838102050"}

	report := v.Verify(&q, resultWith("12345 * 67890 = 838102051"), tool, true)

	if !report.Blocking() {
		t.Fatal("numeric mismatch not rated blocking")
	}
	if report.Status != verify.StatusNeedsRevision {
		t.Fatalf("status = %s, want needs_revision while budget remains", report.Status)
	}

	report = v.Verify(&q, resultWith("12345 * 67890 = 838102051"), tool, false)
	if report.Status != verify.StatusFail {
		t.Fatalf("status = %s, want fail once budget is exhausted", report.Status)
	}
}

func TestVerifyNumericAgreementPasses(t *testing.T) {
	v := service.NewVerifier(testEngineCfg())
	q := query.Query{Text: "What is 12345 * 67890?", Kind: query.KindArithmetic}
	tool := &toolbroker.Result{Tool: "calculator", Value: "838102050"}

	report := v.Verify(&q, resultWith("12345 * 67890 = 838102050"), tool, true)
	if report.Status != verify.StatusPass {
		t.Fatalf("status = %s (issues %v), want pass", report.Status, report.Issues)
	}
}

func TestVerifyArithmeticWithoutNumberIsMissingAnswer(t *testing.T) {
	v := service.NewVerifier(testEngineCfg())
	q := query.Query{Text: "What is two plus two?", Kind: query.KindArithmetic}

	report := v.Verify(&q, resultWith("two plus two makes a sum, as everyone knows"), nil, true)

	found := false
	for _, is := range report.Issues {
		if is.Kind == verify.IssueMissingAnswer {
			found = true
		}
	}
	if !found {
		t.Fatalf("issues = %v, want a missing_answer issue", report.Issues)
	}
}

func TestVerifyRefusalIsBlocking(t *testing.T) {
	v := service.NewVerifier(testEngineCfg())
	q := query.Query{Text: "Explain the water cycle", Kind: query.KindGeneral}

	report := v.Verify(&q, resultWith("I'm sorry, I cannot help with that."), nil, false)
	if report.Status != verify.StatusFail {
		t.Fatalf("status = %s, want fail for a refusal with no budget left", report.Status)
	}
}

func TestVerifyUnaddressedCriterionIsIncomplete(t *testing.T) {
	v := service.NewVerifier(testEngineCfg())
	q := query.Query{
		Text:     "Explain the water cycle",
		Kind:     query.KindGeneral,
		Criteria: []string{"mention condensation altitude thresholds"},
	}

	report := v.Verify(&q, resultWith("The water cycle involves evaporation and rain."), nil, true)

	found := false
	for _, is := range report.Issues {
		if is.Kind == verify.IssueIncomplete {
			found = true
		}
	}
	if !found {
		t.Fatalf("issues = %v, want an incomplete issue", report.Issues)
	}
	if report.Status != verify.StatusNeedsRevision {
		t.Fatalf("status = %s, want needs_revision", report.Status)
	}
}

func TestVerifyJSONFormat(t *testing.T) {
	v := service.NewVerifier(testEngineCfg())
	q := query.Query{Text: "List water cycle stages", Kind: query.KindGeneral, Format: query.FormatJSON}

	report := v.Verify(&q, resultWith(`{"stages": ["water", "cycle", "stages", "list"]}`), nil, true)
	if report.Status != verify.StatusPass {
		t.Fatalf("status = %s (issues %v), want pass for valid JSON", report.Status, report.Issues)
	}

	report = v.Verify(&q, resultWith("water cycle stages list: not json at all"), nil, true)
	found := false
	for _, is := range report.Issues {
		if is.Kind == verify.IssueFormat {
			found = true
		}
	}
	if !found {
		t.Fatalf("issues = %v, want a format issue", report.Issues)
	}
}

func TestVerifyConflictingArithmeticResults(t *testing.T) {
	v := service.NewVerifier(testEngineCfg())
	q := query.Query{Text: "What is 12345 * 67890?", Kind: query.KindArithmetic}

	report := v.Verify(&q, resultWith("The result is 838102050, though some sources give 838102051"), nil, true)

	found := false
	for _, is := range report.Issues {
		if is.Kind == verify.IssueContradiction {
			found = true
		}
	}
	if !found {
		t.Fatalf("issues = %v, want a contradiction for two asserted results", report.Issues)
	}

	// Operands before the assertion marker are not conflicting results.
	report = v.Verify(&q, resultWith("12345 * 67890 = 838102050"), nil, true)
	for _, is := range report.Issues {
		if is.Kind == verify.IssueContradiction {
			t.Fatalf("issues = %v, operands misread as asserted results", report.Issues)
		}
	}
}

func TestVerifyContradictionDetected(t *testing.T) {
	v := service.NewVerifier(testEngineCfg())
	q := query.Query{Text: "Is the cache enabled by default", Kind: query.KindGeneral}

	report := v.Verify(&q, resultWith("The cache is enabled by default. The cache is not enabled by default."), nil, true)

	found := false
	for _, is := range report.Issues {
		if is.Kind == verify.IssueContradiction {
			found = true
		}
	}
	if !found {
		t.Fatalf("issues = %v, want a contradiction issue", report.Issues)
	}
}
