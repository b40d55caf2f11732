package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/domain/session"
	"github.com/quorumlabs/quorum/internal/port/gateway"
	"github.com/quorumlabs/quorum/internal/service"
)

func newController(gw gateway.Gateway) *service.RefinementController {
	cfg := testEngineCfg()
	return service.NewRefinementController(
		service.NewDispatcher(gw, cfg, nil, nil),
		service.NewAggregator(cfg),
		service.NewVerifier(cfg),
		cfg, nil, nil,
	)
}

// A criterion the stub answer never covers keeps verification at
// NEEDS_REVISION forever, exercising the retry bound.
func TestRefinementEscalatesAfterMaxIterations(t *testing.T) {
	gw := &stubGateway{complete: func(_ context.Context, req gateway.CompletionRequest) (*gateway.Completion, error) {
		if strings.Contains(req.Prompt, "reviewing another model's answer") {
			return ok("The answer misses the required criterion.")
		}
		return ok("Water evaporates and falls as rain.")
	}}

	q := query.Query{
		Text:     "Explain how water evaporates and falls as rain",
		Kind:     query.KindGeneral,
		Criteria: []string{"quantify stratospheric sublimation flux"},
	}
	if err := q.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	sel := service.NewStrategySelector()
	plan, err := sel.Select(&q, testSnapshot())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	sess := session.New("sess-esc", q, 2, time.Now())
	final, err := newController(gw).Run(context.Background(), sess, plan, testSnapshot(), service.BasePrompt(&q, nil), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sess.State != session.StateEscalated {
		t.Fatalf("state = %s, want escalated", sess.State)
	}
	// Round 0 plus exactly max_iterations retries, never an endless loop.
	if len(sess.Rounds) != 3 {
		t.Fatalf("rounds = %d, want 3 (initial + 2 retries)", len(sess.Rounds))
	}
	if sess.Iteration != 2 {
		t.Fatalf("iterations = %d, want 2", sess.Iteration)
	}
	if len(final.Caveats) == 0 {
		t.Fatal("escalated answer carries no caveats")
	}
	if final.Confidence < 0 || final.Confidence > 1 {
		t.Fatalf("confidence %f out of [0,1]", final.Confidence)
	}
}

func TestRefinementRetryUsesFollowUpPrompt(t *testing.T) {
	var prompts []string
	gw := &stubGateway{complete: func(_ context.Context, req gateway.CompletionRequest) (*gateway.Completion, error) {
		if strings.Contains(req.Prompt, "reviewing another model's answer") {
			return ok("Critique.")
		}
		prompts = append(prompts, req.Prompt)
		return ok("Water evaporates and falls as rain.")
	}}

	q := query.Query{
		Text:     "Explain how water evaporates and falls as rain",
		Kind:     query.KindGeneral,
		Criteria: []string{"quantify stratospheric sublimation flux"},
	}
	if err := q.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	sel := service.NewStrategySelector()
	plan, err := sel.Select(&q, testSnapshot())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	sess := session.New("sess-retry", q, 1, time.Now())
	if _, err := newController(gw).Run(context.Background(), sess, plan, testSnapshot(), service.BasePrompt(&q, nil), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(prompts) < 2 {
		t.Fatalf("generator prompts = %d, want at least 2", len(prompts))
	}
	retry := prompts[1]
	if !strings.Contains(retry, "previous attempt") || !strings.Contains(retry, "rejected") {
		t.Fatalf("retry prompt does not embed the prior answer and issues: %q", retry)
	}
	if !strings.Contains(retry, "stratospheric sublimation flux") {
		t.Fatalf("retry prompt does not name the unmet criterion: %q", retry)
	}
}

func TestRefinementPassesOnFirstCleanRound(t *testing.T) {
	gw := &stubGateway{complete: func(_ context.Context, req gateway.CompletionRequest) (*gateway.Completion, error) {
		return ok("Water evaporates, condenses and falls as rain.")
	}}

	q := query.Query{Text: "Explain how water evaporates and falls as rain", Kind: query.KindGeneral}
	if err := q.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	sel := service.NewStrategySelector()
	plan, err := sel.Select(&q, testSnapshot())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	sess := session.New("sess-pass", q, 2, time.Now())
	final, err := newController(gw).Run(context.Background(), sess, plan, testSnapshot(), service.BasePrompt(&q, nil), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sess.State != session.StateDone {
		t.Fatalf("state = %s, want done", sess.State)
	}
	if final.Iterations != 0 {
		t.Fatalf("iterations = %d, want 0", final.Iterations)
	}
	if len(final.Caveats) != 0 {
		t.Fatalf("caveats = %v, want none on a clean pass", final.Caveats)
	}
}
