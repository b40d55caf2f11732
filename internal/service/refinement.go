package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelx "github.com/quorumlabs/quorum/internal/adapter/otel"
	"github.com/quorumlabs/quorum/internal/adapter/ws"
	"github.com/quorumlabs/quorum/internal/config"
	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/domain/session"
	"github.com/quorumlabs/quorum/internal/domain/verify"
	"github.com/quorumlabs/quorum/internal/port/broadcast"
	"github.com/quorumlabs/quorum/internal/port/toolbroker"
)

// RefinementController drives the dispatch→aggregate→verify loop for one
// session, bounded by the iteration budget. The state machine is the single
// source of truth for session outcomes:
//
//	INIT → DISPATCHED → AGGREGATED → VERIFIED → { DONE | RETRY | ESCALATED | FAILED }
//
// RETRY re-enters DISPATCHED with a follow-up prompt under
// challenge-and-refine semantics. ESCALATED returns the best round seen so
// far with a caveat. FAILED is surfaced as a typed error, never dressed up
// as a success.
type RefinementController struct {
	dispatcher *Dispatcher
	aggregator *Aggregator
	verifier   *Verifier
	cfg        config.Engine
	hub        broadcast.Broadcaster
	metrics    *otelx.Metrics
	now        func() time.Time
}

// NewRefinementController wires the per-round components together.
func NewRefinementController(d *Dispatcher, a *Aggregator, v *Verifier, cfg config.Engine, hub broadcast.Broadcaster, m *otelx.Metrics) *RefinementController {
	if hub == nil {
		hub = broadcast.Noop{}
	}
	return &RefinementController{
		dispatcher: d,
		aggregator: a,
		verifier:   v,
		cfg:        cfg,
		hub:        hub,
		metrics:    m,
		now:        time.Now,
	}
}

// Run executes rounds until a terminal state is reached. tool carries the
// authoritative broker result for the verifier, when the query used one.
func (c *RefinementController) Run(ctx context.Context, sess *session.Session, plan *Plan, snap Snapshot, basePrompt string, tool *toolbroker.Result) (*session.FinalAnswer, error) {
	prompt := basePrompt

	for {
		roundCtx, span := otelx.StartRoundSpan(ctx, len(sess.Rounds), string(plan.Strategy))
		final, err, next := c.runRound(roundCtx, sess, plan, snap, basePrompt, prompt, tool)
		span.End()

		if sess.State.Terminal() {
			return final, err
		}

		// RETRY: targeted correction under challenge-and-refine
		// semantics regardless of the opening strategy.
		prompt = next
		plan, err = RevisionPlan(plan.Skill, snap)
		if err != nil {
			sess.State = session.StateFailed
			return nil, err
		}
	}
}

// runRound performs one full cycle and advances the session state. When the
// round ends in RETRY, next is the follow-up prompt for the re-entry.
func (c *RefinementController) runRound(ctx context.Context, sess *session.Session, plan *Plan, snap Snapshot, basePrompt, prompt string, tool *toolbroker.Result) (final *session.FinalAnswer, err error, next string) {
	started := c.now()
	sess.State = session.StateDispatched

	out, err := c.dispatcher.Dispatch(ctx, sess, plan, snap, prompt)
	if err != nil {
		if errors.Is(err, domain.ErrBudgetExceeded) && len(sess.Rounds) > 0 {
			// Mid-session budget exhaustion returns the partial
			// result rather than discarding the rounds already paid for.
			return c.escalate(sess, "the deadline was reached before verification fully passed"), nil, ""
		}
		sess.State = session.StateFailed
		return nil, err, ""
	}
	sess.AddCost(out.TokensIn, out.TokensOut, out.CostUSD)

	sess.State = session.StateAggregated
	result, err := c.aggregator.Combine(&sess.Query, plan, snap, out)
	if err != nil {
		sess.State = session.StateFailed
		return nil, err, ""
	}
	c.hub.BroadcastEvent(ctx, ws.EventRoundAggregated, ws.RoundAggregatedEvent{
		SessionID:  sess.ID,
		Round:      len(sess.Rounds),
		Strategy:   string(result.Strategy),
		Confidence: result.Confidence,
		Candidates: len(result.Candidates),
		Degraded:   result.Degraded,
	})

	report := c.verifier.Verify(&sess.Query, result, tool, sess.BudgetLeft())
	sess.State = session.StateVerified
	sess.Rounds = append(sess.Rounds, session.Round{
		Strategy:  plan.Strategy,
		Consensus: *result,
		Report:    report,
		Elapsed:   c.now().Sub(started),
	})
	c.hub.BroadcastEvent(ctx, ws.EventRoundVerified, ws.RoundVerifiedEvent{
		SessionID: sess.ID,
		Round:     len(sess.Rounds) - 1,
		Status:    string(report.Status),
		Issues:    len(report.Issues),
	})
	if c.metrics != nil {
		c.metrics.Verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(report.Status))))
	}

	switch report.Status {
	case verify.StatusPass:
		sess.State = session.StateDone
		return c.finalAnswer(sess, sess.LastRound(), nil), nil, ""

	case verify.StatusFail:
		sess.State = session.StateFailed
		return nil, fmt.Errorf("%w: %s", domain.ErrVerificationFailed, summarizeIssues(report)), ""

	default: // NEEDS_REVISION
		switch {
		case !sess.BudgetLeft():
			return c.escalate(sess, fmt.Sprintf("verification did not fully pass after %d iterations", sess.Iteration)), nil, ""
		case sess.OverCostCeiling():
			return c.escalate(sess, fmt.Sprintf("the cost ceiling of $%.4f was reached before verification fully passed", sess.Query.CostCeilingUSD)), nil, ""
		}

		sess.Iteration++
		sess.State = session.StateRetry
		slog.Info("retrying with revision",
			"session_id", sess.ID,
			"iteration", sess.Iteration,
			"issues", len(report.Issues),
		)
		return nil, nil, followUpPrompt(basePrompt, result.Text, report.Issues)
	}
}

// escalate ends the session with the best round seen across all iterations,
// ranked by fewest outstanding issues, flagged with the caveat.
func (c *RefinementController) escalate(sess *session.Session, caveat string) *session.FinalAnswer {
	sess.State = session.StateEscalated
	best := sess.BestRound()

	caveats := []string{caveat}
	if best.Report != nil {
		for _, is := range best.Report.Issues {
			caveats = append(caveats, fmt.Sprintf("unresolved %s: %s", is.Kind, is.Description))
		}
	}
	return c.finalAnswer(sess, best, caveats)
}

func (c *RefinementController) finalAnswer(sess *session.Session, round *session.Round, caveats []string) *session.FinalAnswer {
	return &session.FinalAnswer{
		Text:       round.Consensus.Text,
		Confidence: round.Consensus.Confidence,
		Strategy:   round.Consensus.Strategy,
		Iterations: sess.Iteration,
		Caveats:    caveats,
		SessionID:  sess.ID,
		CostUSD:    sess.CostUSD,
		Elapsed:    c.now().Sub(sess.StartedAt),
	}
}

func summarizeIssues(report *verify.Report) string {
	if len(report.Issues) == 0 {
		return "no issues recorded"
	}
	first := report.Issues[0]
	if len(report.Issues) == 1 {
		return first.Description
	}
	return fmt.Sprintf("%s (and %d more issues)", first.Description, len(report.Issues)-1)
}
