package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelx "github.com/quorumlabs/quorum/internal/adapter/otel"
	"github.com/quorumlabs/quorum/internal/adapter/ws"
	"github.com/quorumlabs/quorum/internal/config"
	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/domain/candidate"
	"github.com/quorumlabs/quorum/internal/domain/consensus"
	"github.com/quorumlabs/quorum/internal/domain/session"
	"github.com/quorumlabs/quorum/internal/port/broadcast"
	"github.com/quorumlabs/quorum/internal/port/gateway"
)

// Outcome is what one round of dispatch hands to the aggregator: the
// successful candidates in arrival order, the terminal failure count, and
// the token/cost usage of every call that produced usage data (including
// race losers whose text was discarded).
type Outcome struct {
	Candidates []candidate.Answer
	Failed     int
	Cancelled  int
	Degraded   bool
	TokensIn   int
	TokensOut  int
	CostUSD    float64
}

// Dispatcher executes the provider calls a plan implies, enforcing
// per-call timeouts, bounded retries on transient failure, and the
// strategy's completion semantics.
type Dispatcher struct {
	gw      gateway.Gateway
	cfg     config.Engine
	hub     broadcast.Broadcaster
	metrics *otelx.Metrics
	now     func() time.Time
}

// NewDispatcher creates a dispatcher over the provider gateway. metrics may
// be nil when telemetry is disabled.
func NewDispatcher(gw gateway.Gateway, cfg config.Engine, hub broadcast.Broadcaster, m *otelx.Metrics) *Dispatcher {
	if hub == nil {
		hub = broadcast.Noop{}
	}
	return &Dispatcher{gw: gw, cfg: cfg, hub: hub, metrics: m, now: time.Now}
}

// Dispatch runs one round of the plan. Concurrent strategies issue all
// calls at once and wait for every call to reach a terminal state; parallel
// race additionally cancels the stragglers once a valid winner arrives but
// still awaits them so their cost is accounted. Challenge-and-refine runs
// generator then critic sequentially.
//
// Returns ErrBudgetExceeded without issuing any call when the query
// deadline has already passed.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, plan *Plan, snap Snapshot, prompt string) (*Outcome, error) {
	remaining := sess.Query.Remaining(d.now(), d.cfg.DefaultDeadline)
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: deadline passed before dispatch", domain.ErrBudgetExceeded)
	}

	roundsLeft := 1 + (sess.MaxIterations - sess.Iteration)
	perCall := remaining / time.Duration(roundsLeft*plan.SeqDepth)

	ctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	d.hub.BroadcastEvent(ctx, ws.EventRoundDispatched, ws.RoundDispatchedEvent{
		SessionID: sess.ID,
		Round:     len(sess.Rounds),
		Strategy:  string(plan.Strategy),
		Models:    plan.Models(),
	})

	if plan.Strategy.Concurrent() {
		return d.dispatchConcurrent(ctx, sess, plan, snap, prompt, perCall), nil
	}
	return d.dispatchSequential(ctx, sess, plan, snap, prompt, perCall), nil
}

type callResult struct {
	assignment consensus.Assignment
	completion *gateway.Completion
	err        error
	cancelled  bool
}

func (d *Dispatcher) dispatchConcurrent(ctx context.Context, sess *session.Session, plan *Plan, snap Snapshot, prompt string, perCall time.Duration) *Outcome {
	callCtx, cancelCalls := context.WithCancel(ctx)
	defer cancelCalls()

	results := make(chan callResult, len(plan.Assignments))
	for _, a := range plan.Assignments {
		go func(a consensus.Assignment) {
			results <- d.runCall(callCtx, a, rolePrompt(prompt, a), perCall, snap.ReportsScores(a.Model))
		}(a)
	}

	race := plan.Strategy == consensus.ParallelRace
	out := &Outcome{}
	won := false

	for range plan.Assignments {
		r := <-results
		d.recordCall(ctx, sess, &r, out, snap)
		if r.err != nil {
			continue
		}
		if race && won {
			// Loser finished after the winner: cost was accounted
			// above, the text is discarded.
			continue
		}
		out.Candidates = append(out.Candidates, d.answer(&r, len(out.Candidates)))
		if race && plausibleAnswer(r.completion.Text) {
			won = true
			cancelCalls()
		}
	}

	successes := len(out.Candidates)
	if race && won {
		successes = 1
	}
	out.Degraded = successes > 0 && successes < plan.Strategy.MinSuccesses()
	return out
}

// dispatchSequential runs challenge-and-refine: the generator answers, the
// critic reviews the generated text. A failed generator ends the round with
// zero candidates; a failed critic degrades the round but keeps the
// generator's answer.
func (d *Dispatcher) dispatchSequential(ctx context.Context, sess *session.Session, plan *Plan, snap Snapshot, prompt string, perCall time.Duration) *Outcome {
	out := &Outcome{}

	gen := d.runCall(ctx, plan.Assignments[0], prompt, perCall, snap.ReportsScores(plan.Assignments[0].Model))
	d.recordCall(ctx, sess, &gen, out, snap)
	if gen.err != nil {
		return out
	}
	out.Candidates = append(out.Candidates, d.answer(&gen, 0))

	crit := d.runCall(ctx, plan.Assignments[1], criticPrompt(prompt, gen.completion.Text), perCall, snap.ReportsScores(plan.Assignments[1].Model))
	d.recordCall(ctx, sess, &crit, out, snap)
	if crit.err != nil {
		out.Degraded = true
		return out
	}
	out.Candidates = append(out.Candidates, d.answer(&crit, 1))
	return out
}

// runCall performs one provider call with its own timeout and up to
// cfg.CallRetries retries on transient failure. Non-retryable failures
// (auth, malformed request, content policy) abandon the call immediately.
// logprobs is only requested from models declared to report them.
func (d *Dispatcher) runCall(ctx context.Context, a consensus.Assignment, prompt string, timeout time.Duration, logprobs bool) callResult {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	op := func() (*gateway.Completion, error) {
		comp, err := d.gw.Complete(cctx, gateway.CompletionRequest{
			Model:       a.Model,
			Prompt:      prompt,
			MaxTokens:   d.cfg.MaxTokens,
			Temperature: d.cfg.Temperature,
			Logprobs:    logprobs,
		})
		if err != nil {
			pe := gateway.AsError(err, a.Model)
			if !pe.Retryable() {
				return nil, backoff.Permanent(pe)
			}
			return nil, pe
		}
		return comp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	comp, err := backoff.Retry(cctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(d.cfg.CallRetries+1)),
		backoff.WithNotify(func(error, time.Duration) {
			if d.metrics != nil {
				d.metrics.CallRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("model", a.Model)))
			}
		}),
	)

	return callResult{
		assignment: a,
		completion: comp,
		err:        err,
		cancelled:  err != nil && errors.Is(ctx.Err(), context.Canceled),
	}
}

// recordCall accounts usage and emits the per-call event and metrics for
// one terminal call, success or not.
func (d *Dispatcher) recordCall(ctx context.Context, sess *session.Session, r *callResult, out *Outcome, snap Snapshot) {
	ev := ws.CallFinishedEvent{
		SessionID: sess.ID,
		Round:     len(sess.Rounds),
		Model:     r.assignment.Model,
		Role:      string(r.assignment.Role),
		Success:   r.err == nil,
		Cancelled: r.cancelled,
	}

	if r.err == nil {
		out.TokensIn += r.completion.PromptTokens
		out.TokensOut += r.completion.CompletionTokens
		tokens := r.completion.PromptTokens + r.completion.CompletionTokens
		out.CostUSD += float64(tokens) / 1000 * snap.Cost(r.assignment.Model)
		ev.LatencyMS = r.completion.Latency.Milliseconds()
	} else if r.cancelled {
		out.Cancelled++
	} else {
		out.Failed++
		pe := gateway.AsError(r.err, r.assignment.Model)
		ev.ErrorKind = string(pe.Kind)
		slog.Warn("provider call failed",
			"session_id", sess.ID,
			"model", r.assignment.Model,
			"kind", pe.Kind,
			"error", r.err,
		)
	}

	if d.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("model", r.assignment.Model))
		d.metrics.ProviderCalls.Add(ctx, 1, attrs)
		if r.err == nil {
			d.metrics.CallLatency.Record(ctx, r.completion.Latency.Seconds(), attrs)
		} else if !r.cancelled {
			d.metrics.ProviderFailures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("model", r.assignment.Model),
				attribute.String("kind", ev.ErrorKind),
			))
		}
	}

	d.hub.BroadcastEvent(ctx, ws.EventCallFinished, ev)
}

func (d *Dispatcher) answer(r *callResult, arrival int) candidate.Answer {
	conf := r.completion.Confidence
	if conf == 0 {
		conf = d.cfg.DefaultConfidence
	}
	return candidate.Answer{
		Model:            r.assignment.Model,
		Role:             r.assignment.Role,
		Aspect:           r.assignment.Aspect,
		Text:             r.completion.Text,
		PromptTokens:     r.completion.PromptTokens,
		CompletionTokens: r.completion.CompletionTokens,
		Latency:          r.completion.Latency,
		Confidence:       conf,
		Arrival:          arrival,
	}
}

// plausibleAnswer is the cheap validity check a race winner must pass:
// non-empty and not an outright refusal.
func plausibleAnswer(text string) bool {
	t := strings.TrimSpace(strings.ToLower(text))
	if t == "" {
		return false
	}
	for _, prefix := range []string{"i can't", "i cannot", "i won't", "i'm sorry", "i am sorry", "i'm unable", "i am unable"} {
		if strings.HasPrefix(t, prefix) {
			return false
		}
	}
	return true
}
