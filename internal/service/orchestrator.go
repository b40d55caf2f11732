package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	otelx "github.com/quorumlabs/quorum/internal/adapter/otel"
	"github.com/quorumlabs/quorum/internal/adapter/ws"
	"github.com/quorumlabs/quorum/internal/config"
	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/domain/session"
	"github.com/quorumlabs/quorum/internal/logger"
	"github.com/quorumlabs/quorum/internal/port/auditstore"
	"github.com/quorumlabs/quorum/internal/port/broadcast"
	"github.com/quorumlabs/quorum/internal/port/retrieval"
	"github.com/quorumlabs/quorum/internal/port/toolbroker"
)

// Orchestrator is the caller-facing entry point of the engine. It owns the
// session lifecycle around the refinement loop: capability snapshotting,
// strategy selection, context retrieval, tool invocation, archiving and
// progress events.
type Orchestrator struct {
	registry  *ModelRegistry
	selector  *StrategySelector
	refiner   *RefinementController
	retriever retrieval.Retriever // nil disables retrieval
	broker    toolbroker.Broker   // nil disables tools
	archive   auditstore.Store
	hub       broadcast.Broadcaster
	metrics   *otelx.Metrics
	cfg       config.Engine
	now       func() time.Time
}

// NewOrchestrator wires the engine. retriever and broker may be nil when
// the corresponding subsystems are not configured; archive and hub fall
// back to no-ops when nil.
func NewOrchestrator(
	registry *ModelRegistry,
	selector *StrategySelector,
	refiner *RefinementController,
	retriever retrieval.Retriever,
	broker toolbroker.Broker,
	archive auditstore.Store,
	hub broadcast.Broadcaster,
	metrics *otelx.Metrics,
	cfg config.Engine,
) *Orchestrator {
	if archive == nil {
		archive = auditstore.Noop{}
	}
	if hub == nil {
		hub = broadcast.Noop{}
	}
	return &Orchestrator{
		registry:  registry,
		selector:  selector,
		refiner:   refiner,
		retriever: retriever,
		broker:    broker,
		archive:   archive,
		hub:       hub,
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Orchestrate runs one query end to end and returns the final answer, or a
// typed error from the session taxonomy. A failed session is surfaced as an
// error, never as degraded text dressed up as a confident answer.
func (o *Orchestrator) Orchestrate(ctx context.Context, q query.Query) (*session.FinalAnswer, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sess := session.New(uuid.NewString(), q, o.cfg.MaxIterations, o.now())
	ctx = logger.WithSessionID(ctx, sess.ID)
	ctx, span := otelx.StartSessionSpan(ctx, sess.ID, string(q.Kind))
	defer span.End()

	snap := o.registry.Snapshot()
	plan, err := o.selector.Select(&q, snap)
	if err != nil {
		sess.State = session.StateFailed
		o.finish(ctx, sess, nil, err)
		return nil, err
	}

	slog.Info("session started",
		"session_id", sess.ID,
		"kind", q.Kind,
		"accuracy", q.Accuracy,
		"strategy", plan.Strategy,
		"models", plan.Models(),
	)
	if o.metrics != nil {
		o.metrics.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", string(plan.Strategy))))
	}
	o.hub.BroadcastEvent(ctx, ws.EventSessionStarted, ws.SessionStartedEvent{
		SessionID: sess.ID,
		Kind:      string(q.Kind),
		Accuracy:  string(q.Accuracy),
		Strategy:  string(plan.Strategy),
	})

	// Retrieval and tool invocation are independent pre-dispatch steps;
	// both degrade to nil on failure, so the group never aborts the session.
	var (
		passages []retrieval.Passage
		tool     *toolbroker.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		passages = o.retrieve(gctx, &q)
		return nil
	})
	g.Go(func() error {
		tool = o.invokeTool(gctx, &q)
		return nil
	})
	_ = g.Wait()

	prompt := BasePrompt(&q, passages)

	final, err := o.refiner.Run(ctx, sess, plan, snap, prompt, tool)
	o.finish(ctx, sess, final, err)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	return final, nil
}

// retrieve fetches context passages when the query asks for them. A failing
// retrieval subsystem degrades to an uncontextualized prompt rather than
// failing the session.
func (o *Orchestrator) retrieve(ctx context.Context, q *query.Query) []retrieval.Passage {
	if !q.RetrievalEnabled || o.retriever == nil {
		return nil
	}
	passages, err := o.retriever.Retrieve(ctx, q.Text, o.cfg.RetrievalTopK)
	if err != nil {
		slog.Warn("retrieval failed, continuing without context", "error", err)
		return nil
	}
	return passages
}

// invokeTool runs the query's declared tool once, before the first round.
// The authoritative result feeds every verification pass of the session. A
// broker failure degrades to verification without the authoritative value.
func (o *Orchestrator) invokeTool(ctx context.Context, q *query.Query) *toolbroker.Result {
	if q.Tool == nil || o.broker == nil {
		return nil
	}
	result, err := o.broker.Invoke(ctx, q.Tool.Name, q.Tool.Args)
	if err != nil {
		slog.Warn("tool invocation failed, verifying without authoritative result",
			"tool", q.Tool.Name,
			"error", err,
		)
		return nil
	}
	return result
}

// finish archives the terminal session and emits the closing event and
// metrics. Archiving is best-effort and detached from the caller's
// cancellation.
func (o *Orchestrator) finish(ctx context.Context, sess *session.Session, final *session.FinalAnswer, err error) {
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if aerr := o.archive.ArchiveSession(archiveCtx, sess); aerr != nil {
		slog.Warn("session archive failed", "session_id", sess.ID, "error", aerr)
	}

	ev := ws.SessionFinishedEvent{
		SessionID:  sess.ID,
		State:      string(sess.State),
		Iterations: sess.Iteration,
		CostUSD:    sess.CostUSD,
	}
	if final != nil {
		ev.Confidence = final.Confidence
	}
	if err != nil {
		ev.Error = err.Error()
	}
	o.hub.BroadcastEvent(ctx, ws.EventSessionFinished, ev)

	if o.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("state", string(sess.State)))
		o.metrics.SessionsFinished.Add(ctx, 1, attrs)
		o.metrics.SessionCost.Record(ctx, sess.CostUSD, attrs)
		o.metrics.SessionRounds.Record(ctx, int64(len(sess.Rounds)), attrs)
	}

	slog.Info("session finished",
		"session_id", sess.ID,
		"state", sess.State,
		"rounds", len(sess.Rounds),
		"iterations", sess.Iteration,
		"tokens_in", sess.TokensIn,
		"tokens_out", sess.TokensOut,
		"cost_usd", sess.CostUSD,
	)
}
