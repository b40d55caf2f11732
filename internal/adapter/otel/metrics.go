package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "quorum"

// Metrics holds all engine metric instruments. Attribute conventions:
// strategy on session/round instruments, model and error kind on call
// instruments, status on verification instruments.
type Metrics struct {
	SessionsStarted  metric.Int64Counter
	SessionsFinished metric.Int64Counter
	ProviderCalls    metric.Int64Counter
	ProviderFailures metric.Int64Counter
	CallRetries      metric.Int64Counter
	Verifications    metric.Int64Counter
	CallLatency      metric.Float64Histogram
	SessionCost      metric.Float64Histogram
	SessionRounds    metric.Int64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsStarted, err = meter.Int64Counter("quorum.sessions.started",
		metric.WithDescription("Number of orchestration sessions started"))
	if err != nil {
		return nil, err
	}

	m.SessionsFinished, err = meter.Int64Counter("quorum.sessions.finished",
		metric.WithDescription("Number of sessions reaching a terminal state"))
	if err != nil {
		return nil, err
	}

	m.ProviderCalls, err = meter.Int64Counter("quorum.provider.calls",
		metric.WithDescription("Number of provider calls dispatched"))
	if err != nil {
		return nil, err
	}

	m.ProviderFailures, err = meter.Int64Counter("quorum.provider.failures",
		metric.WithDescription("Number of provider calls reaching terminal failure"))
	if err != nil {
		return nil, err
	}

	m.CallRetries, err = meter.Int64Counter("quorum.provider.retries",
		metric.WithDescription("Number of provider call retries"))
	if err != nil {
		return nil, err
	}

	m.Verifications, err = meter.Int64Counter("quorum.verifications",
		metric.WithDescription("Number of verification passes by status"))
	if err != nil {
		return nil, err
	}

	m.CallLatency, err = meter.Float64Histogram("quorum.provider.latency_seconds",
		metric.WithDescription("Provider call latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.SessionCost, err = meter.Float64Histogram("quorum.session.cost_usd",
		metric.WithDescription("Session cost in USD"))
	if err != nil {
		return nil, err
	}

	m.SessionRounds, err = meter.Int64Histogram("quorum.session.rounds",
		metric.WithDescription("Rounds per session"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
