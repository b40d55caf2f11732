package ws

// Event types broadcast over the hub while a session runs.
const (
	EventSessionStarted  = "session.started"
	EventRoundDispatched = "round.dispatched"
	EventCallFinished    = "call.finished"
	EventRoundAggregated = "round.aggregated"
	EventRoundVerified   = "round.verified"
	EventSessionFinished = "session.finished"
)

// SessionStartedEvent announces a new orchestration session.
type SessionStartedEvent struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Accuracy  string `json:"accuracy"`
	Strategy  string `json:"strategy"`
}

// RoundDispatchedEvent announces provider calls going out for a round.
type RoundDispatchedEvent struct {
	SessionID string   `json:"session_id"`
	Round     int      `json:"round"`
	Strategy  string   `json:"strategy"`
	Models    []string `json:"models"`
}

// CallFinishedEvent reports one provider call reaching a terminal state.
type CallFinishedEvent struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Model     string `json:"model"`
	Role      string `json:"role"`
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// RoundAggregatedEvent reports the consensus produced for a round.
type RoundAggregatedEvent struct {
	SessionID  string  `json:"session_id"`
	Round      int     `json:"round"`
	Strategy   string  `json:"strategy"`
	Confidence float64 `json:"confidence"`
	Candidates int     `json:"candidates"`
	Degraded   bool    `json:"degraded,omitempty"`
}

// RoundVerifiedEvent reports the verifier's verdict for a round.
type RoundVerifiedEvent struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Status    string `json:"status"`
	Issues    int    `json:"issues"`
}

// SessionFinishedEvent announces a terminal session state.
type SessionFinishedEvent struct {
	SessionID  string  `json:"session_id"`
	State      string  `json:"state"`
	Iterations int     `json:"iterations"`
	Confidence float64 `json:"confidence,omitempty"`
	CostUSD    float64 `json:"cost_usd"`
	Error      string  `json:"error,omitempty"`
}
