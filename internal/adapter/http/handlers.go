package http

import (
	"context"
	"net/http"
	"time"

	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/domain/session"
	"github.com/quorumlabs/quorum/internal/resilience"
	"github.com/quorumlabs/quorum/internal/service"

	"github.com/quorumlabs/quorum/internal/adapter/ws"
)

const maxBodySize = 1 << 20 // 1 MiB

// Engine is the orchestration entry point the API fronts.
type Engine interface {
	Orchestrate(ctx context.Context, q query.Query) (*session.FinalAnswer, error)
}

// Handlers holds the dependencies of all HTTP handlers.
type Handlers struct {
	Engine   Engine
	Registry *service.ModelRegistry
	Breaker  *resilience.Breaker
	Hub      *ws.Hub
}

// orchestrateRequest is the wire shape of one orchestration call.
type orchestrateRequest struct {
	Text             string             `json:"text"`
	Kind             string             `json:"kind,omitempty"`
	Accuracy         string             `json:"accuracy,omitempty"`
	Format           string             `json:"format,omitempty"`
	LatencySensitive bool               `json:"latency_sensitive,omitempty"`
	DeadlineMS       int64              `json:"deadline_ms,omitempty"`
	CostCeilingUSD   float64            `json:"cost_ceiling_usd,omitempty"`
	Criteria         []string           `json:"criteria,omitempty"`
	Tool             *query.ToolRequest `json:"tool,omitempty"`
	Retrieval        bool               `json:"retrieval,omitempty"`
}

// HandleOrchestrate runs one query through the engine and returns the final
// answer. Session errors map to typed error responses; a failure is never
// returned with a 200.
func (h *Handlers) HandleOrchestrate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[orchestrateRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	q := query.Query{
		Text:             req.Text,
		Kind:             query.Kind(req.Kind),
		Accuracy:         query.Accuracy(req.Accuracy),
		Format:           query.Format(req.Format),
		LatencySensitive: req.LatencySensitive,
		CostCeilingUSD:   req.CostCeilingUSD,
		Criteria:         req.Criteria,
		Tool:             req.Tool,
		RetrievalEnabled: req.Retrieval,
	}
	if req.DeadlineMS > 0 {
		q.Deadline = time.Now().Add(time.Duration(req.DeadlineMS) * time.Millisecond)
	}

	answer, err := h.Engine.Orchestrate(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// modelInfo is the wire shape of one registry entry.
type modelInfo struct {
	Name         string             `json:"name"`
	Skills       map[string]float64 `json:"skills"`
	CostPer1KUSD float64            `json:"cost_per_1k_usd"`
	MaxContext   int                `json:"max_context,omitempty"`
	Healthy      bool               `json:"healthy"`
}

// HandleListModels returns the current capability snapshot.
func (h *Handlers) HandleListModels(w http.ResponseWriter, _ *http.Request) {
	snap := h.Registry.Snapshot()

	out := make([]modelInfo, 0, len(snap.Models))
	for _, m := range snap.Models {
		skills := make(map[string]float64, len(m.Skills))
		for k, v := range m.Skills {
			skills[string(k)] = v
		}
		out = append(out, modelInfo{
			Name:         m.Name,
			Skills:       skills,
			CostPer1KUSD: m.CostPer1KUSD,
			MaxContext:   m.MaxContext,
			Healthy:      m.Healthy,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out, "taken_at": snap.TakenAt})
}

// HandleHealth reports process liveness plus gateway breaker state.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.Breaker != nil {
		resp["gateway_breaker"] = string(h.Breaker.State())
	}
	if h.Hub != nil {
		resp["ws_connections"] = h.Hub.ConnectionCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
