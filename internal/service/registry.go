// Package service contains the orchestration and consensus engine: model
// registry, strategy selection, concurrent dispatch, aggregation,
// verification and the refinement loop that ties them together.
package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quorumlabs/quorum/internal/adapter/litellm"
	"github.com/quorumlabs/quorum/internal/config"
	"github.com/quorumlabs/quorum/internal/domain/query"
)

// Model is one entry of a capability snapshot: a declared model plus its
// current reachability.
type Model struct {
	Name          string
	Skills        map[query.Skill]float64
	CostPer1KUSD  float64
	MaxContext    int
	ReportsScores bool // provider returns logprob-derived confidence
	Healthy       bool
}

// Capability returns the model's score for a skill, 0 when undeclared.
func (m *Model) Capability(s query.Skill) float64 {
	return m.Skills[s]
}

// Snapshot is the immutable capability view one session works against.
// Registry refreshes never touch a snapshot already handed out, so a
// session's eligibility decisions stay coherent for its whole lifetime.
type Snapshot struct {
	Models  []Model
	TakenAt time.Time
}

// Eligible returns the healthy models with a nonzero score for the skill,
// strongest first. Ties break by lower cost.
func (s Snapshot) Eligible(skill query.Skill) []Model {
	out := make([]Model, 0, len(s.Models))
	for _, m := range s.Models {
		if m.Healthy && m.Capability(skill) > 0 {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].Capability(skill), out[j].Capability(skill)
		if ci != cj {
			return ci > cj
		}
		return out[i].CostPer1KUSD < out[j].CostPer1KUSD
	})
	return out
}

// Capability returns the named model's score for a skill, 0 when the model
// is unknown to the snapshot.
func (s Snapshot) Capability(name string, skill query.Skill) float64 {
	for i := range s.Models {
		if s.Models[i].Name == name {
			return s.Models[i].Capability(skill)
		}
	}
	return 0
}

// Cost returns the named model's blended per-1K-token cost in USD.
func (s Snapshot) Cost(name string) float64 {
	for i := range s.Models {
		if s.Models[i].Name == name {
			return s.Models[i].CostPer1KUSD
		}
	}
	return 0
}

// ReportsScores reports whether the named model returns logprob-derived
// confidence, false for models unknown to the snapshot.
func (s Snapshot) ReportsScores(name string) bool {
	for i := range s.Models {
		if s.Models[i].Name == name {
			return s.Models[i].ReportsScores
		}
	}
	return false
}

// Discoverer lists the gateway's models and their health.
type Discoverer interface {
	DiscoverModels(ctx context.Context) ([]litellm.DiscoveredModel, error)
}

// ModelRegistry maintains capability snapshots from the declared model
// configuration, overlaying periodically refreshed health from the gateway.
// Capability scores themselves never change at runtime; only health does.
type ModelRegistry struct {
	mu          sync.RWMutex
	health      map[string]bool // nil until the first successful refresh
	lastRefresh time.Time

	defs     []config.ModelDef
	disc     Discoverer
	interval time.Duration
}

// NewModelRegistry creates a registry over the declared model definitions.
// disc may be nil; the registry then treats every declared model as healthy.
// Pass interval <= 0 to disable periodic polling (manual refresh only).
func NewModelRegistry(defs []config.ModelDef, disc Discoverer, interval time.Duration) *ModelRegistry {
	return &ModelRegistry{
		defs:     defs,
		disc:     disc,
		interval: interval,
	}
}

// Start launches the background health refresh goroutine. The first refresh
// is performed synchronously so the caller has health data immediately.
// Subsequent refreshes happen on the configured interval until ctx is
// cancelled.
func (r *ModelRegistry) Start(ctx context.Context) {
	if r.disc == nil {
		return
	}

	if err := r.Refresh(ctx); err != nil {
		slog.Warn("model registry: initial refresh failed", "error", err)
	}

	if r.interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Refresh(ctx); err != nil {
					slog.Warn("model registry: periodic refresh failed", "error", err)
				}
			}
		}
	}()
}

// Refresh pulls model health from the gateway and swaps the health overlay.
// Declared models the gateway does not list are marked unhealthy; models
// the gateway lists but the configuration does not declare are ignored,
// since they carry no capability scores to select on.
func (r *ModelRegistry) Refresh(ctx context.Context) error {
	discovered, err := r.disc.DiscoverModels(ctx)
	if err != nil {
		return err
	}

	health := make(map[string]bool, len(discovered))
	for _, m := range discovered {
		health[m.Name] = m.Healthy
	}

	r.mu.Lock()
	r.health = health
	r.lastRefresh = time.Now()
	r.mu.Unlock()

	return nil
}

// Snapshot builds an immutable capability snapshot from the declared models
// and the latest health overlay. Before the first refresh (or without a
// discoverer) all declared models count as healthy.
func (r *ModelRegistry) Snapshot() Snapshot {
	r.mu.RLock()
	health := r.health
	taken := r.lastRefresh
	r.mu.RUnlock()

	if taken.IsZero() {
		taken = time.Now()
	}

	snap := Snapshot{Models: make([]Model, 0, len(r.defs)), TakenAt: taken}
	for _, def := range r.defs {
		skills := make(map[query.Skill]float64, len(def.Skills))
		for k, v := range def.Skills {
			skills[query.Skill(k)] = v
		}
		healthy := true
		if health != nil {
			healthy = health[def.Name]
		}
		snap.Models = append(snap.Models, Model{
			Name:          def.Name,
			Skills:        skills,
			CostPer1KUSD:  def.CostPer1KUSD,
			MaxContext:    def.MaxContext,
			ReportsScores: def.ReportsScores,
			Healthy:       healthy,
		})
	}
	return snap
}
