package service_test

import (
	"context"
	"testing"

	"github.com/quorumlabs/quorum/internal/adapter/litellm"
	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/service"
)

type stubDiscoverer struct {
	models []litellm.DiscoveredModel
}

func (d *stubDiscoverer) DiscoverModels(context.Context) ([]litellm.DiscoveredModel, error) {
	return d.models, nil
}

func TestRegistrySnapshotBeforeRefreshIsAllHealthy(t *testing.T) {
	r := service.NewModelRegistry(testModelDefs(), &stubDiscoverer{}, 0)

	snap := r.Snapshot()
	for _, m := range snap.Models {
		if !m.Healthy {
			t.Fatalf("model %s unhealthy before any refresh", m.Name)
		}
	}
}

func TestRegistrySnapshotCarriesDeclaredScoreReporting(t *testing.T) {
	r := service.NewModelRegistry(testModelDefs(), nil, 0)

	snap := r.Snapshot()
	// Only alpha declares reports_scores in the test definitions.
	if !snap.ReportsScores("alpha") {
		t.Fatal("alpha's reports_scores declaration lost in the snapshot")
	}
	if snap.ReportsScores("beta") || snap.ReportsScores("unknown") {
		t.Fatal("reports_scores asserted for a model that never declared it")
	}
}

func TestRegistryRefreshOverlaysHealth(t *testing.T) {
	disc := &stubDiscoverer{models: []litellm.DiscoveredModel{
		{Name: "alpha", Healthy: true},
		{Name: "beta", Healthy: false},
		// gamma absent from discovery: treated as unhealthy
	}}
	r := service.NewModelRegistry(testModelDefs(), disc, 0)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	snap := r.Snapshot()
	health := map[string]bool{}
	for _, m := range snap.Models {
		health[m.Name] = m.Healthy
	}
	if !health["alpha"] || health["beta"] || health["gamma"] {
		t.Fatalf("health = %v, want only alpha healthy", health)
	}
}

func TestRegistrySnapshotIsImmutable(t *testing.T) {
	disc := &stubDiscoverer{models: []litellm.DiscoveredModel{
		{Name: "alpha", Healthy: true},
		{Name: "beta", Healthy: true},
		{Name: "gamma", Healthy: true},
	}}
	r := service.NewModelRegistry(testModelDefs(), disc, 0)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	before := r.Snapshot()

	// A session's eligibility view must not shift under it mid-flight.
	disc.models = []litellm.DiscoveredModel{{Name: "alpha", Healthy: false}}
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	for _, m := range before.Models {
		if !m.Healthy {
			t.Fatalf("earlier snapshot mutated by a later refresh: %s", m.Name)
		}
	}
}

func TestSnapshotEligibleOrdersByCapability(t *testing.T) {
	snap := testSnapshot()
	eligible := snap.Eligible(query.SkillReasoning)
	if len(eligible) != 3 {
		t.Fatalf("eligible = %d, want 3", len(eligible))
	}
	if eligible[0].Name != "alpha" || eligible[2].Name != "gamma" {
		t.Fatalf("order = %s..%s, want strongest first", eligible[0].Name, eligible[2].Name)
	}
}
