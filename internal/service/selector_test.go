package service_test

import (
	"errors"
	"testing"

	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/domain/consensus"
	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/service"
)

func validated(t *testing.T, q query.Query) query.Query {
	t.Helper()
	if err := q.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return q
}

func TestSelectMinimalSimpleTaskUsesSingleBest(t *testing.T) {
	sel := service.NewStrategySelector()
	q := validated(t, query.Query{Text: "say hi", Kind: query.KindGeneral, Accuracy: query.AccuracyMinimal})

	plan, err := sel.Select(&q, testSnapshot())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.Strategy != consensus.SingleBest {
		t.Fatalf("strategy = %s, want single_best", plan.Strategy)
	}
	// Highest reasoning capability in the snapshot.
	if got := plan.Assignments[0].Model; got != "alpha" {
		t.Fatalf("model = %s, want the highest-capability alpha", got)
	}
}

func TestSelectVerifiableKindUsesChallengeAndRefine(t *testing.T) {
	sel := service.NewStrategySelector()
	for _, kind := range []query.Kind{query.KindArithmetic, query.KindCode} {
		q := validated(t, query.Query{Text: "solve it", Kind: kind, Accuracy: query.AccuracyMaximal})

		plan, err := sel.Select(&q, testSnapshot())
		if err != nil {
			t.Fatalf("Select(%s): %v", kind, err)
		}
		if plan.Strategy != consensus.ChallengeAndRefine {
			t.Fatalf("strategy for %s = %s, want challenge_and_refine", kind, plan.Strategy)
		}
		if len(plan.Assignments) != 2 {
			t.Fatalf("assignments = %d, want generator + critic", len(plan.Assignments))
		}
		if plan.Assignments[0].Model == plan.Assignments[1].Model {
			t.Fatal("generator and critic share a model despite distinct ones being available")
		}
	}
}

func TestSelectChallengeWithSingleModelSelfCritiques(t *testing.T) {
	sel := service.NewStrategySelector()
	snap := service.Snapshot{Models: testSnapshot().Models[:1]}
	q := validated(t, query.Query{Text: "solve it", Kind: query.KindArithmetic})

	plan, err := sel.Select(&q, snap)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.Strategy != consensus.ChallengeAndRefine {
		t.Fatalf("strategy = %s, want challenge_and_refine even with one model", plan.Strategy)
	}
	if len(plan.Assignments) != 2 {
		t.Fatalf("assignments = %d, want generator + critic", len(plan.Assignments))
	}
	if plan.Assignments[0].Model != plan.Assignments[1].Model {
		t.Fatal("expected the sole eligible model to play both roles")
	}
}

func TestSelectBreadthKindUsesExpertPanel(t *testing.T) {
	sel := service.NewStrategySelector()
	q := validated(t, query.Query{Text: "survey the field", Kind: query.KindResearch})

	plan, err := sel.Select(&q, testSnapshot())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.Strategy != consensus.ExpertPanel {
		t.Fatalf("strategy = %s, want expert_panel", plan.Strategy)
	}
	for _, a := range plan.Assignments {
		if a.Aspect == "" {
			t.Fatalf("panelist %s has no aspect", a.Model)
		}
	}
}

func TestSelectBreadthWithTooFewModelsFallsThrough(t *testing.T) {
	sel := service.NewStrategySelector()
	snap := service.Snapshot{Models: testSnapshot().Models[:2]}
	q := validated(t, query.Query{Text: "survey the field", Kind: query.KindResearch})

	plan, err := sel.Select(&q, snap)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.Strategy == consensus.ExpertPanel {
		t.Fatal("expert panel selected with fewer than 3 models")
	}
}

func TestSelectMaximalAccuracy(t *testing.T) {
	sel := service.NewStrategySelector()

	q := validated(t, query.Query{Text: "anything", Kind: query.KindGeneral, Accuracy: query.AccuracyMaximal})
	plan, err := sel.Select(&q, testSnapshot())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.Strategy != consensus.QualityWeightedFusion {
		t.Fatalf("strategy = %s, want fusion for complementary outputs", plan.Strategy)
	}

	q = validated(t, query.Query{Text: "anything", Kind: query.KindComparison, Accuracy: query.AccuracyMaximal})
	// Only 2 models: breadth rule needs 3, so the maximal rule decides.
	snap := service.Snapshot{Models: testSnapshot().Models[:2]}
	plan, err = sel.Select(&q, snap)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.Strategy != consensus.BestOfN {
		t.Fatalf("strategy = %s, want best_of_n when one candidate should win", plan.Strategy)
	}
}

func TestSelectLatencySensitiveUsesParallelRace(t *testing.T) {
	sel := service.NewStrategySelector()
	q := validated(t, query.Query{Text: "quick answer", Kind: query.KindGeneral, LatencySensitive: true})

	plan, err := sel.Select(&q, testSnapshot())
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.Strategy != consensus.ParallelRace {
		t.Fatalf("strategy = %s, want parallel_race", plan.Strategy)
	}
}

func TestSelectFallbackIsSingleBest(t *testing.T) {
	sel := service.NewStrategySelector()
	q := validated(t, query.Query{Text: "anything", Kind: query.KindGeneral})
	snap := service.Snapshot{Models: testSnapshot().Models[:1]}

	plan, err := sel.Select(&q, snap)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.Strategy != consensus.SingleBest {
		t.Fatalf("strategy = %s, want single_best fallback", plan.Strategy)
	}
}

func TestSelectNoEligibleProvider(t *testing.T) {
	sel := service.NewStrategySelector()
	snap := service.Snapshot{Models: []service.Model{
		{Name: "prose-only", Skills: map[query.Skill]float64{query.SkillWriting: 0.9}, Healthy: true},
	}}
	q := validated(t, query.Query{Text: "write a function", Kind: query.KindCode})

	_, err := sel.Select(&q, snap)
	if !errors.Is(err, domain.ErrNoEligibleProvider) {
		t.Fatalf("err = %v, want ErrNoEligibleProvider", err)
	}
}

func TestSelectIgnoresUnhealthyModels(t *testing.T) {
	sel := service.NewStrategySelector()
	snap := testSnapshot()
	snap.Models[0].Healthy = false
	q := validated(t, query.Query{Text: "anything", Kind: query.KindGeneral, Accuracy: query.AccuracyMinimal})

	plan, err := sel.Select(&q, snap)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if plan.Assignments[0].Model == "alpha" {
		t.Fatal("selected an unhealthy model")
	}
}
