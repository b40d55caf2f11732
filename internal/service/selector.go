package service

import (
	"fmt"

	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/domain/candidate"
	"github.com/quorumlabs/quorum/internal/domain/consensus"
	"github.com/quorumlabs/quorum/internal/domain/query"
)

// Plan is the selector's output: the strategy, the ordered model/role
// assignments to invoke, and the sequential call depth a round needs
// (1 for concurrent strategies, 2 for generator+critic).
type Plan struct {
	Strategy    consensus.Strategy
	Assignments []consensus.Assignment
	Skill       query.Skill
	SeqDepth    int
}

// Models returns the assigned model names in invocation order.
func (p *Plan) Models() []string {
	out := make([]string, len(p.Assignments))
	for i, a := range p.Assignments {
		out[i] = a.Model
	}
	return out
}

// panelAspects are the sub-aspects expert panelists split a breadth query
// across, keyed by task kind.
var panelAspects = map[query.Kind][]string{
	query.KindResearch:   {"background and context", "key evidence and findings", "limitations and open problems"},
	query.KindComparison: {"similarities", "differences", "trade-offs and recommendation"},
}

// StrategySelector maps a query and the available capability snapshot onto
// an orchestration plan. Selection is deterministic: the same query against
// the same snapshot always yields the same plan.
type StrategySelector struct{}

// NewStrategySelector creates a selector.
func NewStrategySelector() *StrategySelector {
	return &StrategySelector{}
}

// Select applies the decision rules in priority order and returns the plan.
// Fails with ErrNoEligibleProvider when no healthy model covers the skill
// the query's kind requires.
func (s *StrategySelector) Select(q *query.Query, snap Snapshot) (*Plan, error) {
	skill := q.Kind.PrimarySkill()
	eligible := snap.Eligible(skill)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: skill %q", domain.ErrNoEligibleProvider, skill)
	}

	switch {
	case q.Accuracy == query.AccuracyMinimal && !q.Kind.Verifiable() && !q.Kind.Breadth():
		return singlePlan(skill, eligible), nil

	case q.Kind.Verifiable():
		return challengePlan(skill, eligible), nil

	case q.Kind.Breadth() && len(eligible) >= 3:
		return panelPlan(q.Kind, skill, eligible), nil

	case q.Accuracy == query.AccuracyMaximal && len(eligible) >= 2:
		return maximalPlan(q.Kind, skill, eligible), nil

	case q.LatencySensitive && len(eligible) >= 2:
		return racePlan(skill, eligible), nil

	default:
		return singlePlan(skill, eligible), nil
	}
}

func singlePlan(skill query.Skill, eligible []Model) *Plan {
	return &Plan{
		Strategy: consensus.SingleBest,
		Skill:    skill,
		SeqDepth: 1,
		Assignments: []consensus.Assignment{
			{Model: eligible[0].Name, Role: candidate.RolePrimary},
		},
	}
}

// challengePlan pairs the strongest model as generator with the strongest
// distinct model as critic. With a single eligible model the same model
// plays both roles; self-critique still catches format and completeness
// slips even if it is blind to its own reasoning errors.
func challengePlan(skill query.Skill, eligible []Model) *Plan {
	critic := eligible[0].Name
	if len(eligible) >= 2 {
		critic = eligible[1].Name
	}
	return &Plan{
		Strategy: consensus.ChallengeAndRefine,
		Skill:    skill,
		SeqDepth: 2,
		Assignments: []consensus.Assignment{
			{Model: eligible[0].Name, Role: candidate.RolePrimary},
			{Model: critic, Role: candidate.RoleCritic},
		},
	}
}

func panelPlan(kind query.Kind, skill query.Skill, eligible []Model) *Plan {
	aspects := panelAspects[kind]
	plan := &Plan{Strategy: consensus.ExpertPanel, Skill: skill, SeqDepth: 1}
	for i, aspect := range aspects {
		plan.Assignments = append(plan.Assignments, consensus.Assignment{
			Model:  eligible[i%len(eligible)].Name,
			Role:   candidate.RolePanelist,
			Aspect: aspect,
		})
	}
	return plan
}

// maximalPlan picks best-of-n when exactly one candidate should win
// (comparison-style queries have a single right ranking) and fusion when
// candidates are expected to contribute complementary material.
func maximalPlan(kind query.Kind, skill query.Skill, eligible []Model) *Plan {
	strategy := consensus.QualityWeightedFusion
	if kind == query.KindComparison {
		strategy = consensus.BestOfN
	}

	n := min(len(eligible), 3)
	plan := &Plan{Strategy: strategy, Skill: skill, SeqDepth: 1}
	for i := 0; i < n; i++ {
		plan.Assignments = append(plan.Assignments, consensus.Assignment{
			Model: eligible[i].Name,
			Role:  candidate.RolePrimary,
		})
	}
	return plan
}

func racePlan(skill query.Skill, eligible []Model) *Plan {
	n := min(len(eligible), 3)
	plan := &Plan{Strategy: consensus.ParallelRace, Skill: skill, SeqDepth: 1}
	for i := 0; i < n; i++ {
		plan.Assignments = append(plan.Assignments, consensus.Assignment{
			Model: eligible[i].Name,
			Role:  candidate.RolePrimary,
		})
	}
	return plan
}

// RevisionPlan returns the plan used for refinement retries. Revision
// always runs challenge-and-refine regardless of the initial strategy, so
// every retry gets both a corrected generation and a critique of it.
func RevisionPlan(skill query.Skill, snap Snapshot) (*Plan, error) {
	eligible := snap.Eligible(skill)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: skill %q", domain.ErrNoEligibleProvider, skill)
	}
	return challengePlan(skill, eligible), nil
}
