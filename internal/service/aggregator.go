package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/quorumlabs/quorum/internal/config"
	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/domain/candidate"
	"github.com/quorumlabs/quorum/internal/domain/consensus"
	"github.com/quorumlabs/quorum/internal/domain/query"
)

// Aggregator combines a round's candidates into exactly one consensus
// result, per the strategy's semantics. Pure computation: no provider
// calls, no session mutation.
type Aggregator struct {
	cfg config.Engine
}

// NewAggregator creates an aggregator with the engine tunables.
func NewAggregator(cfg config.Engine) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Combine produces the round's consensus result. Every strategy variant
// has a handler here; an unhandled variant is a programming error surfaced
// loudly, never a silent fallthrough. A round with zero candidates yields
// ErrAllProvidersFailed, never a fabricated result.
func (a *Aggregator) Combine(q *query.Query, plan *Plan, snap Snapshot, out *Outcome) (*consensus.Result, error) {
	if len(out.Candidates) == 0 {
		return nil, fmt.Errorf("%w: %d terminal failures, no candidates", domain.ErrAllProvidersFailed, out.Failed)
	}

	res := &consensus.Result{
		Strategy:   plan.Strategy,
		Candidates: out.Candidates,
		Degraded:   out.Degraded,
		Failed:     out.Failed,
	}

	switch plan.Strategy {
	case consensus.SingleBest:
		a.passThrough(res, &out.Candidates[0])
	case consensus.ParallelRace:
		a.passThrough(res, raceWinner(out.Candidates))
	case consensus.BestOfN:
		a.bestOfN(q, plan, snap, res)
	case consensus.QualityWeightedFusion:
		a.fuse(plan, snap, res)
	case consensus.ExpertPanel:
		a.panel(plan, res)
	case consensus.ChallengeAndRefine:
		a.challenge(res)
	default:
		return nil, fmt.Errorf("unhandled strategy %q", plan.Strategy)
	}

	if res.Degraded {
		// A round below its strategy minimum still answers, just with
		// less conviction.
		res.Confidence *= 0.8
	}
	res.Confidence = clamp01(res.Confidence)
	return res, nil
}

func (a *Aggregator) passThrough(res *consensus.Result, c *candidate.Answer) {
	res.Text = c.Text
	res.Confidence = c.Confidence
}

// raceWinner is the first candidate that passed the validity check, or the
// first arrival when none did (the verifier will flag the refusal).
func raceWinner(cands []candidate.Answer) *candidate.Answer {
	for i := range cands {
		if plausibleAnswer(cands[i].Text) {
			return &cands[i]
		}
	}
	return &cands[0]
}

// bestOfN runs a heuristic judge pass and selects exactly one candidate
// verbatim. Ties prefer the candidate from the highest-capability model for
// the task, then the earliest arrival, keeping selection deterministic.
func (a *Aggregator) bestOfN(q *query.Query, plan *Plan, snap Snapshot, res *consensus.Result) {
	cands := res.Candidates
	best := 0
	bestScore := a.judgeScore(q, &cands[0])
	for i := 1; i < len(cands); i++ {
		score := a.judgeScore(q, &cands[i])
		switch {
		case score > bestScore:
			best, bestScore = i, score
		case score == bestScore:
			ci := snap.Capability(cands[i].Model, plan.Skill)
			cb := snap.Capability(cands[best].Model, plan.Skill)
			if ci > cb || (ci == cb && cands[i].Arrival < cands[best].Arrival) {
				best = i
			}
		}
	}

	res.Text = cands[best].Text
	res.Confidence = cands[best].Confidence
	a.applyDivergence(res, candidateTexts(cands))
}

// judgeScore rates one candidate against the query: keyword coverage of
// the task text dominates, with format compliance, substance and reported
// confidence as secondary signals.
func (a *Aggregator) judgeScore(q *query.Query, c *candidate.Answer) float64 {
	coverage := keywordCoverage(c.Text, q.Text)
	format := 0.0
	if matchesFormat(c.Text, q.Format) {
		format = 1
	}
	length := float64(len(tokenize(c.Text))) / 200
	if length > 1 {
		length = 1
	}
	return 0.45*coverage + 0.25*format + 0.15*length + 0.15*c.Confidence
}

// fuse synthesizes one answer from all candidates, weighted by each model's
// static capability score for the task's skill, never by arrival order.
// The strongest candidate forms the base; material from the others that the
// base does not already cover is appended. Identical candidates collapse to
// the shared text with no penalty.
func (a *Aggregator) fuse(plan *Plan, snap Snapshot, res *consensus.Result) {
	cands := res.Candidates

	if identicalTexts(cands) {
		res.Text = strings.TrimSpace(cands[0].Text)
		var sum float64
		for i := range cands {
			sum += cands[i].Confidence
		}
		res.Confidence = sum / float64(len(cands))
		return
	}

	ordered := make([]candidate.Answer, len(cands))
	copy(ordered, cands)
	sort.SliceStable(ordered, func(i, j int) bool {
		return snap.Capability(ordered[i].Model, plan.Skill) > snap.Capability(ordered[j].Model, plan.Skill)
	})

	base := strings.TrimSpace(ordered[0].Text)
	baseSents := sentences(base)
	var extra []string
	for _, c := range ordered[1:] {
		for _, s := range sentences(c.Text) {
			if !covered(s, baseSents) && !covered(s, extra) {
				extra = append(extra, s)
			}
		}
	}

	var b strings.Builder
	b.WriteString(base)
	if len(extra) > 0 {
		b.WriteString("\n\nAdditional points:")
		for _, s := range extra {
			b.WriteString("\n- ")
			b.WriteString(s)
		}
	}
	res.Text = b.String()

	var weightSum, confSum float64
	for i := range cands {
		w := snap.Capability(cands[i].Model, plan.Skill)
		weightSum += w
		confSum += w * cands[i].Confidence
	}
	if weightSum > 0 {
		res.Confidence = confSum / weightSum
	} else {
		res.Confidence = a.cfg.DefaultConfidence
	}

	a.applyDivergence(res, candidateTexts(cands))
}

// covered reports whether a sentence is lexically subsumed by any of the
// existing ones.
func covered(s string, existing []string) bool {
	for _, e := range existing {
		if jaccard(s, e) >= 0.5 {
			return true
		}
	}
	return false
}

// panel merges the panelists' non-overlapping aspect coverage into one
// answer, sectioned in the plan's aspect order. No voting happens; each
// panelist owns its aspect.
func (a *Aggregator) panel(plan *Plan, res *consensus.Result) {
	byAspect := make(map[string]*candidate.Answer, len(res.Candidates))
	for i := range res.Candidates {
		c := &res.Candidates[i]
		if _, seen := byAspect[c.Aspect]; !seen {
			byAspect[c.Aspect] = c
		}
	}

	var b strings.Builder
	var confSum float64
	n := 0
	for _, asg := range plan.Assignments {
		c, ok := byAspect[asg.Aspect]
		if !ok {
			continue
		}
		if n > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", titleCase(asg.Aspect), strings.TrimSpace(c.Text))
		confSum += c.Confidence
		n++
	}

	res.Text = b.String()
	if n > 0 {
		res.Confidence = confSum / float64(n)
	}
}

// challenge passes through the latest generator output. Quality enforcement
// happens in verification, but the critic's verdict nudges confidence.
func (a *Aggregator) challenge(res *consensus.Result) {
	var gen, crit *candidate.Answer
	for i := range res.Candidates {
		switch res.Candidates[i].Role {
		case candidate.RolePrimary:
			gen = &res.Candidates[i]
		case candidate.RoleCritic:
			crit = &res.Candidates[i]
		}
	}
	if gen == nil {
		gen = &res.Candidates[0]
	}

	res.Text = gen.Text
	res.Confidence = gen.Confidence
	if crit != nil {
		if strings.Contains(strings.ToUpper(crit.Text), "NO ISSUES FOUND") {
			res.Confidence += 0.1
		} else {
			res.Confidence -= 0.05
		}
	}
}

// applyDivergence computes pairwise candidate divergence and caps the
// confidence below the high-confidence boundary when candidates materially
// disagree, signaling the verifier that extra scrutiny is warranted.
func (a *Aggregator) applyDivergence(res *consensus.Result, texts []string) {
	res.Divergence = divergence(texts)
	if res.Divergence > a.cfg.DivergenceThreshold && res.Confidence > a.cfg.ConfidenceCap {
		res.Confidence = a.cfg.ConfidenceCap
	}
}

func candidateTexts(cands []candidate.Answer) []string {
	out := make([]string, len(cands))
	for i := range cands {
		out[i] = cands[i].Text
	}
	return out
}

func identicalTexts(cands []candidate.Answer) bool {
	first := strings.TrimSpace(cands[0].Text)
	for i := 1; i < len(cands); i++ {
		if strings.TrimSpace(cands[i].Text) != first {
			return false
		}
	}
	return true
}

// matchesFormat is a cheap structural check of the declared output format.
func matchesFormat(text string, f query.Format) bool {
	t := strings.TrimSpace(text)
	switch f {
	case query.FormatJSON:
		return json.Valid([]byte(extractJSON(t)))
	case query.FormatCode:
		return strings.Contains(t, "```")
	default:
		return true
	}
}

// extractJSON strips a Markdown code fence around a JSON payload, a common
// provider habit even when asked for raw JSON.
func extractJSON(t string) string {
	if after, ok := strings.CutPrefix(t, "```json"); ok {
		t = after
	} else if after, ok := strings.CutPrefix(t, "```"); ok {
		t = after
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
