package session_test

import (
	"testing"
	"time"

	"github.com/quorumlabs/quorum/internal/domain/consensus"
	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/domain/session"
	"github.com/quorumlabs/quorum/internal/domain/verify"
)

func roundWithIssues(text string, issues int) session.Round {
	r := session.Round{
		Strategy:  consensus.SingleBest,
		Consensus: consensus.Result{Strategy: consensus.SingleBest, Text: text},
		Report:    &verify.Report{},
	}
	for range issues {
		r.Report.Issues = append(r.Report.Issues, verify.Issue{Kind: verify.IssueIncomplete, Severity: verify.SeverityFixable})
	}
	return r
}

func TestBudgetLeft(t *testing.T) {
	s := session.New("s", query.Query{Text: "x"}, 2, time.Now())
	if !s.BudgetLeft() {
		t.Fatal("fresh session has no budget")
	}
	s.Iteration = 2
	if s.BudgetLeft() {
		t.Fatal("budget left after reaching max iterations")
	}
}

func TestBestRoundPrefersFewestIssues(t *testing.T) {
	s := session.New("s", query.Query{Text: "x"}, 2, time.Now())
	s.Rounds = append(s.Rounds,
		roundWithIssues("three issues", 3),
		roundWithIssues("one issue", 1),
		roundWithIssues("also one issue", 1),
	)

	best := s.BestRound()
	if best == nil || best.Consensus.Text != "one issue" {
		t.Fatalf("best = %+v, want the earliest round with fewest issues", best)
	}
}

func TestBestRoundRanksMissingReportWorst(t *testing.T) {
	s := session.New("s", query.Query{Text: "x"}, 2, time.Now())
	noReport := session.Round{Consensus: consensus.Result{Text: "unverified"}}
	s.Rounds = append(s.Rounds, noReport, roundWithIssues("verified", 5))

	if best := s.BestRound(); best.Consensus.Text != "verified" {
		t.Fatalf("best = %q, want the verified round", best.Consensus.Text)
	}
}

func TestOverCostCeiling(t *testing.T) {
	q := query.Query{Text: "x", CostCeilingUSD: 0.01}
	s := session.New("s", q, 2, time.Now())
	if s.OverCostCeiling() {
		t.Fatal("over ceiling with zero spend")
	}
	s.AddCost(1000, 500, 0.02)
	if !s.OverCostCeiling() {
		t.Fatal("not over ceiling after exceeding it")
	}

	// No declared ceiling means no limit.
	free := session.New("s2", query.Query{Text: "x"}, 2, time.Now())
	free.AddCost(0, 0, 100)
	if free.OverCostCeiling() {
		t.Fatal("ceiling enforced despite none declared")
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := []session.State{session.StateDone, session.StateEscalated, session.StateFailed}
	for _, st := range terminal {
		if !st.Terminal() {
			t.Fatalf("%s not terminal", st)
		}
	}
	for _, st := range []session.State{session.StateInit, session.StateDispatched, session.StateAggregated, session.StateVerified, session.StateRetry} {
		if st.Terminal() {
			t.Fatalf("%s reported terminal", st)
		}
	}
}
