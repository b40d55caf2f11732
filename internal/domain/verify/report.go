// Package verify defines the verifier's verdict on a consensus result.
package verify

// Status is the overall outcome of one verification pass.
type Status string

const (
	StatusPass          Status = "pass"
	StatusNeedsRevision Status = "needs_revision"
	StatusFail          Status = "fail"
)

// Severity rates a flagged issue. Blocking issues fail the session;
// fixable ones feed the refinement loop.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityFixable  Severity = "fixable"
)

// IssueKind identifies which check flagged the issue.
type IssueKind string

const (
	IssueIncomplete      IssueKind = "incomplete"
	IssueContradiction   IssueKind = "contradiction"
	IssueFormat          IssueKind = "format"
	IssueNumericMismatch IssueKind = "numeric_mismatch"
	IssueMissingAnswer   IssueKind = "missing_answer"
	IssueRefusal         IssueKind = "refusal"
)

// Issue is one flagged problem with the answer under verification.
type Issue struct {
	Kind        IssueKind `json:"kind"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
}

// Report is the verifier's output for one round. It is consumed by the
// refinement controller and optionally retained on the session audit trail.
type Report struct {
	Status     Status  `json:"status"`
	Issues     []Issue `json:"issues,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Blocking reports whether any issue is rated blocking.
func (r *Report) Blocking() bool {
	for i := range r.Issues {
		if r.Issues[i].Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

// Derive computes the overall status from the flagged issues and the
// remaining iteration budget. PASS when nothing was flagged. A blocking
// issue fails hard once no retry budget remains; while budget remains even
// blocking issues go through the revision loop, since a corrected answer
// beats a hard failure. Fixable issues always yield NEEDS_REVISION; the
// refinement controller decides between RETRY and ESCALATED.
func (r *Report) Derive(budgetLeft bool) {
	switch {
	case len(r.Issues) == 0:
		r.Status = StatusPass
	case r.Blocking() && !budgetLeft:
		r.Status = StatusFail
	default:
		r.Status = StatusNeedsRevision
	}
}
