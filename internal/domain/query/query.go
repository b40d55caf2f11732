// Package query defines the immutable input to one orchestration session.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/quorumlabs/quorum/internal/domain"
)

// Kind classifies the task the query asks for. It is a declared hint from
// the caller, not something the engine infers from the text.
type Kind string

const (
	KindGeneral    Kind = "general"
	KindArithmetic Kind = "arithmetic"
	KindCode       Kind = "code"
	KindResearch   Kind = "research"
	KindComparison Kind = "comparison"
	KindCreative   Kind = "creative"
)

// Skill is the model capability a task kind primarily exercises.
// Capability scores in the model registry are keyed by skill.
type Skill string

const (
	SkillReasoning Skill = "reasoning"
	SkillMath      Skill = "math"
	SkillCoding    Skill = "coding"
	SkillResearch  Skill = "research"
	SkillWriting   Skill = "writing"
)

// PrimarySkill maps a task kind to the skill used for capability lookups.
func (k Kind) PrimarySkill() Skill {
	switch k {
	case KindArithmetic:
		return SkillMath
	case KindCode:
		return SkillCoding
	case KindResearch, KindComparison:
		return SkillResearch
	case KindCreative:
		return SkillWriting
	default:
		return SkillReasoning
	}
}

// Verifiable reports whether the kind produces artifacts that can be
// checked mechanically (code, arithmetic).
func (k Kind) Verifiable() bool {
	return k == KindArithmetic || k == KindCode
}

// Breadth reports whether the kind benefits from multiple independent
// perspectives rather than one strong answer.
func (k Kind) Breadth() bool {
	return k == KindResearch || k == KindComparison
}

// Accuracy is the caller's quality dial.
type Accuracy string

const (
	AccuracyMinimal  Accuracy = "minimal"
	AccuracyStandard Accuracy = "standard"
	AccuracyMaximal  Accuracy = "maximal"
)

// Format declares the expected output shape, checked by the verifier.
type Format string

const (
	FormatAny      Format = "any"
	FormatJSON     Format = "json"
	FormatCode     Format = "code"
	FormatMarkdown Format = "markdown"
)

// ToolRequest flags the query as needing an authoritative tool result.
// The decision to attach a tool is made upstream; the engine only invokes
// the broker and feeds the result to the verifier.
type ToolRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Query is the immutable input for one orchestration session.
type Query struct {
	Text             string
	Kind             Kind
	Accuracy         Accuracy
	Format           Format
	LatencySensitive bool
	Deadline         time.Time
	CostCeilingUSD   float64
	Criteria         []string // explicit acceptance criteria / must-address points
	Tool             *ToolRequest
	RetrievalEnabled bool
}

// Validate checks caller-supplied fields and fills defaults for the
// optional enums.
func (q *Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: query text is required", domain.ErrValidation)
	}
	if q.Kind == "" {
		q.Kind = KindGeneral
	}
	switch q.Kind {
	case KindGeneral, KindArithmetic, KindCode, KindResearch, KindComparison, KindCreative:
	default:
		return fmt.Errorf("%w: unknown task kind %q", domain.ErrValidation, q.Kind)
	}
	if q.Accuracy == "" {
		q.Accuracy = AccuracyStandard
	}
	switch q.Accuracy {
	case AccuracyMinimal, AccuracyStandard, AccuracyMaximal:
	default:
		return fmt.Errorf("%w: unknown accuracy level %q", domain.ErrValidation, q.Accuracy)
	}
	if q.Format == "" {
		q.Format = FormatAny
	}
	switch q.Format {
	case FormatAny, FormatJSON, FormatCode, FormatMarkdown:
	default:
		return fmt.Errorf("%w: unknown output format %q", domain.ErrValidation, q.Format)
	}
	if q.Tool != nil && q.Tool.Name == "" {
		return fmt.Errorf("%w: tool request needs a name", domain.ErrValidation)
	}
	return nil
}

// SubQuestions returns the explicit sub-questions contained in the query
// text, one per sentence ending in a question mark, plus any declared
// acceptance criteria. Used by the verifier's completeness check.
func (q *Query) SubQuestions() []string {
	var subs []string
	for part := range strings.SplitSeq(q.Text, "?") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// Only the clause after the last sentence boundary is the question.
		if i := strings.LastIndexAny(part, ".!\n"); i >= 0 {
			part = strings.TrimSpace(part[i+1:])
		}
		if part != "" {
			subs = append(subs, part)
		}
	}
	subs = append(subs, q.Criteria...)
	return subs
}

// Remaining returns the time left before the deadline, or def when no
// deadline was declared.
func (q *Query) Remaining(now time.Time, def time.Duration) time.Duration {
	if q.Deadline.IsZero() {
		return def
	}
	return q.Deadline.Sub(now)
}
