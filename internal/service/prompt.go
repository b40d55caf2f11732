package service

import (
	"fmt"
	"strings"

	"github.com/quorumlabs/quorum/internal/domain/consensus"
	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/domain/verify"
	"github.com/quorumlabs/quorum/internal/port/retrieval"
)

// BasePrompt renders the generator prompt for a query: the task text, the
// declared output format, explicit acceptance criteria and any retrieved
// context passages.
func BasePrompt(q *query.Query, passages []retrieval.Passage) string {
	var b strings.Builder
	b.WriteString(q.Text)

	switch q.Format {
	case query.FormatJSON:
		b.WriteString("\n\nRespond with valid JSON only.")
	case query.FormatCode:
		b.WriteString("\n\nRespond with code in a fenced code block.")
	case query.FormatMarkdown:
		b.WriteString("\n\nRespond in Markdown.")
	}

	if len(q.Criteria) > 0 {
		b.WriteString("\n\nYour answer must address all of the following:")
		for _, c := range q.Criteria {
			b.WriteString("\n- ")
			b.WriteString(c)
		}
	}

	if len(passages) > 0 {
		b.WriteString("\n\nUse the following context where relevant:")
		for i, p := range passages {
			fmt.Fprintf(&b, "\n[%d] (%s) %s", i+1, p.Source, p.Text)
		}
	}

	return b.String()
}

// rolePrompt specializes the base prompt for one assignment. Panelists get
// an aspect restriction; critics are built separately once the generator
// output exists.
func rolePrompt(base string, a consensus.Assignment) string {
	if a.Aspect == "" {
		return base
	}
	return fmt.Sprintf("%s\n\nCover only this aspect: %s. Other panelists handle the rest.", base, a.Aspect)
}

// criticPrompt asks the critic to find concrete defects in the generator's
// answer rather than rewrite it.
func criticPrompt(base, generated string) string {
	return fmt.Sprintf(`You are reviewing another model's answer to this task:

%s

The answer under review:

%s

List every concrete defect: factual or numeric errors, unaddressed parts of the task, contradictions, format violations. If the answer is fully correct and complete, reply exactly "NO ISSUES FOUND".`, base, generated)
}

// followUpPrompt builds the revision prompt for a retry round: the original
// task, the prior answer, and the specific issues verification flagged.
func followUpPrompt(base, prior string, issues []verify.Issue) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nA previous attempt at this task was:\n\n")
	b.WriteString(prior)
	b.WriteString("\n\nThat attempt was rejected for the following reasons:")
	for _, is := range issues {
		fmt.Fprintf(&b, "\n- [%s] %s", is.Kind, is.Description)
	}
	b.WriteString("\n\nProduce a corrected, complete answer. Fix every listed problem.")
	return b.String()
}
