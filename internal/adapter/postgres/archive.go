package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumlabs/quorum/internal/domain/session"
)

// Archive implements auditstore.Store using PostgreSQL (append-only).
type Archive struct {
	pool *pgxpool.Pool
}

// NewArchive creates an Archive backed by the given connection pool.
func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

// archivedRound is the JSONB shape of one round on the audit trail.
type archivedRound struct {
	Strategy   string          `json:"strategy"`
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Candidates int             `json:"candidates"`
	Divergence float64         `json:"divergence,omitempty"`
	Degraded   bool            `json:"degraded,omitempty"`
	Failed     int             `json:"failed,omitempty"`
	Report     json.RawMessage `json:"report,omitempty"`
	ElapsedMS  int64           `json:"elapsed_ms"`
}

// ArchiveSession appends one terminal session to the archive.
func (a *Archive) ArchiveSession(ctx context.Context, s *session.Session) error {
	rounds := make([]archivedRound, len(s.Rounds))
	for i := range s.Rounds {
		r := &s.Rounds[i]
		ar := archivedRound{
			Strategy:   string(r.Strategy),
			Text:       r.Consensus.Text,
			Confidence: r.Consensus.Confidence,
			Candidates: len(r.Consensus.Candidates),
			Divergence: r.Consensus.Divergence,
			Degraded:   r.Consensus.Degraded,
			Failed:     r.Consensus.Failed,
			ElapsedMS:  r.Elapsed.Milliseconds(),
		}
		if r.Report != nil {
			if data, err := json.Marshal(r.Report); err == nil {
				ar.Report = data
			}
		}
		rounds[i] = ar
	}

	payload, err := json.Marshal(rounds)
	if err != nil {
		return fmt.Errorf("marshal rounds: %w", err)
	}

	_, err = a.pool.Exec(ctx,
		`INSERT INTO session_archive (session_id, query_text, task_kind, accuracy, state, iterations, tokens_in, tokens_out, cost_usd, rounds, started_at, archived_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.Query.Text, string(s.Query.Kind), string(s.Query.Accuracy), string(s.State),
		s.Iteration, s.TokensIn, s.TokensOut, s.CostUSD, payload, s.StartedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive session %s: %w", s.ID, err)
	}
	return nil
}
