// Package auditstore defines the port for archiving terminal sessions.
package auditstore

import (
	"context"

	"github.com/quorumlabs/quorum/internal/domain/session"
)

// Store archives finished orchestration sessions for audit. Archiving is
// best-effort; failures are logged, never surfaced to the caller.
type Store interface {
	ArchiveSession(ctx context.Context, s *session.Session) error
}

// Noop discards archived sessions. Used when no database is configured.
type Noop struct{}

// ArchiveSession implements Store.
func (Noop) ArchiveSession(context.Context, *session.Session) error { return nil }
