// Package repository persists sessions and their turn history.
package repository

import (
	"context"

	"github.com/xiaot623/rica/internal/domain"
)

// Store is the persistence interface used by the session layer.
type Store interface {
	CreateSession(ctx context.Context, session *domain.SessionRecord) error
	MarkSessionStopped(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error)
	AppendTurn(ctx context.Context, turn *domain.Turn) error
	LastSeq(ctx context.Context, sessionID string) (int, error)
	ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
