// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Repository defines the interface for persisting users and conversation turns.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// InsertTurn appends a turn. The store assigns CreatedAt, and ID when empty.
	InsertTurn(ctx context.Context, turn *domain.Turn) error

	// ListTurns returns the most recent limit turns for owner and agent, oldest first.
	// An empty agentID spans every agent.
	ListTurns(ctx context.Context, ownerID, agentID string, limit int) ([]domain.Turn, error)

	// PruneTurns deletes turns created before cutoff.
	PruneTurns(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
