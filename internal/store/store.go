// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"guardian/internal/domain"
)

// Repository is the persistence port for the whole application state.
// The state (chat transcript, contracts, streak) is read and written as one
// atomic unit under a single fixed key.
type Repository interface {
	// LoadState retrieves the persisted application state.
	// Returns (nil, nil) when no state has been saved yet.
	LoadState(ctx context.Context) (*domain.AppState, error)

	// SaveState persists the whole application state, replacing any
	// previous snapshot. Writes are serialized; last writer wins.
	SaveState(ctx context.Context, state *domain.AppState) error

	// Ping verifies database connectivity and returns an error if the
	// database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
