// Package stores provides durable storage for save documents and the
// completion history, backed by SQLite.
package stores

import (
	"context"
	"time"
)

// SaveRecord is one stored save slot. Document is the serialized snapshot;
// MissionCount is denormalized for cheap listings.
type SaveRecord struct {
	Slot         string
	Document     []byte
	MissionCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Completion is one permanently recorded template completion within a
// slot's history.
type Completion struct {
	Slot        string
	Template    string
	CompletedAt time.Time
}

// Store is the persistence interface for save documents.
type Store interface {
	// Init initializes the backing connection.
	Init(ctx context.Context) error

	// Migrate brings the schema up to date.
	Migrate(ctx context.Context) error

	// Close releases the backing connection.
	Close() error

	// PutSave writes or replaces a save slot.
	PutSave(ctx context.Context, slot string, document []byte, missionCount int) error

	// GetSave retrieves a save slot.
	GetSave(ctx context.Context, slot string) (*SaveRecord, error)

	// ListSaves lists save slots, most recently written first.
	ListSaves(ctx context.Context, limit, offset int) ([]*SaveRecord, error)

	// DeleteSave removes a save slot and its completion history.
	DeleteSave(ctx context.Context, slot string) error

	// RecordCompletion records a template completion for a slot.
	RecordCompletion(ctx context.Context, slot, template string) error

	// ListCompletions lists a slot's recorded completions.
	ListCompletions(ctx context.Context, slot string) ([]*Completion, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}
