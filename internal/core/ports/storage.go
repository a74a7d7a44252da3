package ports

import (
	"context"

	"github.com/lcalzada-xor/wsta/internal/core/domain"
)

// EventJournal persists the messages the station sends to the SME.
type EventJournal interface {
	// Record stores event. It must not block the caller for long.
	Record(ctx context.Context, event domain.Event) error

	// Events returns stored events, newest first.
	Events(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error)

	// Close flushes pending events and closes the storage connection.
	Close() error
}
