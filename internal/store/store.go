// Package store owns the canonical room documents. A room lives in the
// backing document store as one JSON value keyed by its code; every mutation
// replaces the whole value, and subscribers receive full snapshots in write
// order.
package store

import (
	"context"
	"errors"

	"github.com/monopolymoney/moneyservice/internal/models"
)

var (
	// ErrNotFound means no room document exists under the given code.
	ErrNotFound = errors.New("room not found")
	// ErrCodeTaken means Create lost the race for a room code.
	ErrCodeTaken = errors.New("room code already taken")
	// ErrConflict means a Transform kept losing its check-and-set against
	// concurrent writers and gave up.
	ErrConflict = errors.New("room update conflict")
)

// Update is one element of a Watch stream. Room is nil when the document was
// deleted; a delete is the final update for that subscription.
type Update struct {
	Room *models.GameRoom
}

// TransformFunc maps the current room document to its replacement. Returning
// a nil room deletes the document. Returning an error aborts the write and
// surfaces the error unchanged.
type TransformFunc func(*models.GameRoom) (*models.GameRoom, error)

// RoomStore is the document-store capability the room service is built on.
type RoomStore interface {
	// Create writes a brand-new room document, failing with ErrCodeTaken if
	// the code is already claimed.
	Create(ctx context.Context, room *models.GameRoom) error

	// Get returns a one-shot snapshot, or ErrNotFound.
	Get(ctx context.Context, code string) (*models.GameRoom, error)

	// Put overwrites the whole document unconditionally (last write wins).
	// Reducer operations go through Transform instead.
	Put(ctx context.Context, room *models.GameRoom) error

	// Transform runs fn under optimistic concurrency: read, transform, write
	// back only if the document was untouched meanwhile, retrying a bounded
	// number of times before returning ErrConflict. It returns the document
	// that was written (nil if fn deleted the room).
	Transform(ctx context.Context, code string, fn TransformFunc) (*models.GameRoom, error)

	// Delete removes the document entirely.
	Delete(ctx context.Context, code string) error

	// Watch emits the current snapshot, then one snapshot per subsequent
	// write, then a nil-room Update if the room is deleted. The stream ends
	// when ctx is cancelled or the underlying subscription fails.
	Watch(ctx context.Context, code string) (<-chan Update, error)
}
