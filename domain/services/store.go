package services

import (
	"context"

	"github.com/YasiruR/mule-sync/domain/models"
)

/* replicated graph store */

// Listener receives the current value of a child of a subscribed path.
// A nil node means the child was deleted. Listeners may be called any
// number of times for the same logical update.
type Listener func(key string, node models.Node)

type GraphStore interface {
	Get(ctx context.Context, path string) (models.Node, error)
	// Put merges the fields into the node at path, a nil node writes a tombstone
	Put(path string, node models.Node) error
	// Map subscribes to all children of path for the lifetime of the store.
	// Existing children are replayed before any further change is delivered.
	Map(path string, l Listener)
	// AddPeer registers another store endpoint to replicate with
	AddPeer(endpoint string) error
	// Defer runs fn on the goroutine that calls listeners, after every
	// delivery queued so far
	Defer(fn func())
}
