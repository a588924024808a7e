package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store operations when no record exists for
// the given name.
var ErrNotFound = errors.New("registry: service not found")

// Store is the persistence seam for the directory. Only an in-memory
// implementation ships (spec explicitly excludes durable persistence as
// a non-goal), but keeping the interface mirrors the teacher's
// store.Store/memory.Store split and gives the HTTP layer a point to
// inject a fake in tests.
type Store interface {
	// Save inserts or overwrites the record by name.
	Save(ctx context.Context, rec *Record) error
	// Get retrieves a record by name.
	Get(ctx context.Context, name string) (*Record, error)
	// Delete removes a record by name.
	Delete(ctx context.Context, name string) error
	// List returns every record currently stored.
	List(ctx context.Context) ([]*Record, error)
}
