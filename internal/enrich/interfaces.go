package enrich

import (
	"context"
	"io"
	"time"
)

// RecordStore is the slice of the catalog store the pipeline depends on.
type RecordStore interface {
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, id string, update RecordUpdate) error
}

// Strategy is one step of the ordered extraction chain.
type Strategy interface {
	// Name labels the strategy in logs and metrics.
	Name() string
	// Applies reports whether the strategy can handle sourceURL at all.
	Applies(sourceURL string) bool
	// Extract resolves metadata for sourceURL. A returned Result with
	// EnrichmentFailed set is a usable degraded result, not an error.
	Extract(ctx context.Context, sourceURL string) (Result, error)
}

// ThumbnailResolver picks a reachable thumbnail for a platform identifier.
type ThumbnailResolver interface {
	Resolve(ctx context.Context, platformID string) string
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher computes digests used for archive keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Queue provides enqueue/dequeue semantics for trigger events.
type Queue interface {
	Enqueue(ctx context.Context, ev Event) error
	Dequeue(ctx context.Context) (Event, error)
}
