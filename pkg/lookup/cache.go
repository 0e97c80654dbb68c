package lookup

import (
	"context"
	"time"
)

// ProfileCache stores person profiles by key. Entries are replaced whole and
// never modified in place. Implementations are safe for concurrent use.
type ProfileCache interface {
	// Get returns the cached person, or (nil, false, nil) on a miss
	Get(ctx context.Context, key string) (*Person, bool, error)
	// Set stores person for ttl
	Set(ctx context.Context, key string, person *Person, ttl time.Duration) error
	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Name labels the cache in metrics
	Name() string
}
