package trends

import (
	"context"
	"time"
)

// SourceClient issues one request against the external search-interest
// provider. Failures are classified with the sentinel errors in this package.
type SourceClient interface {
	FetchInterest(ctx context.Context, key FetchKey, window DateRange) (RawObservation, error)
}

// Store is the read/write contract against the target analytical table.
type Store interface {
	// ExistingKeys returns a snapshot of the (market, keyword, date) keys
	// already present for dates in [from, to].
	ExistingKeys(ctx context.Context, from, to time.Time) (map[RowKey]struct{}, error)
	// AppendRows appends rows and returns the number written.
	AppendRows(ctx context.Context, rows []Row) (int, error)
}

// Publisher pushes run outcomes to a topic (Pub/Sub or an in-memory fake).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Archiver persists raw provider payloads for audit and replay.
type Archiver interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
