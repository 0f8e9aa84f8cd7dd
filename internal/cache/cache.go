package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Well-known namespaces.
const (
	NamespaceSettings  = "settings"
	NamespaceHistory   = "flux_history"
	NamespaceReference = "reference"
	NamespaceSession   = "session"
)

// Entry is the stored envelope. Expiry is evaluated lazily at read time
// against StoredAt; there is no background sweep.
type Entry struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
	Version  string          `json:"version,omitempty"`
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.StoredAt) > e.TTL
}

// Cache is a namespaced TTL key-value cache for auxiliary data. It is
// independent of the primary record collections: a write succeeding here has
// no bearing on the persistent store and vice versa.
type Cache interface {
	// Get unmarshals the cached value into out and reports whether a live
	// entry was found. An expired entry is deleted as a side effect and
	// reported as absent.
	Get(ctx context.Context, namespace, key string, out interface{}) (bool, error)

	// Set stores the value unconditionally, overwriting any existing entry.
	Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration, version string) error

	Delete(ctx context.Context, namespace, key string) error

	// Clear removes every entry in the namespace.
	Clear(ctx context.Context, namespace string) error
}

// GetOrFetch returns the cached value when live, otherwise invokes producer,
// stores the fresh value and returns it. The producer runs at most once per
// call; concurrent callers missing on the same key may each invoke it.
func GetOrFetch(ctx context.Context, c Cache, namespace, key string, ttl time.Duration, out interface{}, producer func(ctx context.Context) (interface{}, error)) error {
	ok, err := c.Get(ctx, namespace, key, out)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	fresh, err := producer(ctx)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, namespace, key, fresh, ttl, ""); err != nil {
		return err
	}

	// Round-trip through JSON so out matches what a later Get would return.
	data, err := json.Marshal(fresh)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func encodeEntry(value interface{}, ttl time.Duration, version string) (Entry, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Data:     data,
		StoredAt: time.Now(),
		TTL:      ttl,
		Version:  version,
	}, nil
}
