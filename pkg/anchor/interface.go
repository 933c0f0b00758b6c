package anchor

// IAnchorStore defines the client-side trust anchor store. Implementations
// must be safe for concurrent use.
//
// Anchors are indexed by batch ID. Loading a missing anchor returns
// (nil, nil): absence is an expected outcome, not a storage failure.
type IAnchorStore interface {
	// SaveAnchor persists an anchor, overwriting any anchor with the same
	// batch ID.
	SaveAnchor(a *Anchor) error

	// LoadAnchor retrieves an anchor by batch ID. Returns nil if the anchor
	// doesn't exist, error only on storage failure.
	LoadAnchor(batchID string) (*Anchor, error)

	// LatestAnchor returns the most recently created anchor, or nil if the
	// store is empty.
	LatestAnchor() (*Anchor, error)

	// ListAnchors returns all anchors sorted by creation time (ascending).
	ListAnchors() ([]*Anchor, error)

	// DeleteAnchor removes an anchor. Idempotent: returns nil if the anchor
	// doesn't exist.
	DeleteAnchor(batchID string) error

	// Close cleanly shuts down the store. Idempotent.
	Close() error

	// HealthCheck verifies the store is operational. Called at startup to
	// fail fast.
	HealthCheck() error
}
