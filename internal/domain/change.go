package domain

// Change classifies one repository against the previous cache.
type Change int

const (
	// Unchanged means the fingerprint matches the cached entry; the cached
	// snapshot is carried forward verbatim with no further API calls.
	Unchanged Change = iota
	// Updated means the head commit or push time moved; the entry's
	// expensive sub-resources must be re-fetched.
	Updated
	// New means no cached entry exists for the name.
	New
	// Removed means the cached name no longer appears in the fresh
	// enumeration; the merged cache drops it.
	Removed
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case New:
		return "new"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Classify compares a cached snapshot (nil when absent) against the freshly
// listed fingerprint. Either a differing head SHA or a differing push
// timestamp is enough to count as Updated, erring toward extra fetches over
// missed updates. The repository listing does not carry the head SHA, so an
// empty fresh SHA is skipped rather than compared. A timestamp that moved
// backwards signals a stale or corrupt cache entry and is also treated as
// Updated so the entry gets re-fetched in full rather than trusted.
func Classify(cached *RepositorySnapshot, fresh Fingerprint) Change {
	if cached == nil {
		return New
	}
	if fresh.HeadSHA != "" && cached.HeadSHA != fresh.HeadSHA {
		return Updated
	}
	if !cached.PushedAt.Equal(fresh.PushedAt) {
		return Updated
	}
	return Unchanged
}
