package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(2 * time.Hour)
	cached := &RepositorySnapshot{Name: "week06-alice", HeadSHA: "abc123", PushedAt: t0}

	testCases := []struct {
		name     string
		cached   *RepositorySnapshot
		fresh    Fingerprint
		expected Change
	}{
		{
			name:     "absent cached entry is new",
			cached:   nil,
			fresh:    Fingerprint{PushedAt: t0},
			expected: New,
		},
		{
			name:     "identical fingerprint is unchanged",
			cached:   cached,
			fresh:    Fingerprint{HeadSHA: "abc123", PushedAt: t0},
			expected: Unchanged,
		},
		{
			name:     "newer push timestamp is updated",
			cached:   cached,
			fresh:    Fingerprint{HeadSHA: "abc123", PushedAt: t1},
			expected: Updated,
		},
		{
			name:     "differing head SHA is updated",
			cached:   cached,
			fresh:    Fingerprint{HeadSHA: "def456", PushedAt: t0},
			expected: Updated,
		},
		{
			name:     "listing without head SHA compares timestamps only",
			cached:   cached,
			fresh:    Fingerprint{PushedAt: t0},
			expected: Unchanged,
		},
		{
			name:   "timestamp regression forces a re-fetch",
			cached: cached,
			fresh:  Fingerprint{HeadSHA: "abc123", PushedAt: t0.Add(-time.Hour)},
			// A fingerprint moving backwards means the cache entry cannot
			// be trusted; re-fetch rather than crash.
			expected: Updated,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.cached, tc.fresh))
		})
	}
}

func TestSortedRepos(t *testing.T) {
	snap := NewCacheSnapshot("testorg", "week06")
	snap.Repos["week06-carol"] = RepositorySnapshot{Name: "week06-carol"}
	snap.Repos["week06-alice"] = RepositorySnapshot{Name: "week06-alice"}
	snap.Repos["week06-bob"] = RepositorySnapshot{Name: "week06-bob"}

	sorted := snap.SortedRepos()
	names := make([]string, len(sorted))
	for i, s := range sorted {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"week06-alice", "week06-bob", "week06-carol"}, names)
}
