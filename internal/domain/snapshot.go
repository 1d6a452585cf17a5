// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"sort"
	"time"
)

// SchemaVersion is the on-disk cache schema version. Bump it whenever the
// shape of RepositorySnapshot or CacheSnapshot changes incompatibly; loads
// of older versions fail as corrupt and force a rescan.
const SchemaVersion = 2

// RepositorySnapshot is the cached metadata for one repository as of its
// last successful fetch. Once written for a fetch cycle it is never mutated;
// the next change replaces it wholesale.
type RepositorySnapshot struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Private       bool      `json:"private"`
	DefaultBranch string    `json:"default_branch"`
	HeadSHA       string    `json:"head_sha"`
	PushedAt      time.Time `json:"pushed_at"`
	CloneURL      string    `json:"clone_url"`
	HTMLURL       string    `json:"html_url"`
	// Collaborators holds the sorted collaborator logins. Empty when the
	// refresh ran without the collaborator option.
	Collaborators []string `json:"collaborators,omitempty"`
	// EventCursor is the ID of the newest push event seen for this
	// repository. It only serves the event-time tooling and is not part
	// of the change fingerprint.
	EventCursor string `json:"event_cursor,omitempty"`
}

// Fingerprint identifies the state of a repository for change detection.
type Fingerprint struct {
	HeadSHA  string
	PushedAt time.Time
}

// Fingerprint returns the snapshot's change-detection fingerprint.
func (s *RepositorySnapshot) Fingerprint() Fingerprint {
	return Fingerprint{HeadSHA: s.HeadSHA, PushedAt: s.PushedAt}
}

// CacheSnapshot is the persisted state for one (organization, prefix) pair.
// A file on disk is always the result of a complete successful refresh.
type CacheSnapshot struct {
	SchemaVersion int                           `json:"schema_version"`
	Org           string                        `json:"org"`
	Prefix        string                        `json:"prefix"`
	ListETag      string                        `json:"list_etag,omitempty"`
	RefreshedAt   time.Time                     `json:"refreshed_at"`
	Repos         map[string]RepositorySnapshot `json:"repos"`
}

// NewCacheSnapshot returns an empty cache for the given org and prefix.
func NewCacheSnapshot(org, prefix string) *CacheSnapshot {
	return &CacheSnapshot{
		SchemaVersion: SchemaVersion,
		Org:           org,
		Prefix:        prefix,
		Repos:         make(map[string]RepositorySnapshot),
	}
}

// SortedRepos returns the cached snapshots ordered by repository name,
// for deterministic downstream consumption.
func (c *CacheSnapshot) SortedRepos() []RepositorySnapshot {
	out := make([]RepositorySnapshot, 0, len(c.Repos))
	for _, s := range c.Repos {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
