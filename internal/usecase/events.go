package usecase

import (
	"context"
	"fmt"

	"github.com/classtools/classroom-sync/internal/gateway"
)

// RepoEvents holds the push history for one repository, newest first.
type RepoEvents struct {
	Repo   string
	Events []gateway.PushEvent
	// NewCount is how many events are newer than the repository's stored
	// event cursor; zero when no cursor was recorded.
	NewCount int
}

// EventTimes fetches the push-event feeds for the named repositories. The
// cached event cursor, when present, marks how many events arrived since
// the last report; the cursors are then advanced and persisted.
func (s *Syncer) EventTimes(ctx context.Context, org, prefix string, repos []string) ([]RepoEvents, error) {
	prev, err := s.store.Load(org, prefix)
	if err != nil {
		return nil, err
	}

	out := make([]RepoEvents, 0, len(repos))
	cursors := make(map[string]string)
	for _, repo := range repos {
		events, err := s.fetcher.FetchPushEvents(ctx, org, repo)
		if err != nil {
			return nil, fmt.Errorf("fetch events for %s: %w", repo, err)
		}
		re := RepoEvents{Repo: repo, Events: events}
		if prev != nil {
			if snap, ok := prev.Repos[repo]; ok && snap.EventCursor != "" {
				for _, ev := range events {
					if ev.ID == snap.EventCursor {
						break
					}
					re.NewCount++
				}
			}
		}
		if len(events) > 0 {
			cursors[repo] = events[0].ID
		}
		out = append(out, re)
	}

	// Advance the stored cursors. The cache stays a complete consistent
	// snapshot; only the cursor fields change.
	if prev != nil && len(cursors) > 0 {
		changed := false
		for repo, id := range cursors {
			if snap, ok := prev.Repos[repo]; ok && snap.EventCursor != id {
				snap.EventCursor = id
				prev.Repos[repo] = snap
				changed = true
			}
		}
		if changed {
			if err := s.store.Save(prev); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
