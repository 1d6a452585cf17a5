// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/classtools/classroom-sync/internal/cache"
	"github.com/classtools/classroom-sync/internal/domain"
	"github.com/classtools/classroom-sync/internal/gateway"
)

// defaultConcurrency bounds the per-repository detail fetches issued in
// parallel during a refresh.
const defaultConcurrency = 4

// Options controls a single refresh.
type Options struct {
	// ForceFull ignores cache fingerprints and re-fetches every
	// repository's detail, the formalized replacement for deleting the
	// cache file by hand.
	ForceFull bool
	// IncludeCollaborators pays the extra per-repository call to fetch
	// collaborator logins.
	IncludeCollaborators bool
	// Concurrency bounds parallel detail fetches; zero means the default.
	Concurrency int
	// Timeout bounds the whole refresh; zero means no deadline beyond the
	// caller's context.
	Timeout time.Duration
}

// SkippedRepo records a repository whose detail fetch failed after retries.
// Its previous cached snapshot, if any, is retained.
type SkippedRepo struct {
	Name string
	Err  error
}

// Result is what a refresh hands back to the calling tool.
type Result struct {
	// Snapshots holds the up-to-date view, sorted by repository name.
	Snapshots []domain.RepositorySnapshot
	// Skipped lists repositories whose detail fetch failed; their prior
	// snapshots (when present) are still in Snapshots.
	Skipped []SkippedRepo
	// Warnings carries non-fatal notices for user-facing reporting.
	Warnings []string
	// FromCache is true when the listing ETag matched and the whole view
	// was served from the cache with zero detail fetches.
	FromCache bool
}

// PartialError is returned when the refresh ran out of time or was
// cancelled. Result holds everything merged so far and Unprocessed names
// the repositories that were never reached. Nothing is persisted.
type PartialError struct {
	Result      *Result
	Unprocessed []string
	Err         error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("refresh incomplete (%d repos unprocessed): %v", len(e.Unprocessed), e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// Syncer composes the gateway and the cache store into the refresh
// operation every tool consumes. Tools never touch the cache file or the
// API directly.
type Syncer struct {
	fetcher gateway.Fetcher
	store   *cache.Store
	logger  *log.Logger
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(fetcher gateway.Fetcher, store *cache.Store, logger *log.Logger) *Syncer {
	return &Syncer{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
	}
}

// Refresh brings the cached view of org's prefix-matching repositories up
// to date and returns it sorted by name.
//
// Load cache, enumerate, classify, fetch details for New/Updated entries
// only, merge, persist. Per-repository fetch failures downgrade to entries
// in Result.Skipped; rate-limit exhaustion and cache corruption abort. The
// cache file is only ever rewritten after a complete successful merge.
func (s *Syncer) Refresh(ctx context.Context, org, prefix string, opts Options) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	s.logger.Printf("Refreshing %s (prefix %q)...", org, prefix)

	prev, err := s.store.Load(org, prefix)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		s.logger.Printf("No cache for %s/%s, full scan", org, prefix)
		prev = domain.NewCacheSnapshot(org, prefix)
	}

	result := &Result{}

	// Cheap validity probe: the listing ETag changes whenever anything in
	// the organization's repository list does. A match means the cached
	// view is current and the refresh costs zero detail fetches.
	etag, err := s.fetcher.ListingETag(ctx, org)
	if err != nil {
		if gateway.IsRateLimited(err) {
			return nil, err
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("etag probe failed, enumerating anyway: %v", err))
		etag = ""
	}
	if !opts.ForceFull && etag != "" && prev.ListETag == etag {
		s.logger.Printf("Cached result for %s/%s is current", org, prefix)
		result.Snapshots = prev.SortedRepos()
		result.FromCache = true
		return result, nil
	}

	listings, err := gateway.DrainPager(ctx, s.fetcher.MatchingRepos(org, prefix))
	if err != nil {
		if isCancellation(ctx, err) {
			result.Snapshots = prev.SortedRepos()
			return nil, &PartialError{Result: result, Err: err}
		}
		return nil, fmt.Errorf("enumerate repositories: %w", err)
	}
	s.logger.Printf("Found %d repos matching %s/%s", len(listings), org, prefix)

	changes, toFetch := s.classify(prev, listings, opts.ForceFull)

	fresh := make(map[string]domain.RepositorySnapshot, len(toFetch))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for _, listing := range toFetch {
		eg.Go(func() error {
			snap, err := s.fetchOne(egCtx, org, listing, prev, opts.IncludeCollaborators)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Quota exhaustion and cancellation abort the whole
				// refresh; anything else skips just this repository.
				if gateway.IsRateLimited(err) || egCtx.Err() != nil {
					return err
				}
				s.logger.Printf("  skipping %s: %v", listing.Name, err)
				result.Skipped = append(result.Skipped, SkippedRepo{Name: listing.Name, Err: &gateway.TransientError{Repo: listing.Name, Err: err}})
				return nil
			}
			fresh[listing.Name] = *snap
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if isCancellation(ctx, err) {
			// Best-effort view: everything fetched so far merged over the
			// previous cache, without persisting any of it.
			view := cache.Merge(prev, changes, fresh)
			result.Snapshots = view.SortedRepos()
			unprocessed := notFetched(toFetch, fresh)
			sort.Strings(unprocessed)
			return nil, &PartialError{Result: result, Unprocessed: unprocessed, Err: err}
		}
		return nil, err
	}

	merged := cache.Merge(prev, changes, fresh)
	merged.ListETag = etag
	merged.RefreshedAt = time.Now().UTC()
	if err := s.store.Save(merged); err != nil {
		return nil, err
	}
	s.logger.Printf("Wrote cache for %s/%s (%d repos, %d fetched, %d skipped)",
		org, prefix, len(merged.Repos), len(fresh), len(result.Skipped))

	result.Snapshots = merged.SortedRepos()
	return result, nil
}

// classify compares every fresh listing against the cache and decides which
// repositories need a detail fetch. Cached names absent from the fresh
// enumeration come back as Removed.
func (s *Syncer) classify(prev *domain.CacheSnapshot, listings []gateway.RepoListing, forceFull bool) (map[string]domain.Change, []gateway.RepoListing) {
	changes := make(map[string]domain.Change, len(listings))
	var toFetch []gateway.RepoListing

	seen := make(map[string]bool, len(listings))
	for _, listing := range listings {
		seen[listing.Name] = true

		var cached *domain.RepositorySnapshot
		if c, ok := prev.Repos[listing.Name]; ok {
			cached = &c
		}
		change := domain.Classify(cached, listing.Fingerprint())
		if forceFull && change == domain.Unchanged {
			change = domain.Updated
		}
		changes[listing.Name] = change
		if change == domain.New || change == domain.Updated {
			toFetch = append(toFetch, listing)
		}
	}
	for name := range prev.Repos {
		if !seen[name] {
			changes[name] = domain.Removed
		}
	}
	return changes, toFetch
}

// fetchOne fetches the expensive sub-resources for a single repository. The
// merge of a repository is all-or-nothing: either the full snapshot lands
// in the fresh set or the prior cached snapshot is retained.
func (s *Syncer) fetchOne(ctx context.Context, org string, listing gateway.RepoListing, prev *domain.CacheSnapshot, collaborators bool) (*domain.RepositorySnapshot, error) {
	snap, err := s.fetcher.FetchDetail(ctx, org, listing.Name)
	if err != nil {
		return nil, err
	}
	if collaborators {
		logins, err := s.fetcher.FetchCollaborators(ctx, org, listing.Name)
		if err != nil {
			return nil, err
		}
		snap.Collaborators = logins
	}
	// The event cursor belongs to the event-time tooling; carry it
	// forward so a metadata refresh does not reset it.
	if prior, ok := prev.Repos[listing.Name]; ok {
		snap.EventCursor = prior.EventCursor
	}
	return snap, nil
}

// isCancellation reports whether err stems from the refresh deadline or the
// caller's cancellation rather than an API failure.
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// notFetched lists the candidates whose detail never arrived.
func notFetched(toFetch []gateway.RepoListing, fresh map[string]domain.RepositorySnapshot) []string {
	var names []string
	for _, l := range toFetch {
		if _, ok := fresh[l.Name]; !ok {
			names = append(names, l.Name)
		}
	}
	return names
}
