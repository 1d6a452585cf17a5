package usecase

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/classtools/classroom-sync/internal/cache"
	"github.com/classtools/classroom-sync/internal/domain"
	"github.com/classtools/classroom-sync/internal/gateway"
)

// stubPager serves canned listing pages.
type stubPager struct {
	pages [][]gateway.RepoListing
	i     int
	err   error
}

func (p *stubPager) Next(ctx context.Context) ([]gateway.RepoListing, bool, error) {
	if p.err != nil {
		return nil, false, p.err
	}
	if p.i >= len(p.pages) {
		return nil, true, nil
	}
	page := p.pages[p.i]
	p.i++
	return page, p.i >= len(p.pages), nil
}

// mockFetcher is a mock implementation of the gateway.Fetcher interface. It
// lets us simulate the GitHub gateway without real API calls.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) MatchingRepos(org, prefix string) gateway.Pager {
	args := m.Called(org, prefix)
	return args.Get(0).(gateway.Pager)
}

func (m *mockFetcher) ListingETag(ctx context.Context, org string) (string, error) {
	args := m.Called(ctx, org)
	return args.String(0), args.Error(1)
}

func (m *mockFetcher) FetchDetail(ctx context.Context, org, name string) (*domain.RepositorySnapshot, error) {
	args := m.Called(ctx, org, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RepositorySnapshot), args.Error(1)
}

func (m *mockFetcher) FetchCollaborators(ctx context.Context, org, name string) ([]string, error) {
	args := m.Called(ctx, org, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockFetcher) FetchPushEvents(ctx context.Context, org, name string) ([]gateway.PushEvent, error) {
	args := m.Called(ctx, org, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gateway.PushEvent), args.Error(1)
}

func (m *mockFetcher) SetPrivate(ctx context.Context, org, name string, private bool) error {
	args := m.Called(ctx, org, name, private)
	return args.Error(0)
}

func (m *mockFetcher) RateLimit(ctx context.Context) (*gateway.Quota, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Quota), args.Error(1)
}

var (
	t0 = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	t1 = time.Date(2026, 2, 1, 14, 0, 0, 0, time.UTC)
)

func newTestSyncer(t *testing.T, fetcher gateway.Fetcher) (*Syncer, *cache.Store) {
	t.Helper()
	store := cache.NewStore(t.TempDir())
	logger := log.New(io.Discard, "", 0)
	return NewSyncer(fetcher, store, logger), store
}

// TestRefreshClassifiesAndFetchesDeltas is the core scenario: a cached
// repository that changed upstream, a brand-new one, and an untouched one.
// Only the first two may cost detail fetches.
func TestRefreshClassifiesAndFetchesDeltas(t *testing.T) {
	fetcher := new(mockFetcher)
	syncer, store := newTestSyncer(t, fetcher)

	prev := domain.NewCacheSnapshot("testorg", "week06")
	prev.ListETag = `"etag-1"`
	prev.Repos["week06-alice"] = domain.RepositorySnapshot{Name: "week06-alice", HeadSHA: "abc123", PushedAt: t0}
	prev.Repos["week06-carol"] = domain.RepositorySnapshot{Name: "week06-carol", HeadSHA: "ccc333", PushedAt: t0}
	require.NoError(t, store.Save(prev))

	fetcher.On("ListingETag", mock.Anything, "testorg").Return(`"etag-2"`, nil)
	fetcher.On("MatchingRepos", "testorg", "week06").Return(&stubPager{pages: [][]gateway.RepoListing{{
		{Name: "week06-alice", PushedAt: t1},
		{Name: "week06-bob", PushedAt: t1},
		{Name: "week06-carol", PushedAt: t0},
	}}})
	fetcher.On("FetchDetail", mock.Anything, "testorg", "week06-alice").
		Return(&domain.RepositorySnapshot{Name: "week06-alice", HeadSHA: "def456", PushedAt: t1}, nil)
	fetcher.On("FetchDetail", mock.Anything, "testorg", "week06-bob").
		Return(&domain.RepositorySnapshot{Name: "week06-bob", HeadSHA: "111aaa", PushedAt: t1}, nil)

	result, err := syncer.Refresh(context.Background(), "testorg", "week06", Options{})
	require.NoError(t, err)

	require.Len(t, result.Snapshots, 3)
	assert.Equal(t, "week06-alice", result.Snapshots[0].Name)
	assert.Equal(t, "def456", result.Snapshots[0].HeadSHA)
	assert.Equal(t, "week06-bob", result.Snapshots[1].Name)
	assert.Equal(t, "111aaa", result.Snapshots[1].HeadSHA)
	// Unchanged entry carried forward from the cache, no detail fetch.
	assert.Equal(t, "week06-carol", result.Snapshots[2].Name)
	assert.Equal(t, "ccc333", result.Snapshots[2].HeadSHA)
	fetcher.AssertNotCalled(t, "FetchDetail", mock.Anything, "testorg", "week06-carol")

	// The merged cache was persisted with the new ETag.
	saved, err := store.Load("testorg", "week06")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Len(t, saved.Repos, 3)
	assert.Equal(t, `"etag-2"`, saved.ListETag)
	assert.Empty(t, result.Skipped)

	fetcher.AssertExpectations(t)
}

// TestRefreshETagFastPath: when nothing changed upstream, the second run
// serves the cache with zero enumeration and zero detail fetches and does
// not rewrite the file.
func TestRefreshETagFastPath(t *testing.T) {
	fetcher := new(mockFetcher)
	syncer, store := newTestSyncer(t, fetcher)

	prev := domain.NewCacheSnapshot("testorg", "week06")
	prev.ListETag = `"etag-1"`
	prev.Repos["week06-alice"] = domain.RepositorySnapshot{Name: "week06-alice", HeadSHA: "abc123", PushedAt: t0}
	require.NoError(t, store.Save(prev))
	before, err := os.ReadFile(store.Path("testorg", "week06"))
	require.NoError(t, err)

	fetcher.On("ListingETag", mock.Anything, "testorg").Return(`"etag-1"`, nil)

	result, err := syncer.Refresh(context.Background(), "testorg", "week06", Options{})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, "abc123", result.Snapshots[0].HeadSHA)

	fetcher.AssertNotCalled(t, "MatchingRepos", mock.Anything, mock.Anything)
	fetcher.AssertNotCalled(t, "FetchDetail", mock.Anything, mock.Anything, mock.Anything)

	after, err := os.ReadFile(store.Path("testorg", "week06"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "an unchanged refresh must leave the cache file byte-identical")
}

// TestRefreshForceFullIgnoresFingerprints: force-full re-fetches even
// entries whose fingerprints match.
func TestRefreshForceFullIgnoresFingerprints(t *testing.T) {
	fetcher := new(mockFetcher)
	syncer, store := newTestSyncer(t, fetcher)

	prev := domain.NewCacheSnapshot("testorg", "week06")
	prev.ListETag = `"etag-1"`
	prev.Repos["week06-alice"] = domain.RepositorySnapshot{Name: "week06-alice", HeadSHA: "abc123", PushedAt: t0}
	require.NoError(t, store.Save(prev))

	fetcher.On("ListingETag", mock.Anything, "testorg").Return(`"etag-1"`, nil)
	fetcher.On("MatchingRepos", "testorg", "week06").Return(&stubPager{pages: [][]gateway.RepoListing{{
		{Name: "week06-alice", PushedAt: t0},
	}}})
	fetcher.On("FetchDetail", mock.Anything, "testorg", "week06-alice").
		Return(&domain.RepositorySnapshot{Name: "week06-alice", HeadSHA: "abc123", PushedAt: t0}, nil)

	result, err := syncer.Refresh(context.Background(), "testorg", "week06", Options{ForceFull: true})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	fetcher.AssertCalled(t, "FetchDetail", mock.Anything, "testorg", "week06-alice")
}

// TestRefreshSkipAndContinue: a failing detail fetch skips that repository,
// retains its previous snapshot, and does not sink the refresh.
func TestRefreshSkipAndContinue(t *testing.T) {
	fetcher := new(mockFetcher)
	syncer, store := newTestSyncer(t, fetcher)

	prev := domain.NewCacheSnapshot("testorg", "week06")
	prev.Repos["week06-flaky"] = domain.RepositorySnapshot{Name: "week06-flaky", HeadSHA: "old111", PushedAt: t0}
	require.NoError(t, store.Save(prev))

	fetcher.On("ListingETag", mock.Anything, "testorg").Return(`"etag-2"`, nil)
	fetcher.On("MatchingRepos", "testorg", "week06").Return(&stubPager{pages: [][]gateway.RepoListing{{
		{Name: "week06-flaky", PushedAt: t1},
		{Name: "week06-bob", PushedAt: t1},
	}}})
	fetcher.On("FetchDetail", mock.Anything, "testorg", "week06-flaky").
		Return(nil, errors.New("get repository: boom"))
	fetcher.On("FetchDetail", mock.Anything, "testorg", "week06-bob").
		Return(&domain.RepositorySnapshot{Name: "week06-bob", HeadSHA: "111aaa", PushedAt: t1}, nil)

	result, err := syncer.Refresh(context.Background(), "testorg", "week06", Options{})
	require.NoError(t, err)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "week06-flaky", result.Skipped[0].Name)
	assert.True(t, gateway.IsTransient(result.Skipped[0].Err))

	// The flaky repo keeps its previous snapshot in the merged view.
	require.Len(t, result.Snapshots, 2)
	assert.Equal(t, "111aaa", result.Snapshots[0].HeadSHA)
	assert.Equal(t, "old111", result.Snapshots[1].HeadSHA)

	saved, err := store.Load("testorg", "week06")
	require.NoError(t, err)
	assert.Equal(t, "old111", saved.Repos["week06-flaky"].HeadSHA)
}

// TestRefreshRateLimitAborts: quota exhaustion is fatal and must not
// rewrite the cache.
func TestRefreshRateLimitAborts(t *testing.T) {
	fetcher := new(mockFetcher)
	syncer, store := newTestSyncer(t, fetcher)

	fetcher.On("ListingETag", mock.Anything, "testorg").Return(`"etag-1"`, nil)
	fetcher.On("MatchingRepos", "testorg", "week06").Return(&stubPager{pages: [][]gateway.RepoListing{{
		{Name: "week06-alice", PushedAt: t1},
	}}})
	fetcher.On("FetchDetail", mock.Anything, "testorg", "week06-alice").
		Return(nil, &gateway.RateLimitError{ResetAt: t1.Add(time.Hour)})

	_, err := syncer.Refresh(context.Background(), "testorg", "week06", Options{})
	require.Error(t, err)
	assert.True(t, gateway.IsRateLimited(err))

	saved, err := store.Load("testorg", "week06")
	require.NoError(t, err)
	assert.Nil(t, saved, "a failed refresh must not write a cache file")
}

// TestRefreshDropsRemovedRepos: cached names absent from the fresh
// enumeration disappear from the merged cache.
func TestRefreshDropsRemovedRepos(t *testing.T) {
	fetcher := new(mockFetcher)
	syncer, store := newTestSyncer(t, fetcher)

	prev := domain.NewCacheSnapshot("testorg", "week06")
	prev.Repos["week06-gone"] = domain.RepositorySnapshot{Name: "week06-gone", HeadSHA: "ddd444", PushedAt: t0}
	prev.Repos["week06-alice"] = domain.RepositorySnapshot{Name: "week06-alice", HeadSHA: "abc123", PushedAt: t0}
	require.NoError(t, store.Save(prev))

	fetcher.On("ListingETag", mock.Anything, "testorg").Return(`"etag-2"`, nil)
	fetcher.On("MatchingRepos", "testorg", "week06").Return(&stubPager{pages: [][]gateway.RepoListing{{
		{Name: "week06-alice", PushedAt: t0},
	}}})

	result, err := syncer.Refresh(context.Background(), "testorg", "week06", Options{})
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, "week06-alice", result.Snapshots[0].Name)

	saved, err := store.Load("testorg", "week06")
	require.NoError(t, err)
	assert.NotContains(t, saved.Repos, "week06-gone")
}

// TestRefreshCorruptCacheAborts: an unparseable cache file fails hard with
// remediation advice instead of being silently clobbered.
func TestRefreshCorruptCacheAborts(t *testing.T) {
	fetcher := new(mockFetcher)
	syncer, store := newTestSyncer(t, fetcher)
	require.NoError(t, os.WriteFile(store.Path("testorg", "week06"), []byte("not json"), 0o644))

	_, err := syncer.Refresh(context.Background(), "testorg", "week06", Options{})
	var corrupt *cache.CorruptError
	require.ErrorAs(t, err, &corrupt)
	fetcher.AssertNotCalled(t, "ListingETag", mock.Anything, mock.Anything)
}

// TestRefreshIncludeCollaborators: the collaborator option pays the extra
// call and lands the logins in the snapshot.
func TestRefreshIncludeCollaborators(t *testing.T) {
	fetcher := new(mockFetcher)
	syncer, _ := newTestSyncer(t, fetcher)

	fetcher.On("ListingETag", mock.Anything, "testorg").Return(`"etag-1"`, nil)
	fetcher.On("MatchingRepos", "testorg", "week06").Return(&stubPager{pages: [][]gateway.RepoListing{{
		{Name: "week06-alice", PushedAt: t1},
	}}})
	fetcher.On("FetchDetail", mock.Anything, "testorg", "week06-alice").
		Return(&domain.RepositorySnapshot{Name: "week06-alice", HeadSHA: "def456", PushedAt: t1}, nil)
	fetcher.On("FetchCollaborators", mock.Anything, "testorg", "week06-alice").
		Return([]string{"alice", "dwallach"}, nil)

	result, err := syncer.Refresh(context.Background(), "testorg", "week06", Options{IncludeCollaborators: true})
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, []string{"alice", "dwallach"}, result.Snapshots[0].Collaborators)
}

// slowFetcher blocks detail fetches until the context dies, driving the
// refresh into its deadline.
type slowFetcher struct {
	mockFetcher
}

func (f *slowFetcher) FetchDetail(ctx context.Context, org, name string) (*domain.RepositorySnapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRefreshTimeoutReturnsPartial(t *testing.T) {
	fetcher := new(slowFetcher)
	syncer, store := newTestSyncer(t, fetcher)

	prev := domain.NewCacheSnapshot("testorg", "week06")
	prev.Repos["week06-alice"] = domain.RepositorySnapshot{Name: "week06-alice", HeadSHA: "abc123", PushedAt: t0}
	require.NoError(t, store.Save(prev))
	before, err := os.ReadFile(store.Path("testorg", "week06"))
	require.NoError(t, err)

	fetcher.On("ListingETag", mock.Anything, "testorg").Return(`"etag-2"`, nil)
	fetcher.On("MatchingRepos", "testorg", "week06").Return(&stubPager{pages: [][]gateway.RepoListing{{
		{Name: "week06-alice", PushedAt: t1},
		{Name: "week06-bob", PushedAt: t1},
	}}})

	_, err = syncer.Refresh(context.Background(), "testorg", "week06", Options{Timeout: 50 * time.Millisecond})
	require.Error(t, err)

	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.ElementsMatch(t, []string{"week06-alice", "week06-bob"}, partial.Unprocessed)
	// The partial view still carries the previous snapshot.
	require.Len(t, partial.Result.Snapshots, 1)
	assert.Equal(t, "abc123", partial.Result.Snapshots[0].HeadSHA)

	after, err := os.ReadFile(store.Path("testorg", "week06"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "a partial refresh must not touch the cache file")
}
