// Package gateway provides a gateway to the GitHub REST API. It owns the
// rate-limited request executor and the paginated enumerators that the sync
// layer is built on.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/classtools/classroom-sync/internal/domain"
)

const (
	// maxRetries bounds retries for 5xx responses before a failure is
	// surfaced as transient.
	maxRetries = 3

	// retryBaseDelay is the initial backoff delay, doubled per attempt
	// with jitter.
	retryBaseDelay = time.Second

	perPage = 100
)

// RepoListing is one raw record from the paginated repository enumeration.
// It carries just enough to classify the repository against the cache; the
// full snapshot requires a detail fetch.
type RepoListing struct {
	Name          string
	FullName      string
	Private       bool
	DefaultBranch string
	PushedAt      time.Time
	CloneURL      string
	HTMLURL       string
}

// Fingerprint returns the listing's change-detection fingerprint. The
// listing endpoint does not report the head commit, so only the push
// timestamp is populated.
func (r RepoListing) Fingerprint() domain.Fingerprint {
	return domain.Fingerprint{PushedAt: r.PushedAt}
}

// PushEvent is one push from a repository's event feed.
type PushEvent struct {
	ID        string
	Actor     string
	CreatedAt time.Time
	Commits   []PushCommit
}

// PushCommit is a single commit within a push event.
type PushCommit struct {
	SHA     string
	Message string
}

// Quota reports the primary rate limit state as seen by the platform.
type Quota struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Fetcher defines the behavior of a gateway for fetching information from
// GitHub. The sync layer and the CLI tools depend on this interface, never
// on the concrete client.
type Fetcher interface {
	// MatchingRepos returns a pager over the organization's repositories
	// whose names start with prefix. Each call restarts from page 1.
	MatchingRepos(org, prefix string) Pager
	// ListingETag probes the repository listing's ETag without consuming
	// quota. A matching ETag means the listing has not changed.
	ListingETag(ctx context.Context, org string) (string, error)
	// FetchDetail fetches the full snapshot for one repository, including
	// the default branch head commit.
	FetchDetail(ctx context.Context, org, name string) (*domain.RepositorySnapshot, error)
	// FetchCollaborators returns the sorted collaborator logins.
	FetchCollaborators(ctx context.Context, org, name string) ([]string, error)
	// FetchPushEvents returns the repository's push events, newest first.
	FetchPushEvents(ctx context.Context, org, name string) ([]PushEvent, error)
	// SetPrivate flips a repository's visibility.
	SetPrivate(ctx context.Context, org, name string, private bool) error
	// RateLimit probes the platform's quota endpoint.
	RateLimit(ctx context.Context) (*Quota, error)
}

// Pager is a lazy, finite sequence of repository listing pages. Pagination
// is strictly sequential; each page's cursor depends on the prior response.
type Pager interface {
	// Next fetches the next page. done is true once the platform reports
	// no further page.
	Next(ctx context.Context) (page []RepoListing, done bool, err error)
}

// DrainPager collects every page of a pager into a single slice, preserving
// the platform's listing order.
func DrainPager(ctx context.Context, p Pager) ([]RepoListing, error) {
	var all []RepoListing
	for {
		page, done, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if done {
			return all, nil
		}
	}
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
// Every request funnels through the shared RateLimiter before it is issued
// and updates it from the response afterwards.
type GitHubGateway struct {
	client  *github.Client
	limiter *RateLimiter
	logger  *log.Logger
}

var _ Fetcher = (*GitHubGateway)(nil)

// NewGitHubGateway is a constructor that creates a new instance of
// GitHubGateway. The HTTP stack layers the oauth2 token transport over the
// secondary-rate-limit waiter, so abuse-limit sleeps happen below the
// primary quota accounting.
func NewGitHubGateway(token string, logger *log.Logger) (*GitHubGateway, error) {
	waiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   waiter,
			Source: ts,
		},
	}
	return &GitHubGateway{
		client:  github.NewClient(httpClient),
		limiter: NewRateLimiter(),
		logger:  logger,
	}, nil
}

// Limiter exposes the shared quota state, e.g. for user-facing advice after
// a rate limit failure.
func (g *GitHubGateway) Limiter() *RateLimiter { return g.limiter }

// do is the single execution point for API calls: wait for quota, issue the
// call, update quota state, retry 5xx and network faults with jittered
// backoff, and map platform rate-limit errors to our own kinds.
func (g *GitHubGateway) do(ctx context.Context, op string, call func() (*github.Response, error)) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			delay += time.Duration(rand.Int63n(int64(delay) / 2))
			g.logger.Printf("  %s failed, retrying in %v (attempt %d/%d)", op, delay, attempt, maxRetries)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := call()
		g.limiter.Update(resp)
		if err == nil {
			return nil
		}
		mapped, retryable := g.mapError(op, err)
		if !retryable {
			return mapped
		}
		lastErr = mapped
	}
	return lastErr
}

// mapError converts a go-github error into one of our error kinds and
// reports whether the request may be retried.
func (g *GitHubGateway) mapError(op string, err error) (error, bool) {
	var rlErr *github.RateLimitError
	if errors.As(err, &rlErr) {
		remaining, limit, resetAt := g.limiter.Snapshot()
		if !rlErr.Rate.Reset.IsZero() {
			resetAt = rlErr.Rate.Reset.Time
		}
		return &RateLimitError{ResetAt: resetAt, Remaining: remaining, Limit: limit}, false
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		// The transport-level waiter already slept through its budget.
		resetAt := time.Now()
		if abuseErr.RetryAfter != nil {
			resetAt = resetAt.Add(*abuseErr.RetryAfter)
		}
		remaining, limit, _ := g.limiter.Snapshot()
		return &RateLimitError{ResetAt: resetAt, Remaining: remaining, Limit: limit}, false
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		url := ""
		if ghErr.Response.Request != nil && ghErr.Response.Request.URL != nil {
			url = ghErr.Response.Request.URL.String()
		}
		apiErr := &APIError{StatusCode: code, Message: ghErr.Message, URL: url}
		return fmt.Errorf("%s: %w", op, apiErr), code >= 500
	}
	// Network-level failures are worth retrying.
	return fmt.Errorf("%s: %w", op, err), true
}

// repoPager walks the organization's repository listing one page at a time,
// filtering by name prefix client-side.
type repoPager struct {
	g      *GitHubGateway
	org    string
	prefix string
	page   int
	done   bool
}

// MatchingRepos returns a pager over org's repositories matching prefix.
func (g *GitHubGateway) MatchingRepos(org, prefix string) Pager {
	return &repoPager{g: g, org: org, prefix: prefix, page: 1}
}

func (p *repoPager) Next(ctx context.Context) ([]RepoListing, bool, error) {
	if p.done {
		return nil, true, nil
	}

	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{Page: p.page, PerPage: perPage},
	}
	var repos []*github.Repository
	err := p.g.do(ctx, "list repositories", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		repos, resp, err = p.g.client.Repositories.ListByOrg(ctx, p.org, opts)
		if err == nil && resp != nil {
			if resp.NextPage == 0 {
				p.done = true
			} else {
				p.page = resp.NextPage
			}
		}
		return resp, err
	})
	if err != nil {
		return nil, false, err
	}

	out := make([]RepoListing, 0, len(repos))
	for _, r := range repos {
		name := r.GetName()
		if p.prefix != "" && !strings.HasPrefix(name, p.prefix) {
			continue
		}
		out = append(out, RepoListing{
			Name:          name,
			FullName:      r.GetFullName(),
			Private:       r.GetPrivate(),
			DefaultBranch: r.GetDefaultBranch(),
			PushedAt:      r.GetPushedAt().Time.UTC(),
			CloneURL:      r.GetCloneURL(),
			HTMLURL:       r.GetHTMLURL(),
		})
	}
	return out, p.done, nil
}

// ListingETag issues a HEAD request against the org's repository listing.
// HEAD requests do not consume quota, and the ETag changes whenever the
// listing does, which makes this a cheap cache-validity probe.
func (g *GitHubGateway) ListingETag(ctx context.Context, org string) (string, error) {
	var etag string
	err := g.do(ctx, "probe listing etag", func() (*github.Response, error) {
		req, err := g.client.NewRequest(http.MethodHead, fmt.Sprintf("orgs/%s/repos", org), nil)
		if err != nil {
			return nil, err
		}
		resp, err := g.client.Do(ctx, req, nil)
		if resp != nil {
			etag = resp.Header.Get("ETag")
		}
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return etag, nil
}

// FetchDetail fetches the full snapshot for one repository: the repository
// record plus the default branch's head commit.
func (g *GitHubGateway) FetchDetail(ctx context.Context, org, name string) (*domain.RepositorySnapshot, error) {
	var repo *github.Repository
	err := g.do(ctx, "get repository", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		repo, resp, err = g.client.Repositories.Get(ctx, org, name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	snap := &domain.RepositorySnapshot{
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Private:       repo.GetPrivate(),
		DefaultBranch: repo.GetDefaultBranch(),
		PushedAt:      repo.GetPushedAt().Time.UTC(),
		CloneURL:      repo.GetCloneURL(),
		HTMLURL:       repo.GetHTMLURL(),
	}

	if snap.DefaultBranch != "" {
		var branch *github.Branch
		err = g.do(ctx, "get default branch", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			branch, resp, err = g.client.Repositories.GetBranch(ctx, org, name, snap.DefaultBranch, 1)
			return resp, err
		})
		switch {
		case err == nil:
			snap.HeadSHA = branch.GetCommit().GetSHA()
		case IsNotFound(err):
			// Empty repository: no commits on the default branch yet.
			g.logger.Printf("  %s/%s has no commits on %s", org, name, snap.DefaultBranch)
		default:
			return nil, err
		}
	}
	return snap, nil
}

// FetchCollaborators returns the repository's collaborator logins, sorted.
func (g *GitHubGateway) FetchCollaborators(ctx context.Context, org, name string) ([]string, error) {
	opts := &github.ListCollaboratorsOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var logins []string
	for {
		var users []*github.User
		var next int
		err := g.do(ctx, "list collaborators", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			users, resp, err = g.client.Repositories.ListCollaborators(ctx, org, name, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			logins = append(logins, u.GetLogin())
		}
		if next == 0 {
			break
		}
		opts.Page = next
	}
	sort.Strings(logins)
	return logins, nil
}

// FetchPushEvents returns the repository's push events, newest first, paging
// through the events feed.
func (g *GitHubGateway) FetchPushEvents(ctx context.Context, org, name string) ([]PushEvent, error) {
	opts := &github.ListOptions{PerPage: perPage}
	var events []PushEvent
	for {
		var raw []*github.Event
		var next int
		err := g.do(ctx, "list events", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			raw, resp, err = g.client.Activity.ListRepositoryEvents(ctx, org, name, opts)
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, ev := range raw {
			if ev.GetType() != "PushEvent" {
				continue
			}
			payload, err := ev.ParsePayload()
			if err != nil {
				g.logger.Printf("  skipping malformed event %s: %v", ev.GetID(), err)
				continue
			}
			push, ok := payload.(*github.PushEvent)
			if !ok {
				continue
			}
			pe := PushEvent{
				ID:        ev.GetID(),
				Actor:     ev.GetActor().GetLogin(),
				CreatedAt: ev.GetCreatedAt().Time.UTC(),
			}
			for _, c := range push.Commits {
				pe.Commits = append(pe.Commits, PushCommit{SHA: c.GetSHA(), Message: c.GetMessage()})
			}
			events = append(events, pe)
		}
		if next == 0 {
			break
		}
		opts.Page = next
	}
	return events, nil
}

// SetPrivate flips the repository's visibility via a PATCH.
func (g *GitHubGateway) SetPrivate(ctx context.Context, org, name string, private bool) error {
	return g.do(ctx, "set visibility", func() (*github.Response, error) {
		_, resp, err := g.client.Repositories.Edit(ctx, org, name, &github.Repository{
			Private: github.Bool(private),
		})
		return resp, err
	})
}

// RateLimit probes the platform's quota endpoint. The probe itself is free.
func (g *GitHubGateway) RateLimit(ctx context.Context) (*Quota, error) {
	var limits *github.RateLimits
	err := g.do(ctx, "rate limit probe", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		limits, resp, err = g.client.RateLimit.Get(ctx)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	core := limits.GetCore()
	return &Quota{
		Remaining: core.Remaining,
		Limit:     core.Limit,
		ResetAt:   core.Reset.Time,
	}, nil
}
