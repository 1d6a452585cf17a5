package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrRepoNotFound indicates the repository was not found or is not accessible.
var ErrRepoNotFound = errors.New("github: repository not found")

// RateLimitError means the API quota is exhausted and the backoff budget is
// spent. It is fatal to the current refresh; ResetAt tells the user how long
// to wait.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// TransientError wraps a single-repository fetch failure that survived the
// retry policy. The refresh recovers by skipping the repository and keeping
// its prior cached snapshot.
type TransientError struct {
	Repo string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("github: transient failure fetching %s: %v", e.Repo, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// APIError is a non-retryable GitHub API error response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsRateLimited reports whether err indicates an exhausted quota.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsTransient reports whether err is a recoverable per-repository failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsNotFound reports whether err indicates a missing resource.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return errors.Is(err, ErrRepoNotFound)
}
