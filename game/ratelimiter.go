package game

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pkgz/expirable-cache/v3"
)

const (
	loginAttemptInterval = 10 * time.Second
	loginAttemptCleanup  = time.Minute
	loginAttemptKeys     = 1 << 16
)

// loginRateLimiter makes users wait loginAttemptInterval after a failed login
// before trying the same username again.
type loginRateLimiter struct {
	attempts cache.Cache[string, time.Time]
}

// newLoginRateLimiter drops expired attempts until ctx is done.
func newLoginRateLimiter(ctx context.Context) *loginRateLimiter {
	l := &loginRateLimiter{
		attempts: cache.NewCache[string, time.Time]().WithTTL(loginAttemptInterval).WithMaxKeys(loginAttemptKeys),
	}
	go l.runCleanupLoop(ctx)
	return l
}

func (l *loginRateLimiter) runCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(loginAttemptCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.attempts.DeleteExpired()
		}
	}
}

// wait returns how long username has to wait before the next attempt.
func (l *loginRateLimiter) wait(username string) time.Duration {
	last, found := l.attempts.Get(strings.ToLower(username))
	if !found {
		return 0
	}
	return max(0, loginAttemptInterval-time.Since(last))
}

func (l *loginRateLimiter) waitIfNeeded(username string, w io.Writer) {
	if wait := l.wait(username); wait > 0 {
		fmt.Fprintf(w, "Please wait %v before trying again.\n", wait.Round(time.Second))
		time.Sleep(wait)
	}
}

func (l *loginRateLimiter) recordFailure(username string) {
	l.attempts.Set(strings.ToLower(username), time.Now(), 0)
}

func (l *loginRateLimiter) clearFailure(username string) {
	l.attempts.Invalidate(strings.ToLower(username))
}
