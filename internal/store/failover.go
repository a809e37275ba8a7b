package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/paradox-gate/internal/domain"
)

const (
	failoverAttempts  = 3
	failoverBaseDelay = 100 * time.Millisecond
	failoverOpTimeout = 2 * time.Second
)

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Failover wraps a durable primary store with an in-process fallback.
// Transient primary failures are retried with bounded exponential
// backoff and then absorbed by the fallback; they never surface to the
// caller. Version conflicts are not failures and pass through
// untouched.
type Failover struct {
	primary     Store
	primaryName string
	fallback    *Memory
}

// NewFailover wraps primary with the given in-process fallback.
// primaryName labels the backend in health reports.
func NewFailover(primary Store, primaryName string, fallback *Memory) *Failover {
	return &Failover{primary: primary, primaryName: primaryName, fallback: fallback}
}

// Mode reports which backend is currently serving: the primary's name
// while it is reachable, "memory" otherwise.
func (f *Failover) Mode(ctx context.Context) string {
	if p, ok := f.primary.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return "memory"
		}
	}
	return f.primaryName
}

// FallbackLen reports how many sessions the in-process fallback holds.
func (f *Failover) FallbackLen() int {
	return f.fallback.Len()
}

// withRetry runs op against the primary with bounded backoff. Sentinel
// outcomes (version conflict) abort immediately; only transient errors
// are retried.
func (f *Failover) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < failoverAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, failoverOpTimeout)
		err = op(opCtx)
		cancel()
		if err == nil || errors.Is(err, ErrVersionConflict) {
			return err
		}
		if attempt < failoverAttempts-1 {
			delay := failoverBaseDelay * time.Duration(1<<attempt)
			slog.Debug("Primary store operation failed, retrying",
				"attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

// Put writes to the primary, degrading to the fallback once the retry
// budget is exhausted. Degradation is silent by contract.
func (f *Failover) Put(ctx context.Context, s *domain.Session) error {
	err := f.withRetry(ctx, func(ctx context.Context) error {
		return f.primary.Put(ctx, s)
	})
	if err == nil || errors.Is(err, ErrVersionConflict) {
		return err
	}
	slog.Warn("Primary store unreachable, degrading to in-process fallback",
		"token", s.Token, "error", err)
	return f.fallback.Put(ctx, s)
}

// Get reads from the primary, consulting the fallback both on failure
// and on a primary miss, so sessions written during an outage remain
// reachable.
func (f *Failover) Get(ctx context.Context, token string) (*domain.Session, error) {
	var s *domain.Session
	err := f.withRetry(ctx, func(ctx context.Context) error {
		var getErr error
		s, getErr = f.primary.Get(ctx, token)
		return getErr
	})
	if err != nil {
		slog.Warn("Primary store unreachable, reading from fallback",
			"token", token, "error", err)
		return f.fallback.Get(ctx, token)
	}
	if s == nil {
		return f.fallback.Get(ctx, token)
	}
	return s, nil
}

// Delete removes the session from both backends.
func (f *Failover) Delete(ctx context.Context, token string) error {
	err := f.withRetry(ctx, func(ctx context.Context) error {
		return f.primary.Delete(ctx, token)
	})
	if err != nil {
		slog.Warn("Primary store delete failed", "token", token, "error", err)
	}
	return f.fallback.Delete(ctx, token)
}

// Scan visits the primary's sessions, then any held only by the
// fallback. A primary failure degrades to scanning the fallback alone.
func (f *Failover) Scan(ctx context.Context, fn func(*domain.Session) bool) error {
	seen := make(map[string]bool)
	stopped := false
	err := f.withRetry(ctx, func(ctx context.Context) error {
		return f.primary.Scan(ctx, func(s *domain.Session) bool {
			seen[s.Token] = true
			if !fn(s) {
				stopped = true
				return false
			}
			return true
		})
	})
	if err != nil {
		slog.Warn("Primary store scan failed, scanning fallback", "error", err)
		return f.fallback.Scan(ctx, fn)
	}
	if stopped {
		return nil
	}
	return f.fallback.Scan(ctx, func(s *domain.Session) bool {
		if seen[s.Token] {
			return true
		}
		return fn(s)
	})
}
