// Package store provides session persistence with TTL and optimistic
// concurrency, over a durable backend with an in-process fallback.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/paradox-gate/internal/domain"
)

// ErrVersionConflict is returned by Put when the stored session version
// does not match the caller's base version. The caller must re-read and
// retry its whole read-decide-write cycle.
var ErrVersionConflict = errors.New("session version conflict")

// Store persists session documents keyed by token.
//
// Put writes the session using its Version field as the base version
// for an atomic check-and-increment; on success the field is advanced
// to the stored version. Get returns (nil, nil) for a missing or
// expired token. Scan visits every live session; the callback returns
// false to stop early.
type Store interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	Delete(ctx context.Context, token string) error
	Scan(ctx context.Context, fn func(*domain.Session) bool) error
}
