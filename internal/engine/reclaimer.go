package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/paradox-gate/internal/domain"
	"github.com/ashureev/paradox-gate/internal/store"
)

// StartReclaimer runs the background sweep that relieves sessions
// stuck deep in trap state, on a fixed interval until ctx is done.
func (e *Engine) StartReclaimer(ctx context.Context) {
	ticker := time.NewTicker(e.params.ReclaimInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Reclaimer started", "interval", e.params.ReclaimInterval)

		for {
			select {
			case <-ticker.C:
				e.ReclaimOnce(ctx)
			case <-ctx.Done():
				slog.Info("Reclaimer shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// ReclaimOnce sweeps every stored session once. A session qualifies
// when it is not accepted, its round history has grown past the
// minimum and its trap depth exceeds the decay threshold; it then has
// its history truncated to the retained tail and its trap depth
// decremented by one. Accepted sessions are never touched. Failures
// are logged and skipped, never fatal.
func (e *Engine) ReclaimOnce(ctx context.Context) {
	var reclaimed int
	err := e.store.Scan(ctx, func(sess *domain.Session) bool {
		if sess.Accepted ||
			len(sess.Rounds) <= e.params.ReclaimMinRounds ||
			sess.TrapDepth <= e.params.ReclaimTrapDepth {
			return true
		}

		keep := e.params.RetainRounds
		if keep > len(sess.Rounds) {
			keep = len(sess.Rounds)
		}
		sess.Rounds = append([]domain.Round(nil), sess.Rounds[len(sess.Rounds)-keep:]...)
		if sess.TrapDepth > 0 {
			sess.TrapDepth--
		}

		if err := e.store.Put(ctx, sess); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				// A foreground writer got there first; its decision
				// wins and this session is revisited next sweep.
				slog.Debug("Reclaimer lost write race", "token", sess.Token)
			} else {
				slog.Error("Reclaimer failed to persist session",
					"token", sess.Token, "error", err)
			}
			return true
		}
		reclaimed++
		return true
	})
	if err != nil {
		slog.Error("Reclaimer sweep failed", "error", err)
		return
	}
	if reclaimed > 0 {
		slog.Info("Reclaimer relieved trapped sessions", "count", reclaimed)
	}
}
