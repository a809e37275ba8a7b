// Package engine implements the session state machine: challenge
// issuance, answer scoring, trap escalation and the terminal
// accept/fallback decisions.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/paradox-gate/internal/challenge"
	"github.com/ashureev/paradox-gate/internal/domain"
	"github.com/ashureev/paradox-gate/internal/score"
	"github.com/ashureev/paradox-gate/internal/store"
)

// Client error categories, mapped to 4xx statuses at the boundary.
// None of them mutate session state.
var (
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrRoundNotFound   = errors.New("round not found")
	ErrRoundAnswered   = errors.New("round already answered")
	ErrAnswerTooLong   = errors.New("answer too long")
)

// Action is the decision taken after a scored round.
type Action string

const (
	ActionContinue           Action = "continue"
	ActionAccepted           Action = "accepted"
	ActionAcceptedAfterLimit Action = "accepted_after_limit"
	ActionDeepTrap           Action = "deep_trap"
	ActionFallbackFailed     Action = "fallback_traditional"
)

// Params holds the protocol tunables.
type Params struct {
	SessionTTL                time.Duration
	MaxRounds                 int
	RequiredHumanScore        int
	RequiredConsecutivePasses int
	TrapThreshold             float64
	// DeepTrapThreshold: once trap depth exceeds this, the session is
	// forced into the terminal regress challenge.
	DeepTrapThreshold int
	MaxAnswerLength   int
	// SubmitRetries bounds how many times a submit re-runs its whole
	// read-decide-write cycle after losing a version race.
	SubmitRetries int

	ReclaimInterval  time.Duration
	ReclaimMinRounds int
	ReclaimTrapDepth int
	RetainRounds     int
}

// DefaultParams returns the production tuning.
func DefaultParams() Params {
	return Params{
		SessionTTL:                600 * time.Second,
		MaxRounds:                 20,
		RequiredHumanScore:        5,
		RequiredConsecutivePasses: 3,
		TrapThreshold:             0.55,
		DeepTrapThreshold:         3,
		MaxAnswerLength:           1000,
		SubmitRetries:             3,
		ReclaimInterval:           30 * time.Second,
		ReclaimMinRounds:          15,
		ReclaimTrapDepth:          3,
		RetainRounds:              5,
	}
}

// Events receives plain telemetry notifications from the engine. The
// engine never reads anything back from it.
type Events interface {
	SessionCreated()
	RoundScored(variant domain.Variant, trap bool, passed bool)
	BotLikelihoodObserved(v float64)
	TrapDepthObserved(depth int)
}

type noopEvents struct{}

func (noopEvents) SessionCreated()                        {}
func (noopEvents) RoundScored(domain.Variant, bool, bool) {}
func (noopEvents) BotLikelihoodObserved(float64)          {}
func (noopEvents) TrapDepthObserved(int)                  {}

// Engine drives sessions through the challenge protocol.
type Engine struct {
	store   store.Store
	catalog *challenge.Catalog
	scorer  *score.Engine
	events  Events
	params  Params
}

// New creates an Engine. A nil events sink is replaced with a no-op.
func New(st store.Store, cat *challenge.Catalog, sc *score.Engine, ev Events, p Params) *Engine {
	if ev == nil {
		ev = noopEvents{}
	}
	return &Engine{store: st, catalog: cat, scorer: sc, events: ev, params: p}
}

// SessionCreated is the boundary result of opening a session.
type SessionCreated struct {
	Token     string           `json:"token"`
	Challenge domain.Challenge `json:"challenge"`
	RoundID   string           `json:"round_id"`
	ExpiresIn int              `json:"expires_in"`
}

// CreateSession opens a new session, issues its first challenge and
// persists it. The returned challenge is sanitized.
func (e *Engine) CreateSession(ctx context.Context) (*SessionCreated, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &domain.Session{
		Token:     token,
		CreatedAt: now,
		Expiry:    now.Add(e.params.SessionTTL),
		LastSeen:  now,
	}

	ch := e.catalog.Pick(sess, false)
	round := appendRound(sess, ch)

	if err := e.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist new session: %w", err)
	}
	e.events.SessionCreated()

	return &SessionCreated{
		Token:     token,
		Challenge: ch.Sanitized(),
		RoundID:   round.RoundID,
		ExpiresIn: int(time.Until(sess.Expiry).Seconds()),
	}, nil
}

// SubmitRequest is one answer to an outstanding round.
type SubmitRequest struct {
	Token   string
	RoundID string
	Answer  string
	Meta    domain.Meta
}

// RoundResult is the sanitized scoring outcome returned to the client.
type RoundResult struct {
	HumanScore    int     `json:"human_score"`
	Explanation   string  `json:"explanation"`
	BotLikelihood float64 `json:"bot_likelihood"`
}

// SubmitResult is the boundary result of answering a round.
type SubmitResult struct {
	RoundResult       RoundResult       `json:"round_result"`
	Accepted          bool              `json:"accepted"`
	Action            Action            `json:"action"`
	TrapDepth         int               `json:"trap_depth"`
	ConsecutivePasses int               `json:"consecutive_passes"`
	NextChallenge     *domain.Challenge `json:"next_challenge,omitempty"`
	NextRoundID       string            `json:"next_round_id,omitempty"`
}

// SubmitResponse scores an answer and advances the session state
// machine. On a version conflict the whole read-decide-write cycle is
// retried from a fresh read.
func (e *Engine) SubmitResponse(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if len(req.Answer) > e.params.MaxAnswerLength {
		return nil, ErrAnswerTooLong
	}

	var lastErr error
	for attempt := 0; attempt < e.params.SubmitRetries; attempt++ {
		res, err := e.submitOnce(ctx, req)
		if errors.Is(err, store.ErrVersionConflict) {
			lastErr = err
			continue
		}
		return res, err
	}
	return nil, fmt.Errorf("submit response for %s: %w", req.Token, lastErr)
}

func (e *Engine) submitOnce(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	sess, err := e.store.Get(ctx, req.Token)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	round := sess.FindRound(req.RoundID)
	if round == nil {
		return nil, ErrRoundNotFound
	}
	if round.Result != nil {
		return nil, ErrRoundAnswered
	}

	out := e.scorer.Score(sess, round.Challenge, req.Answer, req.Meta)
	round.Result = &domain.Result{
		AnsweredAt:    time.Now(),
		Answer:        req.Answer,
		Meta:          req.Meta,
		HumanScore:    out.HumanScore,
		Explanation:   out.Explanation,
		BotLikelihood: out.BotLikelihood,
	}
	sess.LastSeen = round.Result.AnsweredAt

	e.events.RoundScored(round.Challenge.Variant,
		round.Challenge.TimeDilation > 0, out.HumanScore >= score.PassingScore)
	e.events.BotLikelihoodObserved(out.BotLikelihood)

	res := e.decideNext(sess, round)

	if err := e.store.Put(ctx, sess); err != nil {
		// Version conflicts propagate so the caller can retry the
		// whole cycle; everything else is wrapped.
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("persist session: %w", err)
	}
	e.events.TrapDepthObserved(sess.TrapDepth)

	return res, nil
}

// decideNext applies the state machine in strict priority order:
// deep trap beats acceptance beats the round limit beats continuation.
func (e *Engine) decideNext(sess *domain.Session, round *domain.Round) *SubmitResult {
	res := round.Result
	out := &SubmitResult{
		RoundResult: RoundResult{
			HumanScore:    res.HumanScore,
			Explanation:   res.Explanation,
			BotLikelihood: res.BotLikelihood,
		},
	}

	passed := res.HumanScore >= e.params.RequiredHumanScore &&
		res.BotLikelihood < e.params.TrapThreshold
	if passed {
		sess.ConsecutivePasses++
	} else {
		sess.ConsecutivePasses = 0
	}

	if res.BotLikelihood >= e.params.TrapThreshold {
		sess.TrapMode = true
		sess.TrapDepth++
	}

	switch {
	case sess.TrapDepth > e.params.DeepTrapThreshold:
		next := challenge.InfiniteRegress()
		nr := appendRound(sess, next)
		out.Action = ActionDeepTrap
		sanitized := next.Sanitized()
		out.NextChallenge = &sanitized
		out.NextRoundID = nr.RoundID

	case sess.ConsecutivePasses >= e.params.RequiredConsecutivePasses:
		sess.Accepted = true
		out.Accepted = true
		out.Action = ActionAccepted

	case len(sess.Rounds) >= e.params.MaxRounds:
		if sess.TrapMode {
			out.Action = ActionFallbackFailed
		} else {
			sess.Accepted = true
			out.Accepted = true
			out.Action = ActionAcceptedAfterLimit
		}

	default:
		next := e.catalog.Pick(sess, sess.TrapMode)
		nr := appendRound(sess, next)
		out.Action = ActionContinue
		sanitized := next.Sanitized()
		out.NextChallenge = &sanitized
		out.NextRoundID = nr.RoundID
	}

	out.TrapDepth = sess.TrapDepth
	out.ConsecutivePasses = sess.ConsecutivePasses
	return out
}

// appendRound issues a challenge as the session's next round. Round
// IDs derive deterministically from the token and round index.
func appendRound(sess *domain.Session, ch domain.Challenge) *domain.Round {
	id := domain.DeriveRoundID(sess.Token, len(sess.Rounds))
	sess.Rounds = append(sess.Rounds, domain.Round{
		RoundID:   id,
		IssuedAt:  time.Now(),
		Challenge: ch,
	})
	sess.LastSeen = time.Now()
	return &sess.Rounds[len(sess.Rounds)-1]
}

const tokenBytes = 32

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
