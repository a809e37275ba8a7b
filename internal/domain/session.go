// Package domain defines the session, round and challenge records for
// the paradox challenge protocol.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SchemaVersion is the current serialized session document version.
// The store rejects documents carrying any other version.
const SchemaVersion = 1

// Meta carries client-reported measurements for an answer.
type Meta struct {
	TimeMS int64 `json:"time_ms"`
}

// Result records the outcome of one answered round. It is write-once.
type Result struct {
	AnsweredAt    time.Time `json:"answered_at"`
	Answer        string    `json:"answer"`
	Meta          Meta      `json:"meta"`
	HumanScore    int       `json:"human_score"`
	Explanation   string    `json:"explanation"`
	BotLikelihood float64   `json:"bot_likelihood"`
}

// Round is one issued challenge and its (possibly absent) result.
type Round struct {
	RoundID   string    `json:"round_id"`
	IssuedAt  time.Time `json:"issued_at"`
	Challenge Challenge `json:"challenge"`
	Result    *Result   `json:"result,omitempty"`
}

// Session is the stateful record of one client's challenge sequence.
// Version is an optimistic concurrency counter checked by the store on
// every write; a stale writer gets a conflict and must re-read.
type Session struct {
	SchemaVersion     int       `json:"schema_version"`
	Token             string    `json:"token"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	Expiry            time.Time `json:"expiry"`
	Rounds            []Round   `json:"rounds"`
	ConsecutivePasses int       `json:"consecutive_passes"`
	TrapMode          bool      `json:"trap_mode"`
	TrapDepth         int       `json:"trap_depth"`
	Accepted          bool      `json:"accepted"`
	LastSeen          time.Time `json:"last_seen"`

	// Scratch fields written by the quantum-state challenge. The
	// future hint is recorded but never read back by decision logic.
	QuantumState  string `json:"quantum_state,omitempty"`
	QuantumFuture string `json:"quantum_future,omitempty"`
}

// FindRound returns the round with the given ID, or nil.
func (s *Session) FindRound(roundID string) *Round {
	for i := range s.Rounds {
		if s.Rounds[i].RoundID == roundID {
			return &s.Rounds[i]
		}
	}
	return nil
}

// ResolvedAnswers returns the answers of all answered rounds in
// issuance order.
func (s *Session) ResolvedAnswers() []string {
	var answers []string
	for i := range s.Rounds {
		if s.Rounds[i].Result != nil {
			answers = append(answers, s.Rounds[i].Result.Answer)
		}
	}
	return answers
}

// PassingRounds counts answered rounds whose human score is at least
// minScore.
func (s *Session) PassingRounds(minScore int) int {
	n := 0
	for i := range s.Rounds {
		if r := s.Rounds[i].Result; r != nil && r.HumanScore >= minScore {
			n++
		}
	}
	return n
}

const roundIDHashDepth = 3

// DeriveRoundID derives the identifier for the round at the given
// index. The derivation is deterministic in (token, index): the seed
// is hashed repeatedly, keeping the first 16 hex characters each pass.
func DeriveRoundID(token string, index int) string {
	seed := token + strconv.Itoa(index)
	for i := 0; i < roundIDHashDepth; i++ {
		sum := sha256.Sum256([]byte(seed))
		seed = hex.EncodeToString(sum[:])[:16]
	}
	return seed
}
