// Package score maps each challenge variant to its validator and
// applies the cross-cutting timing and fatigue adjustments to the
// resulting bot-likelihood.
package score

import (
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/ashureev/paradox-gate/internal/domain"
)

const (
	// PassingScore is the human-score floor treated as a pass when
	// counting correct rounds and reporting outcomes.
	PassingScore = 3

	entanglementDepth = 3

	// Creative-input bounds.
	minAnswerRunes   = 3
	maxAnswerRunes   = 100
	minDistinctRunes = 3

	// Meta-loop similarity band for human-like partial recall.
	similarityLow  = 0.2
	similarityHigh = 0.8

	// Timing-dilation analysis.
	timingToleranceMS = 1000
	dilationPenalty   = 0.3

	// Depth fatigue: sustained fast, confident answers deep into a
	// session grow increasingly suspicious.
	fatigueRounds  = 5
	fastAnswerMS   = 1500
	fatiguePenalty = 0.2
)

// Outcome is a validator's verdict on one answer.
type Outcome struct {
	HumanScore    int
	Explanation   string
	BotLikelihood float64
}

// neutralOutcome substitutes for a failed validator. The distinct tag
// keeps the fail-open path observable.
var neutralOutcome = Outcome{HumanScore: 2, Explanation: "validator error", BotLikelihood: 0.5}

// Engine scores answers against their bound challenges.
type Engine struct{}

// NewEngine creates a scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score runs the challenge's validator and applies the timing-dilation
// and depth-fatigue adjustments. A validator failure yields the neutral
// fallback outcome; scoring itself never fails.
func (e *Engine) Score(sess *domain.Session, ch domain.Challenge, answer string, meta domain.Meta) Outcome {
	out := e.validate(sess, ch, answer, meta)

	if ch.TimeDilation > 0 {
		observed := float64(meta.TimeMS)
		expected := observed / ch.TimeDilation
		if math.Abs(observed-expected) > timingToleranceMS {
			out.BotLikelihood = math.Min(1.0, out.BotLikelihood+dilationPenalty)
		}
	}

	depth := len(sess.Rounds)
	if depth > fatigueRounds && out.HumanScore > PassingScore && meta.TimeMS < fastAnswerMS {
		out.BotLikelihood = math.Min(1.0, out.BotLikelihood+fatiguePenalty*float64(depth)/10)
	}

	return out
}

func (e *Engine) validate(sess *domain.Session, ch domain.Challenge, answer string, meta domain.Meta) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Validator panicked, substituting neutral score",
				"token", sess.Token, "variant", ch.Variant, "panic", r)
			out = neutralOutcome
		}
	}()

	switch ch.ValidatorKey {
	case domain.VariantCreativeInput:
		return validateCreativeInput(answer)
	case domain.VariantMetaLoop:
		return validateMetaLoop(ch.Context, answer)
	case domain.VariantRecursiveParadox:
		return validateRecursiveParadox(sess, ch.Context, answer)
	case domain.VariantQuantumState:
		return validateQuantumState(sess, answer)
	case domain.VariantTemporalParadox:
		return validateTemporalParadox(sess, answer)
	case domain.VariantInfiniteRegress:
		return Outcome{HumanScore: 2, Explanation: "infinite regress", BotLikelihood: 0.6}
	default:
		slog.Error("No validator bound for challenge", "token", sess.Token, "validator_key", ch.ValidatorKey)
		return neutralOutcome
	}
}

func validateCreativeInput(answer string) Outcome {
	runes := []rune(answer)
	if len(runes) < minAnswerRunes {
		return Outcome{HumanScore: 1, Explanation: "too short", BotLikelihood: 0.9}
	}
	if len(runes) > maxAnswerRunes {
		return Outcome{HumanScore: 1, Explanation: "suspiciously long", BotLikelihood: 0.8}
	}
	distinct := make(map[rune]bool, len(runes))
	for _, r := range runes {
		distinct[r] = true
	}
	if len(distinct) < minDistinctRunes {
		return Outcome{HumanScore: 1, Explanation: "low entropy", BotLikelihood: 0.9}
	}
	return Outcome{HumanScore: 4, Explanation: "creative response", BotLikelihood: 0.2}
}

// validateMetaLoop compares the answer to the referenced past answer
// by character-position overlap. Humans recall imperfectly: a partial
// match inside the band reads human, an exact or zero match does not.
func validateMetaLoop(ctx *domain.ChallengeContext, answer string) Outcome {
	if len(answer) == 0 {
		return Outcome{HumanScore: 1, Explanation: "invalid answer type", BotLikelihood: 0.8}
	}

	similarity := 0.0
	if ctx != nil && len(ctx.PrevAnswers) > 0 {
		back := entanglementDepth
		if back > len(ctx.PrevAnswers) {
			back = len(ctx.PrevAnswers)
		}
		target := []rune(ctx.PrevAnswers[len(ctx.PrevAnswers)-back])
		if len(target) > 0 {
			got := []rune(answer)
			matches := 0
			for i := 0; i < len(got) && i < len(target); i++ {
				if got[i] == target[i] {
					matches++
				}
			}
			similarity = float64(matches) / float64(len(target))
		}
	}

	if similarity > similarityLow && similarity < similarityHigh {
		return Outcome{HumanScore: 4, Explanation: "human-like recall", BotLikelihood: 0.2}
	}
	return Outcome{HumanScore: 1, Explanation: "exact or no match", BotLikelihood: 0.8}
}

// validateRecursiveParadox checks the self-referential statement
// against the session's actual count of passing rounds.
func validateRecursiveParadox(sess *domain.Session, ctx *domain.ChallengeContext, answer string) Outcome {
	roundNum := 0
	if ctx != nil {
		roundNum = ctx.RoundNum
	}
	correct := sess.PassingRounds(PassingScore)

	var valid bool
	switch answer {
	case strconv.Itoa(roundNum):
		valid = correct == roundNum
	case "True":
		valid = float64(correct) > float64(roundNum)/2
	case "False":
		valid = float64(correct) <= float64(roundNum)/2
	default:
		// "It's impossible" (and anything else) is always a valid
		// reading of a paradox.
		valid = true
	}

	if valid {
		return Outcome{HumanScore: 4, Explanation: "recursive validation", BotLikelihood: 0.3}
	}
	return Outcome{HumanScore: 1, Explanation: "recursive validation", BotLikelihood: 0.7}
}

// validateQuantumState is constant-scored; its side effect is the
// future-difficulty hint recorded on the session.
func validateQuantumState(sess *domain.Session, answer string) Outcome {
	state := sess.QuantumState
	if state == "" {
		state = "superposition"
	}
	switch answer {
	case "YES":
		sess.QuantumFuture = "easier"
	case "NO":
		sess.QuantumFuture = "harder"
	case "MAYBE":
		sess.QuantumFuture = "paradox"
	default:
		sess.QuantumFuture = "both"
	}
	return Outcome{HumanScore: 3, Explanation: "quantum " + state, BotLikelihood: 0.4}
}

// validateTemporalParadox finds the answered round closest to the
// fictitious "5 seconds ago" and treats an exact restatement as
// suspiciously perfect.
func validateTemporalParadox(sess *domain.Session, answer string) Outcome {
	imaginedPast := time.Since(sess.CreatedAt) - 5*time.Second

	var closest *domain.Result
	var closestDiff time.Duration
	for i := range sess.Rounds {
		res := sess.Rounds[i].Result
		if res == nil {
			continue
		}
		diff := res.AnsweredAt.Sub(sess.CreatedAt) - imaginedPast
		if diff < 0 {
			diff = -diff
		}
		if closest == nil || diff < closestDiff {
			closest = res
			closestDiff = diff
		}
	}

	if closest != nil && answer == closest.Answer {
		return Outcome{HumanScore: 2, Explanation: "time match", BotLikelihood: 0.5}
	}
	return Outcome{HumanScore: 3, Explanation: "human time variance", BotLikelihood: 0.3}
}
