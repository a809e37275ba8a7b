// Package challenge builds the six challenge variants and selects
// among them, with trap-weighted selection once a session is under
// suspicion. Issuance never fails: any builder that cannot run falls
// back to the creative-input variant.
package challenge

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"

	"github.com/ashureev/paradox-gate/internal/domain"
)

const (
	// entanglementDepth bounds how far back the meta-loop challenge
	// reaches into the client's answer history.
	entanglementDepth = 3
	// timeDilationFactor is attached to trap-mode challenges and fed
	// into timing analysis by the scorer.
	timeDilationFactor = 1.5
	// trapSubsetSize is how many weighted draws form the trap-mode
	// candidate subset.
	trapSubsetSize = 5
)

// trapWeights biases trap-mode selection toward higher-signal variants,
// indexed in domain.Variants order.
var trapWeights = []int{1, 1, 3, 3, 2, 3}

// Catalog selects and constructs challenges. The RNG is shared across
// sessions, so access is serialized.
type Catalog struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewCatalog creates a catalog seeded from a cryptographically secure
// source.
func NewCatalog() *Catalog {
	var seed [8]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("seed challenge catalog: %v", err))
	}
	return NewCatalogWithRand(rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:])))))
}

// NewCatalogWithRand creates a catalog with an explicit RNG, for
// deterministic selection in tests.
func NewCatalogWithRand(rng *rand.Rand) *Catalog {
	return &Catalog{rng: rng}
}

// Pick selects the next challenge for the session. In trap mode the
// variant comes from a weighted subset and the challenge carries a
// time-dilation factor.
func (c *Catalog) Pick(s *domain.Session, trap bool) domain.Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()

	variants := domain.Variants
	if trap {
		variants = c.trapSubsetLocked()
	}
	ch := c.buildLocked(variants[c.rng.Intn(len(variants))], s)
	if trap {
		ch.TimeDilation = timeDilationFactor
	}
	return ch
}

// trapSubsetLocked draws trapSubsetSize variants with replacement,
// proportionally to trapWeights.
func (c *Catalog) trapSubsetLocked() []domain.Variant {
	total := 0
	for _, w := range trapWeights {
		total += w
	}
	subset := make([]domain.Variant, 0, trapSubsetSize)
	for i := 0; i < trapSubsetSize; i++ {
		n := c.rng.Intn(total)
		for j, w := range trapWeights {
			n -= w
			if n < 0 {
				subset = append(subset, domain.Variants[j])
				break
			}
		}
	}
	return subset
}

func (c *Catalog) buildLocked(v domain.Variant, s *domain.Session) domain.Challenge {
	switch v {
	case domain.VariantCreativeInput:
		return CreativeInput()
	case domain.VariantMetaLoop:
		return c.metaLoopLocked(s)
	case domain.VariantRecursiveParadox:
		return recursiveParadox(s)
	case domain.VariantQuantumState:
		return c.quantumStateLocked(s)
	case domain.VariantTemporalParadox:
		return temporalParadox()
	case domain.VariantInfiniteRegress:
		return InfiniteRegress()
	default:
		return CreativeInput()
	}
}

// CreativeInput is the default low-friction challenge and the fallback
// for every construction failure.
func CreativeInput() domain.Challenge {
	return domain.Challenge{
		Variant:      domain.VariantCreativeInput,
		Text:         "Name something that doesn't exist but should",
		FreeInput:    true,
		ValidatorKey: domain.VariantCreativeInput,
	}
}

// metaLoopLocked references a fingerprint of one of the client's
// recent answers. With no history it degrades to creative-input.
func (c *Catalog) metaLoopLocked(s *domain.Session) domain.Challenge {
	prev := s.ResolvedAnswers()
	if len(prev) == 0 {
		return CreativeInput()
	}
	recent := prev
	if len(recent) > entanglementDepth {
		recent = recent[len(recent)-entanglementDepth:]
	}
	refHash := answerFingerprint(recent[c.rng.Intn(len(recent))])
	return domain.Challenge{
		Variant: domain.VariantMetaLoop,
		Text: fmt.Sprintf("The answer to this is related to your previous answer '%s...'. What did you enter %d steps ago?",
			refHash[:4], entanglementDepth),
		FreeInput:    true,
		ValidatorKey: domain.VariantMetaLoop,
		Context:      &domain.ChallengeContext{RefHash: refHash, PrevAnswers: prev},
	}
}

func recursiveParadox(s *domain.Session) domain.Challenge {
	n := len(s.Rounds)
	return domain.Challenge{
		Variant:      domain.VariantRecursiveParadox,
		Text:         fmt.Sprintf("This statement has exactly %d correct answers in this session.", n),
		Options:      []string{"True", "False", fmt.Sprintf("%d", n), "It's impossible"},
		ValidatorKey: domain.VariantRecursiveParadox,
		Context:      &domain.ChallengeContext{RoundNum: n},
	}
}

var quantumStates = []string{"superposition", "collapsed", "entangled"}

// quantumStateLocked records a random internal state on the session;
// the validator later derives a future-difficulty hint from the answer.
func (c *Catalog) quantumStateLocked(s *domain.Session) domain.Challenge {
	s.QuantumState = quantumStates[c.rng.Intn(len(quantumStates))]
	return domain.Challenge{
		Variant:      domain.VariantQuantumState,
		Text:         "If you choose YES, you'll get an easier challenge next. What do you choose?",
		Options:      []string{"YES", "NO", "MAYBE", "SCHRÖDINGER"},
		ValidatorKey: domain.VariantQuantumState,
		Context:      &domain.ChallengeContext{State: s.QuantumState},
	}
}

func temporalParadox() domain.Challenge {
	return domain.Challenge{
		Variant:      domain.VariantTemporalParadox,
		Text:         "You solved this 5 seconds ago. What was your answer?",
		FreeInput:    true,
		ValidatorKey: domain.VariantTemporalParadox,
	}
}

// InfiniteRegress is the terminal deep-trap challenge: a single option
// and no real exit condition.
func InfiniteRegress() domain.Challenge {
	return domain.Challenge{
		Variant:      domain.VariantInfiniteRegress,
		Text:         "The correct answer is the first option of the next challenge",
		Options:      []string{"Continue"},
		ValidatorKey: domain.VariantInfiniteRegress,
	}
}

// answerFingerprint returns the short hex fingerprint of an answer used
// in meta-loop prompts.
func answerFingerprint(answer string) string {
	sum := sha256.Sum256([]byte(answer))
	return hex.EncodeToString(sum[:8])
}
