package challenge

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/ashureev/paradox-gate/internal/domain"
)

func seeded(seed int64) *Catalog {
	return NewCatalogWithRand(rand.New(rand.NewSource(seed)))
}

func knownVariant(v domain.Variant) bool {
	for _, known := range domain.Variants {
		if v == known {
			return true
		}
	}
	return false
}

func TestPickNormalModeStaysInCatalog(t *testing.T) {
	c := seeded(1)
	s := &domain.Session{Token: "tok"}

	for i := 0; i < 200; i++ {
		ch := c.Pick(s, false)
		if !knownVariant(ch.Variant) {
			t.Fatalf("Pick returned unknown variant %q", ch.Variant)
		}
		if ch.TimeDilation != 0 {
			t.Fatal("Normal-mode challenge must not carry time dilation")
		}
	}
}

func TestPickTrapModeWeightedSubset(t *testing.T) {
	c := seeded(42)
	s := &domain.Session{Token: "tok"}

	for i := 0; i < 200; i++ {
		ch := c.Pick(s, true)
		if !knownVariant(ch.Variant) {
			t.Fatalf("Trap pick returned unknown variant %q", ch.Variant)
		}
		if ch.TimeDilation != timeDilationFactor {
			t.Fatalf("Expected trap dilation %v, got %v", timeDilationFactor, ch.TimeDilation)
		}
	}
}

func TestMetaLoopFallsBackWithoutHistory(t *testing.T) {
	c := seeded(7)
	s := &domain.Session{Token: "tok"}

	// With no answered rounds, meta-loop must degrade to
	// creative-input every time it is drawn.
	for i := 0; i < 200; i++ {
		ch := c.Pick(s, false)
		if ch.Variant == domain.VariantMetaLoop {
			t.Fatal("meta-loop issued without any answer history")
		}
	}
}

func TestMetaLoopReferencesRecentAnswer(t *testing.T) {
	c := seeded(3)
	s := &domain.Session{
		Token: "tok",
		Rounds: []domain.Round{
			{Result: &domain.Result{Answer: "first answer"}},
			{Result: &domain.Result{Answer: "second answer"}},
		},
	}

	var ch domain.Challenge
	for i := 0; i < 500; i++ {
		ch = c.Pick(s, false)
		if ch.Variant == domain.VariantMetaLoop {
			break
		}
	}
	if ch.Variant != domain.VariantMetaLoop {
		t.Fatal("meta-loop never drawn in 500 picks")
	}
	if ch.Context == nil || len(ch.Context.PrevAnswers) != 2 {
		t.Fatalf("Expected previous answers in context, got %+v", ch.Context)
	}
	if len(ch.Context.RefHash) != 16 {
		t.Errorf("Expected 16-char reference fingerprint, got %q", ch.Context.RefHash)
	}
	if !strings.Contains(ch.Text, ch.Context.RefHash[:4]) {
		t.Errorf("Expected prompt to contain fingerprint prefix, got %q", ch.Text)
	}
}

func TestQuantumStateRecordsSessionState(t *testing.T) {
	c := seeded(11)
	s := &domain.Session{Token: "tok"}

	var ch domain.Challenge
	for i := 0; i < 500; i++ {
		ch = c.Pick(s, false)
		if ch.Variant == domain.VariantQuantumState {
			break
		}
	}
	if ch.Variant != domain.VariantQuantumState {
		t.Fatal("quantum-state never drawn in 500 picks")
	}
	if s.QuantumState == "" {
		t.Error("Expected quantum state recorded on session")
	}
	if ch.Context == nil || ch.Context.State != s.QuantumState {
		t.Errorf("Expected context state %q, got %+v", s.QuantumState, ch.Context)
	}
	if len(ch.Options) != 4 {
		t.Errorf("Expected 4 options, got %v", ch.Options)
	}
}

func TestRecursiveParadoxEmbedsRoundCount(t *testing.T) {
	c := seeded(13)
	s := &domain.Session{Token: "tok", Rounds: make([]domain.Round, 4)}

	var ch domain.Challenge
	for i := 0; i < 500; i++ {
		ch = c.Pick(s, false)
		if ch.Variant == domain.VariantRecursiveParadox {
			break
		}
	}
	if ch.Variant != domain.VariantRecursiveParadox {
		t.Fatal("recursive-paradox never drawn in 500 picks")
	}
	if ch.Context == nil || ch.Context.RoundNum != 4 {
		t.Errorf("Expected round number 4 in context, got %+v", ch.Context)
	}
	if !strings.Contains(ch.Text, "4") {
		t.Errorf("Expected prompt to mention the round count, got %q", ch.Text)
	}
}

func TestInfiniteRegressIsTerminal(t *testing.T) {
	ch := InfiniteRegress()
	if ch.Variant != domain.VariantInfiniteRegress {
		t.Errorf("Expected infinite-regress variant, got %q", ch.Variant)
	}
	if len(ch.Options) != 1 || ch.Options[0] != "Continue" {
		t.Errorf("Expected single Continue option, got %v", ch.Options)
	}
	if ch.FreeInput {
		t.Error("Terminal challenge must not accept free input")
	}
}
