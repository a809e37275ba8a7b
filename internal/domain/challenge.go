package domain

// Variant identifies a challenge type. The set is closed; builders and
// validators dispatch on it exhaustively.
type Variant string

const (
	VariantCreativeInput    Variant = "creative_input"
	VariantMetaLoop         Variant = "meta_loop"
	VariantRecursiveParadox Variant = "recursive_paradox"
	VariantQuantumState     Variant = "quantum_state"
	VariantTemporalParadox  Variant = "temporal_paradox"
	VariantInfiniteRegress  Variant = "infinite_regress"
)

// Variants lists every challenge variant in catalog order.
var Variants = []Variant{
	VariantMetaLoop,
	VariantRecursiveParadox,
	VariantQuantumState,
	VariantTemporalParadox,
	VariantInfiniteRegress,
	VariantCreativeInput,
}

// ChallengeContext holds hidden validation state bound to a challenge.
// It is stored with the session and must never reach the client.
type ChallengeContext struct {
	RefHash     string   `json:"ref_hash,omitempty"`
	PrevAnswers []string `json:"prev_answers,omitempty"`
	RoundNum    int      `json:"round_num"`
	State       string   `json:"state,omitempty"`
}

// Challenge is one task presented to the client.
type Challenge struct {
	Variant      Variant           `json:"type"`
	Text         string            `json:"text"`
	FreeInput    bool              `json:"input"`
	Options      []string          `json:"options,omitempty"`
	ValidatorKey Variant           `json:"validator_key,omitempty"`
	Context      *ChallengeContext `json:"context,omitempty"`
	TimeDilation float64           `json:"time_dilation,omitempty"`
}

// Sanitized returns a copy safe to send to the client: the validation
// context and validator key are stripped.
func (c Challenge) Sanitized() Challenge {
	c.Context = nil
	c.ValidatorKey = ""
	return c
}
