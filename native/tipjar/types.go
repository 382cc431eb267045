package tipjar

import (
	"math/big"
	"strings"
)

// Metadata and history bounds for a jar record. History is a hard cap: once
// full, accepting a tip evicts the oldest entry (FIFO) so the record never
// grows past MaxTipHistory entries.
const (
	MaxJarIDLen       = 64
	MaxDescriptionLen = 200
	MaxCategoryLen    = 100
	MaxMemoLen        = 100
	MaxTipHistory     = 100
)

// Visibility controls how a tip is surfaced in history listings. It is
// advisory metadata only and never affects accounting.
type Visibility uint8

const (
	VisibilityPublic Visibility = iota
	VisibilityPrivate
)

// Valid reports whether the visibility value is within the supported range.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate:
		return true
	default:
		return false
	}
}

func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityPrivate:
		return "private"
	default:
		return "unknown"
	}
}

// ParseVisibility resolves the canonical lowercase names used on the wire.
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "public":
		return VisibilityPublic, nil
	case "private", "anonymous":
		return VisibilityPrivate, nil
	default:
		return 0, ErrInvalidVisibility
	}
}

// Tip is a single recorded transfer into a jar. Records are immutable once
// stored and leave the history only through eviction, ClearHistory or Close.
type Tip struct {
	Sender     [20]byte
	Amount     *big.Int
	Timestamp  int64
	Visibility Visibility
	Memo       string
}

// Clone returns a deep copy of the tip record.
func (t Tip) Clone() Tip {
	out := t
	if t.Amount != nil {
		out.Amount = new(big.Int).Set(t.Amount)
	} else {
		out.Amount = big.NewInt(0)
	}
	return out
}

// TipJar is the full state tracked for one (owner, jar-id) account.
//
// TotalReceived and TipCount are lifetime aggregates: they count every tip
// ever accepted and are never reduced, not even when the visible history is
// cleared. Balance tracks the value currently withdrawable from the jar.
type TipJar struct {
	Owner         [20]byte
	JarID         string
	Description   string
	Category      string
	Goal          *big.Int
	TotalReceived *big.Int
	TipCount      uint64
	Balance       *big.Int
	Active        bool
	Private       bool
	CreatedAt     int64
	History       []Tip
}

// Clone returns a deep copy of the jar so callers can safely mutate the copy
// without affecting the stored instance.
func (j *TipJar) Clone() *TipJar {
	if j == nil {
		return nil
	}
	clone := *j
	clone.Goal = cloneAmount(j.Goal)
	clone.TotalReceived = cloneAmount(j.TotalReceived)
	clone.Balance = cloneAmount(j.Balance)
	if j.History != nil {
		clone.History = make([]Tip, len(j.History))
		for i := range j.History {
			clone.History[i] = j.History[i].Clone()
		}
	}
	return &clone
}

// Stats is the read-only aggregate view returned by the stats query.
type Stats struct {
	TipCount      uint64
	TotalReceived *big.Int
	Balance       *big.Int
	Goal          *big.Int
	Active        bool
	Private       bool
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// NormalizeJarID trims and validates a caller-supplied jar identifier.
func NormalizeJarID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || len(trimmed) > MaxJarIDLen {
		return "", ErrInvalidJarID
	}
	for _, r := range trimmed {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return "", ErrInvalidJarID
	}
	return trimmed, nil
}

// ValidateMetadata checks the mutable metadata triple against the record
// bounds. Goal may be nil, which is treated as zero (no fundraising target).
func ValidateMetadata(description, category string, goal *big.Int) error {
	if len(description) > MaxDescriptionLen {
		return ErrInvalidMetadata
	}
	if len(category) > MaxCategoryLen {
		return ErrInvalidMetadata
	}
	if goal != nil && goal.Sign() < 0 {
		return ErrInvalidMetadata
	}
	return nil
}

// SanitizeJar validates a jar loaded from storage and returns a cloned
// instance with non-nil amount fields. The original value is not mutated.
func SanitizeJar(j *TipJar) (*TipJar, error) {
	if j == nil {
		return nil, ErrNotFound
	}
	clone := j.Clone()
	if _, err := NormalizeJarID(clone.JarID); err != nil {
		return nil, err
	}
	if err := ValidateMetadata(clone.Description, clone.Category, clone.Goal); err != nil {
		return nil, err
	}
	if clone.TotalReceived.Sign() < 0 || clone.Balance.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if len(clone.History) > MaxTipHistory {
		return nil, ErrInvalidHistory
	}
	for i := range clone.History {
		if !clone.History[i].Visibility.Valid() {
			return nil, ErrInvalidVisibility
		}
		if clone.History[i].Amount.Sign() <= 0 {
			return nil, ErrInvalidAmount
		}
	}
	return clone, nil
}
