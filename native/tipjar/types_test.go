package tipjar

import (
	"errors"
	"math/big"
	"strings"
	"testing"
)

func TestNormalizeJarID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  error
	}{
		{"coffee", "coffee", nil},
		{"  coffee  ", "coffee", nil},
		{"my-jar_01", "my-jar_01", nil},
		{"", "", ErrInvalidJarID},
		{"   ", "", ErrInvalidJarID},
		{"Has Space", "", ErrInvalidJarID},
		{"UPPER", "", ErrInvalidJarID},
		{"emoji☕", "", ErrInvalidJarID},
		{strings.Repeat("a", MaxJarIDLen), strings.Repeat("a", MaxJarIDLen), nil},
		{strings.Repeat("a", MaxJarIDLen+1), "", ErrInvalidJarID},
	}
	for _, tc := range cases {
		got, err := NormalizeJarID(tc.in)
		if !errors.Is(err, tc.err) {
			t.Fatalf("NormalizeJarID(%q): error %v, want %v", tc.in, err, tc.err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeJarID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseVisibility(t *testing.T) {
	cases := []struct {
		in   string
		want Visibility
		ok   bool
	}{
		{"public", VisibilityPublic, true},
		{"", VisibilityPublic, true},
		{"Private", VisibilityPrivate, true},
		{"anonymous", VisibilityPrivate, true},
		{"secret", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseVisibility(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseVisibility(%q): %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidVisibility) {
			t.Fatalf("ParseVisibility(%q): expected invalid visibility, got %v", tc.in, err)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("ParseVisibility(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestVisibilityString(t *testing.T) {
	if VisibilityPublic.String() != "public" || VisibilityPrivate.String() != "private" {
		t.Fatalf("unexpected visibility names")
	}
	if Visibility(9).Valid() {
		t.Fatalf("out-of-range visibility must be invalid")
	}
}

func TestJarCloneIsDeep(t *testing.T) {
	var owner, sender [20]byte
	owner[0] = 1
	sender[0] = 2
	jar := &TipJar{
		Owner:         owner,
		JarID:         "coffee",
		Goal:          big.NewInt(10),
		TotalReceived: big.NewInt(5),
		Balance:       big.NewInt(5),
		Active:        true,
		History: []Tip{
			{Sender: sender, Amount: big.NewInt(5), Timestamp: 1, Visibility: VisibilityPublic},
		},
	}
	clone := jar.Clone()
	clone.Goal.SetInt64(999)
	clone.History[0].Amount.SetInt64(999)
	clone.History[0].Memo = "mutated"

	if jar.Goal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("clone shares goal with original")
	}
	if jar.History[0].Amount.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("clone shares history amounts with original")
	}
	if jar.History[0].Memo != "" {
		t.Fatalf("clone shares history entries with original")
	}
}

func TestSanitizeJar(t *testing.T) {
	var owner [20]byte
	owner[0] = 1
	base := func() *TipJar {
		return &TipJar{
			Owner:         owner,
			JarID:         "coffee",
			TotalReceived: big.NewInt(0),
			Balance:       big.NewInt(0),
			Active:        true,
		}
	}

	if _, err := SanitizeJar(nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for nil jar, got %v", err)
	}

	jar := base()
	sanitized, err := SanitizeJar(jar)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Goal == nil || sanitized.Goal.Sign() != 0 {
		t.Fatalf("expected nil goal normalised to zero")
	}

	jar = base()
	jar.History = make([]Tip, MaxTipHistory+1)
	for i := range jar.History {
		jar.History[i] = Tip{Amount: big.NewInt(1), Visibility: VisibilityPublic}
	}
	if _, err := SanitizeJar(jar); !errors.Is(err, ErrInvalidHistory) {
		t.Fatalf("expected invalid history, got %v", err)
	}

	jar = base()
	jar.History = []Tip{{Amount: big.NewInt(0), Visibility: VisibilityPublic}}
	if _, err := SanitizeJar(jar); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for zero tip, got %v", err)
	}

	jar = base()
	jar.History = []Tip{{Amount: big.NewInt(1), Visibility: Visibility(7)}}
	if _, err := SanitizeJar(jar); !errors.Is(err, ErrInvalidVisibility) {
		t.Fatalf("expected invalid visibility, got %v", err)
	}

	jar = base()
	jar.JarID = "Bad ID"
	if _, err := SanitizeJar(jar); !errors.Is(err, ErrInvalidJarID) {
		t.Fatalf("expected invalid jar id, got %v", err)
	}
}
