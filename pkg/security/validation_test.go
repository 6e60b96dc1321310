package security

import (
	"strings"
	"testing"

	"github.com/logoforge-dev/logoforge/agent"
)

func TestStringValidator(t *testing.T) {
	v := &StringValidator{
		MinLength:            1,
		MaxLength:            10,
		DisallowNullBytes:    true,
		DisallowControlChars: true,
	}

	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "Acme", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 11), true},
		{"null byte", "Ac\x00me", true},
		{"control char", "Ac\x07me", true},
		{"newline allowed", "a\nb", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.input)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestValidateBrief(t *testing.T) {
	ok := agent.Brief{BrandName: "Acme", Industry: "tools", Description: "solid stuff"}
	if err := ValidateBrief(ok); err != nil {
		t.Fatalf("valid brief rejected: %v", err)
	}

	bad := ok
	bad.BrandName = ""
	if err := ValidateBrief(bad); err == nil {
		t.Error("empty brand name accepted")
	}

	bad = ok
	bad.Description = strings.Repeat("x", 20000)
	if err := ValidateBrief(bad); err == nil {
		t.Error("oversized description accepted")
	}

	bad = ok
	bad.Styles = []string{"fine", "bad\x00style"}
	if err := ValidateBrief(bad); err == nil {
		t.Error("null byte in styles accepted")
	}
}
