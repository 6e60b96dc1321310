// Package security validates untrusted input before it reaches the pipeline.
package security

import (
	"fmt"
	"strings"

	"github.com/logoforge-dev/logoforge/agent"
)

// StringValidator validates string input with various constraints.
type StringValidator struct {
	MaxLength            int
	MinLength            int
	DisallowNullBytes    bool
	DisallowControlChars bool
}

// Validate checks the string against all configured constraints.
func (v *StringValidator) Validate(str string) error {
	if v.MinLength > 0 && len(str) < v.MinLength {
		return fmt.Errorf("string too short: minimum %d characters", v.MinLength)
	}
	if v.MaxLength > 0 && len(str) > v.MaxLength {
		return fmt.Errorf("string exceeds max length %d", v.MaxLength)
	}
	if v.DisallowNullBytes && strings.Contains(str, "\x00") {
		return fmt.Errorf("string contains null bytes")
	}
	if v.DisallowControlChars {
		for _, r := range str {
			if r < 32 && r != '\n' && r != '\t' && r != '\r' {
				return fmt.Errorf("string contains control characters")
			}
		}
	}
	return nil
}

// Brief field limits. Briefs are forwarded into model prompts, so size and
// character constraints apply to every free-text field.
var (
	nameValidator = &StringValidator{
		MinLength:            1,
		MaxLength:            200,
		DisallowNullBytes:    true,
		DisallowControlChars: true,
	}
	textValidator = &StringValidator{
		MaxLength:            10000,
		DisallowNullBytes:    true,
		DisallowControlChars: true,
	}
)

// ValidateBrief checks every field of a brand brief.
func ValidateBrief(b agent.Brief) error {
	if err := nameValidator.Validate(b.BrandName); err != nil {
		return fmt.Errorf("brandName: %w", err)
	}
	if err := textValidator.Validate(b.Industry); err != nil {
		return fmt.Errorf("industry: %w", err)
	}
	if err := textValidator.Validate(b.Description); err != nil {
		return fmt.Errorf("description: %w", err)
	}
	for _, s := range b.Styles {
		if err := textValidator.Validate(s); err != nil {
			return fmt.Errorf("styles: %w", err)
		}
	}
	for _, c := range b.Colors {
		if err := textValidator.Validate(c); err != nil {
			return fmt.Errorf("colors: %w", err)
		}
	}
	return nil
}
