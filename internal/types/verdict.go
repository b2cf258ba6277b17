package types

import (
	"fmt"
	"strings"
)

// =============================================================================
// PERSONA
// =============================================================================

// Persona selects the judging tone. It only shapes prompts and messages;
// the verdict contract is identical for every persona.
type Persona string

const (
	PersonaSerious Persona = "serious"
	PersonaCheery  Persona = "cheery"
)

// DefaultPersona is used when a request names none.
const DefaultPersona = PersonaSerious

// ParsePersona maps free-form input onto the closed persona set.
// Unknown or empty values fall back to DefaultPersona.
func ParsePersona(s string) Persona {
	switch Persona(strings.ToLower(strings.TrimSpace(s))) {
	case PersonaCheery:
		return PersonaCheery
	case PersonaSerious:
		return PersonaSerious
	default:
		return DefaultPersona
	}
}

// =============================================================================
// VERDICT
// =============================================================================

// Verdict is the judge's answer to "does challenger beat incumbent".
type Verdict struct {
	Beats       bool   `json:"valid"`
	Explanation string `json:"explanation"`
}

// VerdictKey identifies a cached verdict. Order matters: the challenger is
// judged against the incumbent, never the reverse.
type VerdictKey struct {
	Challenger string
	Incumbent  string
	Persona    Persona
}

// NewVerdictKey builds a normalized key.
func NewVerdictKey(challenger, incumbent string, persona Persona) VerdictKey {
	return VerdictKey{
		Challenger: NormalizeWord(challenger),
		Incumbent:  NormalizeWord(incumbent),
		Persona:    ParsePersona(string(persona)),
	}
}

// String renders the key in the "verdict:<challenger>:<incumbent>:<persona>" form.
func (k VerdictKey) String() string {
	return fmt.Sprintf("verdict:%s:%s:%s", k.Challenger, k.Incumbent, k.Persona)
}

// NormalizeWord trims surrounding whitespace and case-folds.
func NormalizeWord(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
