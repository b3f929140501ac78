package schema

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

// Term is a (field, text) pair. Its canonical identity is "field/text".
type Term struct {
	Field string
	Text  string
}

func (t Term) String() string {
	return t.Field + "/" + t.Text
}

// Validate rejects terms whose row would be unusable. Positional term rows
// and segment rows ("s<segment>/field/text") share the termVector key space,
// so a field named like a segment prefix is reserved.
func (t Term) Validate() error {
	if t.Field == "" {
		return fmt.Errorf("%w: term %q has no field", apperrors.ErrInvalidInput, t.String())
	}
	if ReservedField(t.Field) {
		return fmt.Errorf("%w: field %q is reserved for segment rows", apperrors.ErrInvalidInput, t.Field)
	}
	return nil
}

// ReservedField reports whether name has the form "s" followed by digits.
func ReservedField(name string) bool {
	if len(name) < 2 || name[0] != 's' {
		return false
	}
	for _, c := range name[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ParseTerm splits a "field/text" or "field:text" identity. The field is
// everything before the first separator.
func ParseTerm(s string) (Term, error) {
	i := strings.IndexAny(s, "/:")
	if i <= 0 || i == len(s)-1 {
		return Term{}, fmt.Errorf("term %q: want field/text", s)
	}
	return Term{Field: s[:i], Text: s[i+1:]}, nil
}
