package model

import (
	"strings"
)

// Term is a field/text pair.
type Term struct {
	Field string
	Text  string
}

// NewTerm returns the term text in field.
func NewTerm(field, text string) Term {
	return Term{Field: field, Text: text}
}

// Compare orders terms by field, then text.
func (t Term) Compare(o Term) int {
	if c := strings.Compare(t.Field, o.Field); c != 0 {
		return c
	}
	return strings.Compare(t.Text, o.Text)
}

// Less reports whether t sorts before o.
func (t Term) Less(o Term) bool { return t.Compare(o) < 0 }

// IsZero reports whether t is the empty term.
func (t Term) IsZero() bool { return t.Field == "" && t.Text == "" }

// Key returns the field and text joined by a zero byte, used for hashing.
func (t Term) Key() []byte {
	b := make([]byte, 0, len(t.Field)+1+len(t.Text))
	b = append(b, t.Field...)
	b = append(b, 0)
	return append(b, t.Text...)
}

// String returns field:text.
func (t Term) String() string {
	return t.Field + ":" + t.Text
}
