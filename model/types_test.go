package model

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerm_Compare(t *testing.T) {
	terms := []Term{
		NewTerm("title", "a"),
		NewTerm("body", "zebra"),
		NewTerm("body", "\U0001F600"),
		NewTerm("body", "�"),
		NewTerm("body", "apple"),
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Less(terms[j]) })

	assert.Equal(t, []Term{
		{Field: "body", Text: "apple"},
		{Field: "body", Text: "zebra"},
		{Field: "body", Text: "�"},
		{Field: "body", Text: "\U0001F600"},
		{Field: "title", Text: "a"},
	}, terms)

	assert.Equal(t, 0, NewTerm("f", "x").Compare(NewTerm("f", "x")))
	assert.True(t, Term{}.IsZero())
	assert.Equal(t, "body:cat", NewTerm("body", "cat").String())
	assert.Equal(t, []byte("body\x00cat"), NewTerm("body", "cat").Key())
}
