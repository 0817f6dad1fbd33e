package model

import "strings"

// Token is one occurrence of a term in a field.
type Token struct {
	// Text is the term text. Ignored when Raw is set.
	Text string
	// Raw is the text as UTF-16 code units, for callers that produce them
	// directly. Unpaired surrogates are replaced when indexed.
	Raw []uint16
	// PositionIncrement is the distance to the previous token. Zero stacks
	// the token on the previous position.
	PositionIncrement int
	// Payload is stored with the position, if not empty.
	Payload []byte
}

// Field is one instance of a named field of a document. A document may
// hold several instances of the same field; their tokens are indexed as one
// stream.
type Field struct {
	Name      string
	Tokens    []Token
	OmitNorms bool
	OmitTF    bool
	Boost     float32
}

// Document is the unit of indexing.
type Document struct {
	Fields []Field
	Boost  float32
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Boost: 1}
}

// AddText splits text on white space and adds the words as a field.
func (d *Document) AddText(name, text string) *Field {
	words := strings.Fields(text)
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{Text: w, PositionIncrement: 1}
	}
	return d.AddTokens(name, tokens...)
}

// AddTokens adds a field made of pre-analyzed tokens. The returned field
// is valid until the next field is added.
func (d *Document) AddTokens(name string, tokens ...Token) *Field {
	d.Fields = append(d.Fields, Field{Name: name, Tokens: tokens, Boost: 1})
	return &d.Fields[len(d.Fields)-1]
}

// FieldNames returns the distinct field names in order of first
// appearance.
func (d *Document) FieldNames() []string {
	var names []string
	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if _, ok := seen[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		names = append(names, f.Name)
	}
	return names
}
