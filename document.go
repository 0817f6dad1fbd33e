package termdex

import "github.com/hupe1980/termdex/model"

// Document is the unit of indexing. See model.Document.
type Document = model.Document

// Field is one instance of a named document field.
type Field = model.Field

// Token is one occurrence of a term in a field.
type Token = model.Token

// Term is a field/text pair.
type Term = model.Term

// NewDocument returns an empty document with boost 1.
func NewDocument() *Document { return model.NewDocument() }

// NewTerm returns the term text in field.
func NewTerm(field, text string) Term { return model.NewTerm(field, text) }
