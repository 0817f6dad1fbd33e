// Package model defines the types shared by the writer and the readers.
//
// A Term is the unit of indexing: a field name and a text. Terms are
// ordered by field name, then by text in Unicode code point order, which
// for Go strings is plain byte order.
package model
