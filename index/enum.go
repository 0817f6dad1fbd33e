package index

import "github.com/hupe1980/termdex/model"

// TermEnum iterates terms in order. Call Next before reading the first
// term.
type TermEnum interface {
	Next() bool
	Term() model.Term
	// DocFreq returns the number of documents containing the term,
	// deleted ones included.
	DocFreq() int
	Err() error
	Close() error
}

// TermDocs iterates the live documents of a term in increasing order.
type TermDocs interface {
	Next() bool
	Doc() int
	// Freq returns the number of occurrences in the current document.
	Freq() int
	// SkipTo moves to the first document at or after target. It never
	// moves backwards.
	SkipTo(target int) bool
	Err() error
	Close() error
}

// TermPositions additionally iterates the positions of the term within
// the current document.
type TermPositions interface {
	TermDocs
	// NextPosition returns the next position; call it at most Freq times
	// per document. Fields without positions report 0.
	NextPosition() int
	// PayloadLength returns the payload length at the current position.
	PayloadLength() int
	// IsPayloadAvailable reports whether the payload at the current
	// position can still be read.
	IsPayloadAvailable() bool
	// Payload appends the payload at the current position to dst.
	Payload(dst []byte) ([]byte, error)
}
