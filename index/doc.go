// Package index reads committed segments and presents them as one index.
//
// A SegmentReader opens one segment: its term dictionary, postings,
// deletions and norms. A DirectoryReader combines the segments of a commit;
// document numbers are global and segment i holds the range
// [Starts()[i], Starts()[i+1]).
//
// # Reopen
//
// Reopen returns a new reader over the latest commit that shares every
// unchanged SegmentReader with the old one. Segments whose deletions or
// norms changed get a new SegmentReader over the same open files. Both
// readers must be closed; sub-readers are reference counted.
//
// # Changes
//
// Delete, DeleteTerm, UndeleteAll and SetNorm change the reader only. A
// sub-reader shared with another reader is copied before the first change,
// so other readers never observe it. Commit writes the changes under new
// file generations and publishes a new commit:
//
//	r, _ := index.Open(ctx, dir)
//	defer r.Close()
//	_, _ = r.DeleteTerm(model.NewTerm("id", "42"))
//	_ = r.Commit(ctx)
//
// # Norms
//
// Norms(field) returns one byte per document. Arrays are published as
// immutable snapshots and are shared by concurrent callers; fields without
// norms share a single array of the default norm.
//
// # Merging
//
// MergeSegments writes the live documents of several segments as a new
// one and reports how old document numbers map to new ones.
package index
