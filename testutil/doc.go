// Package testutil provides testing utilities for termdex.
//
// This package is intended for use in tests and benchmarks only.
// It generates skewed random corpora and computes the exact postings of a
// corpus to compare readers against.
//
// # Random Corpus Generation
//
//	rng := testutil.NewRNG(seed)
//	corpus := rng.Corpus(500, testutil.Vocabulary(200), 1, 30, 1.2)
//	doc := model.NewDocument()
//	doc.AddText("body", corpus.Text(0))
//
// # Exact Postings (Ground Truth)
//
//	want := corpus.Postings(func(doc int) bool { return !deleted[doc] })
//	got := ... // read the same term from an index reader
package testutil
