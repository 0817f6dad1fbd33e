// Package termdex is an embedded inverted index for Go.
//
// Documents are made of fields holding analyzed tokens. A Writer buffers
// added documents in memory, per concurrent caller, and flushes them as
// immutable segments: a term dictionary (.tis/.tii), document and
// frequency postings with multi-level skip lists (.frq), positions and
// payloads (.prx), field infos (.fnm) and norms (.nrm), optionally packed
// into one compound file (.cfs). Readers see the segments of a commit.
//
// # Quick Start
//
//	ctx := context.Background()
//	w, _ := termdex.OpenPath(ctx, "./index")
//
//	doc := termdex.NewDocument()
//	doc.AddText("body", "the quick brown fox")
//	_ = w.AddDocument(ctx, doc)
//	_ = w.Commit(ctx)
//
//	r, _ := w.OpenReader(ctx)
//	defer r.Close()
//	td, _ := r.TermDocs(termdex.NewTerm("body", "fox"))
//	for td.Next() {
//	    fmt.Println(td.Doc(), td.Freq())
//	}
//
// # Deletes
//
// DeleteDocuments and DeleteByQuery only affect documents added before the
// call. Deletes are buffered and applied when the writer commits, or
// earlier once they take half of the RAM buffer. UpdateDocument deletes by
// term and adds the replacement in one step.
//
// # Storage
//
// Indexes live in a blobstore.BlobStore: a local directory, memory, S3
// (optionally with DynamoDB holding the commit pointer) or MinIO. Remote
// stores are usually wrapped in a blobstore.CachingStore.
//
// # Backups
//
// Writer.Backup streams the files of the last commit into a zstd or LZ4
// compressed archive; Restore copies such an archive into an empty store:
//
//	var buf bytes.Buffer
//	_, _ = w.Backup(ctx, &buf, backup.CompressionZSTD)
//	_, _ = termdex.Restore(ctx, &buf, blobstore.NewMemoryStore())
//
// # Configuration
//
// Writers are configured with functional options, or from a YAML file:
//
//	cfg, _ := termdex.LoadConfig("termdex.yaml")
//	w, _ := termdex.OpenPath(ctx, "./index", cfg.Options()...)
package termdex
