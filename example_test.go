package termdex_test

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/termdex"
	"github.com/hupe1980/termdex/backup"
	"github.com/hupe1980/termdex/blobstore"
)

// Example demonstrates indexing, deleting and reading documents.
func Example() {
	ctx := context.Background()
	w, err := termdex.Open(ctx, blobstore.NewMemoryStore())
	if err != nil {
		log.Fatal(err)
	}
	defer w.Close(ctx)

	for _, text := range []string{"red apple", "green apple", "red cherry"} {
		doc := termdex.NewDocument()
		doc.AddText("body", text)
		if err := w.AddDocument(ctx, doc); err != nil {
			log.Fatal(err)
		}
	}
	if err := w.DeleteDocuments(ctx, termdex.NewTerm("body", "green")); err != nil {
		log.Fatal(err)
	}
	if err := w.Commit(ctx); err != nil {
		log.Fatal(err)
	}

	r, err := w.OpenReader(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	td, err := r.TermDocs(termdex.NewTerm("body", "apple"))
	if err != nil {
		log.Fatal(err)
	}
	defer td.Close()
	for td.Next() {
		fmt.Printf("doc %d freq %d\n", td.Doc(), td.Freq())
	}
	fmt.Printf("%d of %d documents live\n", r.NumDocs(), r.MaxDoc())
	// Output:
	// doc 0 freq 1
	// 2 of 3 documents live
}

// Example_deleteByQuery removes documents holding all given terms.
func Example_deleteByQuery() {
	ctx := context.Background()
	w, err := termdex.Open(ctx, blobstore.NewMemoryStore())
	if err != nil {
		log.Fatal(err)
	}
	defer w.Close(ctx)

	for _, text := range []string{"red apple", "green apple", "red cherry"} {
		doc := termdex.NewDocument()
		doc.AddText("body", text)
		if err := w.AddDocument(ctx, doc); err != nil {
			log.Fatal(err)
		}
	}
	q := termdex.MatchAllTerms(termdex.NewTerm("body", "red"), termdex.NewTerm("body", "apple"))
	if err := w.DeleteByQuery(ctx, q); err != nil {
		log.Fatal(err)
	}
	if err := w.Commit(ctx); err != nil {
		log.Fatal(err)
	}

	r, err := w.OpenReader(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()
	fmt.Println(q.Key(), r.NumDocs())
	// Output: all(body:apple,body:red) 2
}

// Example_backup snapshots the last commit into a zstd archive and
// restores it into another store.
func Example_backup() {
	ctx := context.Background()
	w, err := termdex.Open(ctx, blobstore.NewMemoryStore())
	if err != nil {
		log.Fatal(err)
	}
	defer w.Close(ctx)

	doc := termdex.NewDocument()
	doc.AddText("body", "hello world")
	if err := w.AddDocument(ctx, doc); err != nil {
		log.Fatal(err)
	}
	if err := w.Commit(ctx); err != nil {
		log.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := w.Backup(ctx, &buf, backup.CompressionZSTD); err != nil {
		log.Fatal(err)
	}
	restored := blobstore.NewMemoryStore()
	if _, err := termdex.Restore(ctx, &buf, restored); err != nil {
		log.Fatal(err)
	}
	w2, err := termdex.Open(ctx, restored)
	if err != nil {
		log.Fatal(err)
	}
	defer w2.Close(ctx)
	fmt.Println(w2.MaxDoc(), w2.NumSegments())
	// Output: 1 1
}
