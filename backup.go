package termdex

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/termdex/backup"
	"github.com/hupe1980/termdex/blobstore"
	"github.com/hupe1980/termdex/internal/manifest"
)

// Backup writes the files of the last commit to dst as a compressed
// archive. Commits and flushes wait until the archive is written.
func (w *Writer) Backup(ctx context.Context, dst io.Writer, c backup.Compression) (backup.Stats, error) {
	if w.closed.Load() {
		return backup.Stats{}, ErrClosed
	}
	w.flushMu.RLock()
	defer w.flushMu.RUnlock()

	infos, err := w.commits.Load(ctx)
	if err != nil {
		return backup.Stats{}, translateError(err)
	}
	files := append(infos.Files(true), manifest.CurrentFileName)
	st, err := backup.Write(ctx, dst, w.dir.Store(), files, c)
	w.logger.LogBackup(ctx, infos.Generation, st.Files, st.Bytes, c.String(), err)
	return st, translateError(err)
}

// Restore copies an archive written by Backup into bs, which must not hold
// an index yet. Open bs afterwards to use the restored index.
func Restore(ctx context.Context, r io.Reader, bs blobstore.BlobStore) (backup.Stats, error) {
	ok, err := blobstore.Exists(ctx, bs, manifest.CurrentFileName)
	if err != nil {
		return backup.Stats{}, err
	}
	if ok {
		return backup.Stats{}, fmt.Errorf("%w: destination already holds an index", ErrInvalidArgument)
	}
	names, st, err := backup.Restore(ctx, r, bs)
	if err != nil {
		return st, err
	}
	if len(names) == 0 || names[len(names)-1] != manifest.CurrentFileName {
		return st, fmt.Errorf("%w: archive holds no commit", ErrCorrupt)
	}
	return st, nil
}
