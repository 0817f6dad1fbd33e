// Package backup streams the files of a commit into a compressed archive
// and restores such an archive into an empty blob store.
//
// An archive is the four byte magic "TDXB", one compression byte and a
// tar stream, compressed as announced, holding one regular entry per
// file. Entries are restored in archive order, so writers put the commit
// pointer last.
package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/hupe1980/termdex/blobstore"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec of an archive.
type Compression uint8

const (
	// CompressionNone stores the tar stream as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses the LZ4 frame format (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses zstd (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

const magic = "TDXB"

// ErrInvalidArchive is returned for streams that are not backup archives.
var ErrInvalidArchive = errors.New("backup: invalid archive")

// Stats describes a written or restored archive.
type Stats struct {
	Files int
	// Bytes is the uncompressed size of all files.
	Bytes int64
}

// Write archives files of src to w in the given order.
func Write(ctx context.Context, w io.Writer, src blobstore.BlobStore, files []string, c Compression) (Stats, error) {
	var st Stats
	if _, err := io.WriteString(w, magic); err != nil {
		return st, err
	}
	if _, err := w.Write([]byte{byte(c)}); err != nil {
		return st, err
	}

	cw, err := newCompressor(w, c)
	if err != nil {
		return st, err
	}
	tw := tar.NewWriter(cw)
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		n, err := writeEntry(ctx, tw, src, name)
		if err != nil {
			return st, fmt.Errorf("backup: %s: %w", name, err)
		}
		st.Files++
		st.Bytes += n
	}
	if err := tw.Close(); err != nil {
		return st, err
	}
	return st, cw.Close()
}

func writeEntry(ctx context.Context, tw *tar.Writer, src blobstore.BlobStore, name string) (int64, error) {
	b, err := src.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer b.Close()

	size := b.Size()
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     size,
	}); err != nil {
		return 0, err
	}
	rc, err := b.ReadRange(ctx, 0, size)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(tw, rc)
}

// Restore writes every file of the archive read from r to dst and returns
// their names in archive order.
func Restore(ctx context.Context, r io.Reader, dst blobstore.BlobStore) ([]string, Stats, error) {
	var st Stats
	header := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, st, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if string(header[:len(magic)]) != magic {
		return nil, st, fmt.Errorf("%w: bad magic %q", ErrInvalidArchive, header[:len(magic)])
	}

	cr, err := newDecompressor(r, Compression(header[len(magic)]))
	if err != nil {
		return nil, st, err
	}
	defer cr.Close()

	var names []string
	tr := tar.NewReader(cr)
	for {
		if err := ctx.Err(); err != nil {
			return names, st, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, st, nil
		}
		if err != nil {
			return names, st, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
		}
		if hdr.Typeflag != tar.TypeReg || !validName(hdr.Name) {
			return names, st, fmt.Errorf("%w: entry %q", ErrInvalidArchive, hdr.Name)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return names, st, fmt.Errorf("%w: %s: %w", ErrInvalidArchive, hdr.Name, err)
		}
		if err := dst.Put(ctx, hdr.Name, data); err != nil {
			return names, st, fmt.Errorf("backup: restore %s: %w", hdr.Name, err)
		}
		names = append(names, hdr.Name)
		st.Files++
		st.Bytes += int64(len(data))
	}
}

// validName accepts the flat file names an index directory uses.
func validName(name string) bool {
	return name != "" && name == path.Base(name) && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`)
}

func newCompressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZSTD:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	default:
		return nil, fmt.Errorf("backup: unknown compression %d", uint8(c))
	}
}

func newDecompressor(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidArchive, uint8(c))
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
