package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/termdex/blobstore"
	ihash "github.com/hupe1980/termdex/internal/hash"
)

const inputBufferSize = 4 << 10

// Input is a random access reader over a file or a slice of one. Reads are
// served from the mapped file when the blob store provides one, otherwise
// through a small read buffer.
//
// Clones and slices share the underlying blob; only the Input returned by
// Directory.OpenInput closes it.
type Input struct {
	name string
	ctx  context.Context
	blob blobstore.Blob
	data []byte

	base   int64
	length int64
	footer bool
	owner  bool

	// buffered mode: buf holds [bufStart, bufStart+len(buf)).
	buf      []byte
	bufStart int64
	pos      int64

	err error
}

func newInput(ctx context.Context, name string, blob blobstore.Blob) (*Input, error) {
	size := blob.Size()
	in := &Input{name: name, ctx: ctx, blob: blob, owner: true, footer: true}
	if m, ok := blob.(blobstore.Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		in.data = data
	}
	if size < footerSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrCorrupt, name, size)
	}
	var f [footerSize]byte
	if err := in.readAt(f[:], size-footerSize); err != nil {
		return nil, err
	}
	if magic := binary.BigEndian.Uint32(f[0:4]); magic != footerMagic {
		return nil, fmt.Errorf("%w: %s has footer magic %#x", ErrCorrupt, name, magic)
	}
	in.length = size - footerSize
	return in, nil
}

// NewBytesInput returns an Input over data without a footer.
func NewBytesInput(name string, data []byte) *Input {
	return &Input{
		name:   name,
		ctx:    context.Background(),
		data:   data,
		length: int64(len(data)),
	}
}

// Name returns the file name.
func (in *Input) Name() string { return in.name }

// Length returns the readable length, excluding the footer.
func (in *Input) Length() int64 { return in.length }

// FilePointer returns the position of the next read.
func (in *Input) FilePointer() int64 { return in.pos }

// Err returns the first error encountered.
func (in *Input) Err() error { return in.err }

func (in *Input) fail(err error) {
	if in.err == nil {
		in.err = err
	}
}

// readAt reads absolute blob bytes, bypassing the buffer.
func (in *Input) readAt(p []byte, off int64) error {
	if in.data != nil {
		if off < 0 || off+int64(len(p)) > int64(len(in.data)) {
			return fmt.Errorf("read %s: %w", in.name, io.ErrUnexpectedEOF)
		}
		copy(p, in.data[off:])
		return nil
	}
	if in.blob == nil {
		return fmt.Errorf("read %s: %w", in.name, ErrClosed)
	}
	n, err := in.blob.ReadAt(in.ctx, p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("read %s: %w", in.name, err)
}

func (in *Input) refill() bool {
	if in.pos >= in.length {
		in.fail(fmt.Errorf("read %s past end (%d): %w", in.name, in.length, io.ErrUnexpectedEOF))
		return false
	}
	n := min(int64(inputBufferSize), in.length-in.pos)
	if cap(in.buf) < int(n) {
		in.buf = make([]byte, inputBufferSize)
	}
	in.buf = in.buf[:n]
	if err := in.readAt(in.buf, in.base+in.pos); err != nil {
		in.buf = in.buf[:0]
		in.fail(err)
		return false
	}
	in.bufStart = in.pos
	return true
}

// ReadByte returns the next byte.
func (in *Input) ReadByte() (byte, error) {
	if in.err != nil {
		return 0, in.err
	}
	if in.data != nil {
		if in.pos >= in.length {
			in.fail(fmt.Errorf("read %s past end (%d): %w", in.name, in.length, io.ErrUnexpectedEOF))
			return 0, in.err
		}
		b := in.data[in.base+in.pos]
		in.pos++
		return b, nil
	}
	i := in.pos - in.bufStart
	if i < 0 || i >= int64(len(in.buf)) {
		if !in.refill() {
			return 0, in.err
		}
		i = 0
	}
	in.pos++
	return in.buf[i], nil
}

// ReadBytes fills p.
func (in *Input) ReadBytes(p []byte) {
	if in.err != nil || len(p) == 0 {
		return
	}
	if in.pos+int64(len(p)) > in.length {
		in.fail(fmt.Errorf("read %s past end (%d): %w", in.name, in.length, io.ErrUnexpectedEOF))
		return
	}
	if in.data != nil {
		copy(p, in.data[in.base+in.pos:])
		in.pos += int64(len(p))
		return
	}
	for len(p) > 0 {
		i := in.pos - in.bufStart
		if i < 0 || i >= int64(len(in.buf)) {
			if len(p) >= inputBufferSize {
				if err := in.readAt(p, in.base+in.pos); err != nil {
					in.fail(err)
					return
				}
				in.pos += int64(len(p))
				return
			}
			if !in.refill() {
				return
			}
			i = 0
		}
		n := copy(p, in.buf[i:])
		p = p[n:]
		in.pos += int64(n)
	}
}

// ReadVInt decodes a value written by Output.WriteVInt.
func (in *Input) ReadVInt() int {
	var u uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := in.ReadByte()
		if err != nil {
			return 0
		}
		u |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return int(int32(u))
		}
	}
	in.fail(fmt.Errorf("%w: malformed vint in %s at %d", ErrCorrupt, in.name, in.pos))
	return 0
}

// ReadVLong decodes a value written by Output.WriteVLong.
func (in *Input) ReadVLong() int64 {
	var u uint64
	for shift := uint(0); shift < 63; shift += 7 {
		b, err := in.ReadByte()
		if err != nil {
			return 0
		}
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return int64(u)
		}
	}
	in.fail(fmt.Errorf("%w: malformed vlong in %s at %d", ErrCorrupt, in.name, in.pos))
	return 0
}

// ReadInt32 reads a big-endian int32.
func (in *Input) ReadInt32() int32 {
	var b [4]byte
	in.ReadBytes(b[:])
	return int32(binary.BigEndian.Uint32(b[:]))
}

// ReadInt64 reads a big-endian int64.
func (in *Input) ReadInt64() int64 {
	var b [8]byte
	in.ReadBytes(b[:])
	return int64(binary.BigEndian.Uint64(b[:]))
}

// ReadString reads a string written by Output.WriteString.
func (in *Input) ReadString() string {
	n := in.ReadVInt()
	if in.err != nil {
		return ""
	}
	if n < 0 || int64(n) > in.length-in.pos {
		in.fail(fmt.Errorf("%w: string length %d in %s", ErrCorrupt, n, in.name))
		return ""
	}
	p := make([]byte, n)
	in.ReadBytes(p)
	return string(p)
}

// SeekTo moves the read position. Seeking past the end is reported by the
// next read.
func (in *Input) SeekTo(pos int64) {
	if pos < 0 {
		in.fail(fmt.Errorf("store: negative seek %d in %s", pos, in.name))
		return
	}
	in.pos = pos
}

// Clone returns an independent reader over the same bytes, positioned where
// in is.
func (in *Input) Clone() *Input {
	c := *in
	c.owner = false
	c.buf = nil
	c.bufStart = 0
	return &c
}

// Slice returns a reader over [off, off+length) of in.
func (in *Input) Slice(name string, off, length int64) (*Input, error) {
	if off < 0 || length < 0 || off+length > in.length {
		return nil, fmt.Errorf("%w: slice %s [%d,%d) of %s (%d)", ErrCorrupt, name, off, off+length, in.name, in.length)
	}
	return &Input{
		name:   name,
		ctx:    in.ctx,
		blob:   in.blob,
		data:   in.data,
		base:   in.base + off,
		length: length,
	}, nil
}

// VerifyChecksum recomputes the CRC32C of the file and compares it with
// the footer. Only whole files opened from a Directory carry a footer.
func (in *Input) VerifyChecksum() error {
	if !in.footer {
		return nil
	}
	crc := ihash.NewCRC32C()
	rc, err := in.rangeReader(0, in.length)
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(crc, rc); err != nil {
		return fmt.Errorf("verify %s: %w", in.name, err)
	}
	var f [footerSize]byte
	if err := in.readAt(f[:], in.length); err != nil {
		return err
	}
	if want := binary.BigEndian.Uint32(f[4:8]); crc.Sum32() != want {
		return fmt.Errorf("%w: %s checksum %#08x, footer %#08x", ErrCorrupt, in.name, crc.Sum32(), want)
	}
	return nil
}

func (in *Input) rangeReader(off, length int64) (io.ReadCloser, error) {
	if in.data != nil {
		return io.NopCloser(bytes.NewReader(in.data[in.base+off : in.base+off+length])), nil
	}
	if in.blob == nil {
		return nil, ErrClosed
	}
	return in.blob.ReadRange(in.ctx, in.base+off, length)
}

// Close releases the file. Closing a clone or slice only detaches it.
func (in *Input) Close() error {
	blob := in.blob
	owner := in.owner
	in.blob = nil
	in.data = nil
	in.buf = nil
	in.fail(ErrClosed)
	if owner && blob != nil {
		return blob.Close()
	}
	return nil
}
