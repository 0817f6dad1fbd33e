package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"

	"github.com/hupe1980/termdex/blobstore"
	ihash "github.com/hupe1980/termdex/internal/hash"
)

const (
	footerMagic = 0x7D3A_C0DE
	footerSize  = 8

	outputBufferSize = 16 << 10
)

// Output is a sequential writer. File outputs are created by a Directory;
// RAM outputs (NewRAMOutput) keep everything in memory and are used to
// buffer data that is copied into a file later, such as skip lists.
type Output struct {
	name   string
	w      io.Writer
	blob   blobstore.WritableBlob
	crc    hash.Hash32
	footer bool

	buf     []byte
	flushed int64
	err     error
	closed  bool
}

func newFileOutput(name string, blob blobstore.WritableBlob, w io.Writer) *Output {
	return &Output{
		name:   name,
		w:      w,
		blob:   blob,
		crc:    ihash.NewCRC32C(),
		footer: true,
		buf:    make([]byte, 0, outputBufferSize),
	}
}

// NewRAMOutput returns an in-memory output.
func NewRAMOutput() *Output {
	return &Output{name: "ram"}
}

// Name returns the file name.
func (o *Output) Name() string { return o.name }

// Err returns the first error encountered.
func (o *Output) Err() error { return o.err }

// FilePointer returns the number of bytes written so far.
func (o *Output) FilePointer() int64 {
	return o.flushed + int64(len(o.buf))
}

func (o *Output) fail(err error) {
	if o.err == nil {
		o.err = err
	}
}

func (o *Output) grow() {
	if o.w != nil && len(o.buf) >= outputBufferSize {
		o.flush()
	}
}

// WriteByte appends one byte.
func (o *Output) WriteByte(b byte) error {
	if o.err != nil {
		return o.err
	}
	o.buf = append(o.buf, b)
	o.grow()
	return o.err
}

// Write implements io.Writer.
func (o *Output) Write(p []byte) (int, error) {
	o.WriteBytes(p)
	if o.err != nil {
		return 0, o.err
	}
	return len(p), nil
}

// WriteBytes appends p.
func (o *Output) WriteBytes(p []byte) {
	if o.err != nil {
		return
	}
	if o.w != nil && len(o.buf)+len(p) > outputBufferSize {
		o.flush()
		if len(p) >= outputBufferSize {
			o.writeThrough(p)
			return
		}
	}
	o.buf = append(o.buf, p...)
}

// WriteVInt writes v in 1 to 5 bytes, 7 bits per byte, low bits first.
// Negative values take 5 bytes.
func (o *Output) WriteVInt(v int) {
	u := uint32(v)
	for u >= 0x80 {
		_ = o.WriteByte(byte(u) | 0x80)
		u >>= 7
	}
	_ = o.WriteByte(byte(u))
}

// WriteVLong writes a non-negative v in 1 to 9 bytes.
func (o *Output) WriteVLong(v int64) {
	if v < 0 {
		o.fail(fmt.Errorf("store: negative vlong %d", v))
		return
	}
	u := uint64(v)
	for u >= 0x80 {
		_ = o.WriteByte(byte(u) | 0x80)
		u >>= 7
	}
	_ = o.WriteByte(byte(u))
}

// WriteInt32 writes v big-endian.
func (o *Output) WriteInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	o.WriteBytes(b[:])
}

// WriteInt64 writes v big-endian.
func (o *Output) WriteInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	o.WriteBytes(b[:])
}

// WriteString writes the UTF-8 bytes of s prefixed by their VInt length.
func (o *Output) WriteString(s string) {
	if len(s) > math.MaxInt32 {
		o.fail(fmt.Errorf("store: string of %d bytes", len(s)))
		return
	}
	o.WriteVInt(len(s))
	o.WriteBytes([]byte(s))
}

func (o *Output) writeThrough(p []byte) {
	if o.crc != nil {
		_, _ = o.crc.Write(p)
	}
	n, err := o.w.Write(p)
	o.flushed += int64(n)
	if err != nil {
		o.fail(fmt.Errorf("write %s: %w", o.name, err))
	}
}

func (o *Output) flush() {
	if o.w == nil || len(o.buf) == 0 || o.err != nil {
		return
	}
	o.writeThrough(o.buf)
	o.buf = o.buf[:0]
}

// Bytes returns the content of a RAM output.
func (o *Output) Bytes() []byte {
	return o.buf
}

// Reset empties a RAM output.
func (o *Output) Reset() {
	o.buf = o.buf[:0]
	o.flushed = 0
	o.err = nil
}

// WriteTo copies the content of a RAM output to w.
func (o *Output) WriteTo(w io.Writer) (int64, error) {
	if o.w != nil {
		return 0, errors.New("store: WriteTo on a file output")
	}
	n, err := w.Write(o.buf)
	return int64(n), err
}

// Close writes the footer and publishes the file. A failed close discards
// the file where the blob store allows it.
func (o *Output) Close() error {
	if o.closed {
		return o.err
	}
	o.closed = true
	if o.blob == nil {
		return o.err
	}

	if o.err == nil && o.footer {
		var f [footerSize]byte
		binary.BigEndian.PutUint32(f[0:4], footerMagic)
		o.flush()
		binary.BigEndian.PutUint32(f[4:8], o.crc.Sum32())
		o.buf = append(o.buf, f[:]...)
		o.crc = nil
		o.flush()
	}
	if o.err == nil {
		if err := o.blob.Sync(); err != nil {
			o.fail(fmt.Errorf("sync %s: %w", o.name, err))
		}
	}
	if o.err != nil {
		o.abortBlob()
		return o.err
	}
	if err := o.blob.Close(); err != nil {
		o.fail(fmt.Errorf("close %s: %w", o.name, err))
	}
	return o.err
}

// Abort discards the output. The file never becomes visible.
func (o *Output) Abort() error {
	if o.closed {
		return nil
	}
	o.closed = true
	o.fail(ErrClosed)
	if o.blob == nil {
		return nil
	}
	return o.abortBlob()
}

func (o *Output) abortBlob() error {
	if a, ok := o.blob.(blobstore.Abortable); ok {
		return a.Abort()
	}
	return o.blob.Close()
}
