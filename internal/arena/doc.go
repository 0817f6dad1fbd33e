// Package arena provides the block pools that back the in-memory posting
// buffers of the indexing chain.
//
// Three element types are pooled: bytes (posting streams), int32 (per-term
// stream write addresses) and uint16 (interned UTF-16 term text). Data is
// addressed by global offsets of the form bufferIndex<<shift | upto, so
// pooled memory never holds pointers and can be recycled in bulk.
//
// # Concurrency Model
//
// An Allocator is shared by every indexing thread and is safe for concurrent
// use. A Pool is owned by exactly one thread state and must not be shared.
//
// # Byte slices
//
// ByteBlockPool carves growable slices out of byte blocks. A slice starts at
// 5 bytes and grows through the level table; the end of a slice is marked by a
// non-zero byte 16|level, and on overflow the last 4 bytes are replaced by the
// big-endian address of the next slice. ByteSliceReader walks such a chain.
package arena
