// Package blobstore provides the storage abstraction beneath the index
// directory: segment files, deletion bitmaps and commit points are all blobs.
//
// BlobStore implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, atomic writes via rename, mmap reads
//   - MemoryStore: in-memory, for tests and ephemeral indexes
//   - CachingStore: block cache in front of any other store
//   - s3.Store / s3.DDBCommitStore: Amazon S3, optionally with DynamoDB
//     coordinating the CURRENT commit pointer
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
