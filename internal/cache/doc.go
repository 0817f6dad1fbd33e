// Package cache provides the block cache used by blobstore.CachingStore to
// keep hot ranges of segment files (term index blocks, skip data) in memory.
package cache
