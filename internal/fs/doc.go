// Package fs abstracts the file system under blobstore.LocalStore so tests
// can inject I/O failures.
//
//   - [LocalFS]: package os
//   - [FaultyFS]: rule-driven fault injection
//
// Operations take no context: local syscalls are not interruptible. Remote
// storage goes through blobstore, which is context aware.
package fs
