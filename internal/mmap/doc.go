// Package mmap maps segment files read-only into memory.
//
// Unix uses mmap(2) and madvise(2); Windows uses CreateFileMapping and
// MapViewOfFile, where access hints are ignored.
//
// A Mapping is safe for concurrent reads. Close is idempotent; callers must
// not touch slices returned by Bytes after Close.
package mmap
