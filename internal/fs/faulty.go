package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the error returned by a rule without its own error.
var ErrInjected = errors.New("fs: injected fault")

// Op identifies the operation a fault applies to.
type Op int

const (
	OpOpen Op = iota
	OpWrite
	OpSync
	OpClose
	OpRename
	OpRemove
)

// FaultRule fails an operation on paths containing Pattern (all paths when
// empty). For OpWrite, AfterBytes lets that many bytes through per file first.
type FaultRule struct {
	Op         Op
	Pattern    string
	AfterBytes int64
	Err        error
}

func (r FaultRule) matches(op Op, name string) bool {
	return r.Op == op && strings.Contains(name, r.Pattern)
}

func (r FaultRule) err() error {
	if r.Err != nil {
		return r.Err
	}
	return ErrInjected
}

// FaultyFS wraps a FileSystem and fails operations according to its rules.
type FaultyFS struct {
	fs    FileSystem
	mu    sync.Mutex
	rules []FaultRule
}

// NewFaultyFS wraps fsys, or Default if nil.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{fs: fsys}
}

// AddRule registers a fault.
func (f *FaultyFS) AddRule(rule FaultRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule)
}

// ClearRules removes every fault.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

func (f *FaultyFS) find(op Op, name string) (FaultRule, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rules) - 1; i >= 0; i-- {
		if f.rules[i].matches(op, name) {
			return f.rules[i], true
		}
	}
	return FaultRule{}, false
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	if r, ok := f.find(OpOpen, name); ok {
		return nil, r.err()
	}
	file, err := f.fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, name: name}, nil
}

func (f *FaultyFS) Remove(name string) error {
	if r, ok := f.find(OpRemove, name); ok {
		return r.err()
	}
	return f.fs.Remove(name)
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if r, ok := f.find(OpRename, newpath); ok {
		return r.err()
	}
	return f.fs.Rename(oldpath, newpath)
}

func (f *FaultyFS) Stat(name string) (os.FileInfo, error)        { return f.fs.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error { return f.fs.MkdirAll(path, perm) }
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error)   { return f.fs.ReadDir(name) }

type faultyFile struct {
	File
	fs      *FaultyFS
	name    string
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if r, ok := ff.fs.find(OpWrite, ff.name); ok && ff.written+int64(len(p)) > r.AfterBytes {
		return 0, r.err()
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Sync() error {
	if r, ok := ff.fs.find(OpSync, ff.name); ok {
		return r.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	if r, ok := ff.fs.find(OpClose, ff.name); ok {
		_ = ff.File.Close()
		return r.err()
	}
	return ff.File.Close()
}
