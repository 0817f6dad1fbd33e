// Package fieldinfo tracks the per-segment field table (.fnm): field
// numbers and the indexing flags of each field.
package fieldinfo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/termdex/store"
)

// Extension is the file extension of a field table.
const Extension = "fnm"

const (
	fnmMagic  = 0x464E4D31 // "FNM1"
	maxFields = 1 << 20

	isIndexed     = 0x01
	omitNorms     = 0x10
	storePayloads = 0x20
	omitTF        = 0x40
	flagMask      = isIndexed | omitNorms | storePayloads | omitTF
)

// ErrUnknownField is returned when a field number is not in the table.
var ErrUnknownField = errors.New("fieldinfo: unknown field")

// Flags are the indexing options of a field.
type Flags struct {
	Indexed       bool
	OmitNorms     bool
	OmitTF        bool
	StorePayloads bool
}

// FieldInfo describes one field. Flags only ever move in one direction:
// once indexed, always indexed; once omitting term freqs, always omitting.
type FieldInfo struct {
	Name   string
	Number int
	Flags
}

// HasNorms reports whether norms are written for the field.
func (fi *FieldInfo) HasNorms() bool { return fi.Indexed && !fi.OmitNorms }

// HasProx reports whether positions are written for the field.
func (fi *FieldInfo) HasProx() bool { return fi.Indexed && !fi.OmitTF }

func (fi *FieldInfo) update(f Flags) {
	if f.Indexed {
		fi.Indexed = true
	}
	// Norms are kept as long as any document wants them.
	if !f.OmitNorms {
		fi.OmitNorms = false
	}
	if f.OmitTF {
		fi.OmitTF = true
	}
	if f.StorePayloads {
		fi.StorePayloads = true
	}
	if fi.OmitTF {
		fi.StorePayloads = false
	}
}

func (fi *FieldInfo) bits() byte {
	var b byte
	if fi.Indexed {
		b |= isIndexed
	}
	if fi.OmitNorms {
		b |= omitNorms
	}
	if fi.StorePayloads {
		b |= storePayloads
	}
	if fi.OmitTF {
		b |= omitTF
	}
	return b
}

// FieldInfos is the field table. Safe for concurrent use: the writer adds
// fields from many documents at once.
type FieldInfos struct {
	mu       sync.RWMutex
	byNumber []*FieldInfo
	byName   map[string]*FieldInfo
}

// New returns an empty table.
func New() *FieldInfos {
	return &FieldInfos{byName: make(map[string]*FieldInfo)}
}

// Add registers a field or merges flags into an existing one.
func (fis *FieldInfos) Add(name string, f Flags) *FieldInfo {
	fis.mu.Lock()
	defer fis.mu.Unlock()

	if fi, ok := fis.byName[name]; ok {
		fi.update(f)
		return fi
	}
	fi := &FieldInfo{Name: name, Number: len(fis.byNumber), Flags: f}
	if fi.OmitTF {
		fi.StorePayloads = false
	}
	fis.byNumber = append(fis.byNumber, fi)
	fis.byName[name] = fi
	return fi
}

// SetStorePayloads marks a field as carrying payloads. It has no effect on
// fields that omit term freqs.
func (fis *FieldInfos) SetStorePayloads(number int) {
	fis.mu.Lock()
	defer fis.mu.Unlock()
	if fi := fis.at(number); fi != nil && !fi.OmitTF {
		fi.StorePayloads = true
	}
}

// FlagsOf returns a copy of the flags of a field.
func (fis *FieldInfos) FlagsOf(number int) (Flags, bool) {
	fis.mu.RLock()
	defer fis.mu.RUnlock()
	fi := fis.at(number)
	if fi == nil {
		return Flags{}, false
	}
	return fi.Flags, true
}

func (fis *FieldInfos) at(number int) *FieldInfo {
	if number < 0 || number >= len(fis.byNumber) {
		return nil
	}
	return fis.byNumber[number]
}

// ByName returns the field called name.
func (fis *FieldInfos) ByName(name string) (*FieldInfo, bool) {
	fis.mu.RLock()
	defer fis.mu.RUnlock()
	fi, ok := fis.byName[name]
	return fi, ok
}

// ByNumber returns the field with the given number.
func (fis *FieldInfos) ByNumber(number int) (*FieldInfo, bool) {
	fis.mu.RLock()
	defer fis.mu.RUnlock()
	fi := fis.at(number)
	return fi, fi != nil
}

// Name returns the name of a field number, or "" if unknown.
func (fis *FieldInfos) Name(number int) string {
	fi, ok := fis.ByNumber(number)
	if !ok {
		return ""
	}
	return fi.Name
}

// Len returns the number of fields.
func (fis *FieldInfos) Len() int {
	fis.mu.RLock()
	defer fis.mu.RUnlock()
	return len(fis.byNumber)
}

// All returns the fields in number order.
func (fis *FieldInfos) All() []*FieldInfo {
	fis.mu.RLock()
	defer fis.mu.RUnlock()
	return append([]*FieldInfo(nil), fis.byNumber...)
}

// SortedNames returns the field names in ascending order.
func (fis *FieldInfos) SortedNames() []string {
	fis.mu.RLock()
	names := make([]string, 0, len(fis.byNumber))
	for _, fi := range fis.byNumber {
		names = append(names, fi.Name)
	}
	fis.mu.RUnlock()
	sort.Strings(names)
	return names
}

// HasProx reports whether any field stores positions.
func (fis *FieldInfos) HasProx() bool {
	fis.mu.RLock()
	defer fis.mu.RUnlock()
	for _, fi := range fis.byNumber {
		if fi.HasProx() {
			return true
		}
	}
	return false
}

// HasNorms reports whether any field has norms.
func (fis *FieldInfos) HasNorms() bool {
	fis.mu.RLock()
	defer fis.mu.RUnlock()
	for _, fi := range fis.byNumber {
		if fi.HasNorms() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (fis *FieldInfos) Clone() *FieldInfos {
	fis.mu.RLock()
	defer fis.mu.RUnlock()
	c := &FieldInfos{
		byNumber: make([]*FieldInfo, len(fis.byNumber)),
		byName:   make(map[string]*FieldInfo, len(fis.byNumber)),
	}
	for i, fi := range fis.byNumber {
		cp := *fi
		c.byNumber[i] = &cp
		c.byName[cp.Name] = &cp
	}
	return c
}

// FileName returns the field table file of a segment.
func FileName(segment string) string {
	return segment + "." + Extension
}

// Write stores the table as the .fnm file of segment.
func (fis *FieldInfos) Write(ctx context.Context, dir store.Directory, segment string) error {
	out, err := dir.CreateOutput(ctx, FileName(segment))
	if err != nil {
		return err
	}

	fis.mu.RLock()
	out.WriteInt32(fnmMagic)
	out.WriteVInt(len(fis.byNumber))
	for _, fi := range fis.byNumber {
		out.WriteString(fi.Name)
		_ = out.WriteByte(fi.bits())
	}
	fis.mu.RUnlock()

	if err := out.Err(); err != nil {
		_ = out.Abort()
		return err
	}
	return out.Close()
}

// Read loads the .fnm file of segment.
func Read(ctx context.Context, dir store.Directory, segment string) (*FieldInfos, error) {
	in, err := dir.OpenInput(ctx, FileName(segment))
	if err != nil {
		return nil, err
	}
	defer in.Close()

	if magic := in.ReadInt32(); in.Err() == nil && magic != fnmMagic {
		return nil, fmt.Errorf("%s: bad magic %#x: %w", in.Name(), magic, store.ErrCorrupt)
	}
	n := in.ReadVInt()
	if in.Err() == nil && (n < 0 || n > maxFields) {
		return nil, fmt.Errorf("%s: field count %d: %w", in.Name(), n, store.ErrCorrupt)
	}

	fis := New()
	for i := 0; i < n && in.Err() == nil; i++ {
		name := in.ReadString()
		b, _ := in.ReadByte()
		if b&^flagMask != 0 {
			return nil, fmt.Errorf("%s: field %q flags %#x: %w", in.Name(), name, b, store.ErrCorrupt)
		}
		fi := &FieldInfo{
			Name:   name,
			Number: i,
			Flags: Flags{
				Indexed:       b&isIndexed != 0,
				OmitNorms:     b&omitNorms != 0,
				StorePayloads: b&storePayloads != 0,
				OmitTF:        b&omitTF != 0,
			},
		}
		fis.byNumber = append(fis.byNumber, fi)
		fis.byName[name] = fi
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return fis, nil
}
