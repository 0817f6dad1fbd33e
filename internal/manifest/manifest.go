package manifest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/termdex/blobstore"
	"github.com/hupe1980/termdex/store"
)

const (
	// CurrentFileName names the pointer to the active commit file.
	CurrentFileName = "CURRENT"
	// FilePrefix starts the name of every commit file.
	FilePrefix = "segments_"
	// CurrentVersion is the commit file format.
	CurrentVersion = 1

	commitMagic = 0x53454753 // "SEGS"

	flagCompound = 0x01
	flagHasProx  = 0x02
)

// FileName returns the commit file name for gen.
func FileName(gen int64) string {
	return FilePrefix + strconv.FormatInt(gen, 36)
}

// GenerationFromFileName parses the generation out of a commit file name.
func GenerationFromFileName(name string) (int64, error) {
	rest, ok := strings.CutPrefix(name, FilePrefix)
	if !ok || rest == "" {
		return 0, fmt.Errorf("%w: %q", ErrBadFileName, name)
	}
	gen, err := strconv.ParseInt(rest, 36, 64)
	if err != nil || gen <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadFileName, name)
	}
	return gen, nil
}

// DelFileName returns the deletions file name of segment at gen.
func DelFileName(segment string, gen int64) string {
	return segment + "_" + strconv.FormatInt(gen, 36) + ".del"
}

// NormsFileName returns the name of a norms generation of segment.
func NormsFileName(segment string, gen int64) string {
	return segment + "_" + strconv.FormatInt(gen, 36) + ".nrm"
}

// SegmentInfo describes one flushed segment.
type SegmentInfo struct {
	Name            string
	DocCount        int
	UseCompoundFile bool
	HasProx         bool
	// DelGen is the generation of the deletions file, 0 if there is none.
	DelGen   int64
	DelCount int
	// NormGen is the generation of the norms file, 0 for the flushed one.
	NormGen int64
	Stats   SegmentStats
	// CoreFiles are the files written when the segment was flushed.
	CoreFiles []string
}

// HasDeletions reports whether the segment has a deletions file.
func (si *SegmentInfo) HasDeletions() bool { return si.DelGen > 0 }

// DelFileName returns the current deletions file name, or "" if none.
func (si *SegmentInfo) DelFileName() string {
	if si.DelGen == 0 {
		return ""
	}
	return DelFileName(si.Name, si.DelGen)
}

// Files returns every file the segment references.
func (si *SegmentInfo) Files() []string {
	files := slices.Clone(si.CoreFiles)
	if si.DelGen > 0 {
		files = append(files, si.DelFileName())
	}
	if si.NormGen > 0 {
		files = append(files, NormsFileName(si.Name, si.NormGen))
	}
	return files
}

// Clone returns a deep copy.
func (si *SegmentInfo) Clone() *SegmentInfo {
	c := *si
	c.CoreFiles = slices.Clone(si.CoreFiles)
	return &c
}

// SegmentInfos is the segment list of one commit.
type SegmentInfos struct {
	// Generation of the commit this was loaded from or last written as.
	Generation int64
	// Version increases with every change that is committed.
	Version int64
	// Counter numbers new segments.
	Counter  int
	Segments []*SegmentInfo
}

// New returns an empty segment list that has never been committed.
func New() *SegmentInfos {
	return &SegmentInfos{}
}

// NewSegmentName allocates the next segment name.
func (s *SegmentInfos) NewSegmentName() string {
	name := "_" + strconv.FormatInt(int64(s.Counter), 36)
	s.Counter++
	return name
}

// TotalDocCount returns the sum of the segments' doc counts.
func (s *SegmentInfos) TotalDocCount() int {
	n := 0
	for _, si := range s.Segments {
		n += si.DocCount
	}
	return n
}

// Stats returns the summed segment statistics.
func (s *SegmentInfos) Stats() SegmentStats {
	var st SegmentStats
	for _, si := range s.Segments {
		st.Add(si.Stats)
	}
	return st
}

// Files returns the files referenced by the commit, optionally including
// the commit file itself.
func (s *SegmentInfos) Files(includeCommit bool) []string {
	var files []string
	if includeCommit && s.Generation > 0 {
		files = append(files, FileName(s.Generation))
	}
	for _, si := range s.Segments {
		files = append(files, si.Files()...)
	}
	return files
}

// Clone returns a deep copy.
func (s *SegmentInfos) Clone() *SegmentInfos {
	c := *s
	c.Segments = make([]*SegmentInfo, len(s.Segments))
	for i, si := range s.Segments {
		c.Segments[i] = si.Clone()
	}
	return &c
}

// Store reads and writes commits in a directory.
type Store struct {
	dir store.Directory
	mu  sync.Mutex
}

// NewStore creates a commit store over dir.
func NewStore(dir store.Directory) *Store {
	return &Store{dir: dir}
}

// Load loads the commit CURRENT points at.
func (s *Store) Load(ctx context.Context) (*SegmentInfos, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.dir.ReadRaw(ctx, CurrentFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("manifest: read %s: %w", CurrentFileName, err)
	}
	gen, err := GenerationFromFileName(strings.TrimSpace(string(name)))
	if err != nil {
		return nil, err
	}
	return s.read(ctx, gen)
}

// LoadGeneration loads a specific commit.
func (s *Store) LoadGeneration(ctx context.Context, gen int64) (*SegmentInfos, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx, gen)
}

func (s *Store) read(ctx context.Context, gen int64) (*SegmentInfos, error) {
	name := FileName(gen)
	in, err := s.dir.OpenInput(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	defer in.Close()

	if magic := in.ReadInt32(); magic != commitMagic {
		if err := in.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: bad magic %#x", store.ErrCorrupt, name, magic)
	}
	if v := in.ReadInt32(); v != CurrentVersion {
		if err := in.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: format %d", ErrIncompatibleVersion, name, v)
	}

	infos := &SegmentInfos{Generation: gen}
	infos.Version = in.ReadInt64()
	infos.Counter = in.ReadVInt()
	n := in.ReadVInt()
	for i := 0; i < n && in.Err() == nil; i++ {
		si := &SegmentInfo{Name: in.ReadString(), DocCount: in.ReadVInt()}
		flags, err := in.ReadByte()
		if err != nil {
			break
		}
		si.UseCompoundFile = flags&flagCompound != 0
		si.HasProx = flags&flagHasProx != 0
		si.DelGen = in.ReadVLong()
		si.DelCount = in.ReadVInt()
		si.NormGen = in.ReadVLong()
		si.Stats.NumTerms = in.ReadVLong()
		si.Stats.SizeBytes = in.ReadVLong()
		nf := in.ReadVInt()
		for j := 0; j < nf && in.Err() == nil; j++ {
			si.CoreFiles = append(si.CoreFiles, in.ReadString())
		}
		if si.DelCount > si.DocCount {
			return nil, fmt.Errorf("%w: %s: segment %s deletes %d of %d docs",
				store.ErrCorrupt, name, si.Name, si.DelCount, si.DocCount)
		}
		infos.Segments = append(infos.Segments, si)
	}
	if err := in.Err(); err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", name, err)
	}
	return infos, nil
}

// Commit writes infos as the next generation and points CURRENT at it.
// On success infos.Generation and infos.Version are advanced.
func (s *Store) Commit(ctx context.Context, infos *SegmentInfos) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := infos.Generation + 1
	name := FileName(gen)

	out, err := s.dir.CreateOutput(ctx, name)
	if err != nil {
		return err
	}
	out.WriteInt32(commitMagic)
	out.WriteInt32(CurrentVersion)
	out.WriteInt64(infos.Version + 1)
	out.WriteVInt(infos.Counter)
	out.WriteVInt(len(infos.Segments))
	for _, si := range infos.Segments {
		out.WriteString(si.Name)
		out.WriteVInt(si.DocCount)
		var flags byte
		if si.UseCompoundFile {
			flags |= flagCompound
		}
		if si.HasProx {
			flags |= flagHasProx
		}
		_ = out.WriteByte(flags)
		out.WriteVLong(si.DelGen)
		out.WriteVInt(si.DelCount)
		out.WriteVLong(si.NormGen)
		out.WriteVLong(si.Stats.NumTerms)
		out.WriteVLong(si.Stats.SizeBytes)
		out.WriteVInt(len(si.CoreFiles))
		for _, f := range si.CoreFiles {
			out.WriteString(f)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("manifest: write %s: %w", name, err)
	}

	if err := s.dir.PutRaw(ctx, CurrentFileName, []byte(name)); err != nil {
		_ = s.dir.DeleteFile(ctx, name)
		return fmt.Errorf("manifest: publish %s: %w", name, err)
	}
	infos.Generation = gen
	infos.Version++
	return nil
}

// ListGenerations returns the generations of all commit files, ascending.
func (s *Store) ListGenerations(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.dir.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var gens []int64
	for _, f := range files {
		if !strings.HasPrefix(f, FilePrefix) {
			continue
		}
		gen, err := GenerationFromFileName(f)
		if err != nil {
			continue
		}
		gens = append(gens, gen)
	}
	slices.Sort(gens)
	return gens, nil
}

// DeleteGeneration deletes one commit file.
func (s *Store) DeleteGeneration(ctx context.Context, gen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.DeleteFile(ctx, FileName(gen))
}
