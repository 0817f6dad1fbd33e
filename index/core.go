package index

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/internal/freqprox"
	"github.com/hupe1980/termdex/internal/norms"
	"github.com/hupe1980/termdex/internal/terminfo"
	"github.com/hupe1980/termdex/store"
)

// segmentCore holds the parts of a segment that never change once it is
// flushed. Readers of different deletion or norm generations of the same
// segment share one core.
type segmentCore struct {
	refs atomic.Int64

	segment string
	cfs     *store.CompoundReader
	// dir serves the core files: the compound reader or the index directory.
	dir store.Directory

	fieldInfos *fieldinfo.FieldInfos
	terms      *terminfo.Reader
	freq       *store.Input
	prox       *store.Input
}

func openCore(ctx context.Context, dir store.Directory, segment string, compound bool) (_ *segmentCore, err error) {
	c := &segmentCore{segment: segment, dir: dir}
	c.refs.Store(1)
	defer func() {
		if err != nil {
			_ = c.close()
		}
	}()

	if compound {
		if c.cfs, err = store.OpenCompound(ctx, dir, store.CompoundFileName(segment)); err != nil {
			return nil, err
		}
		c.dir = c.cfs
	}
	if c.fieldInfos, err = fieldinfo.Read(ctx, c.dir, segment); err != nil {
		return nil, err
	}
	if c.terms, err = terminfo.Open(ctx, c.dir, segment, c.fieldInfos); err != nil {
		return nil, err
	}
	if c.freq, err = c.dir.OpenInput(ctx, freqprox.FreqFileName(segment)); err != nil {
		return nil, err
	}
	if c.fieldInfos.HasProx() {
		if c.prox, err = c.dir.OpenInput(ctx, freqprox.ProxFileName(segment)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// openNorms opens the norms flushed with the segment, nil if it has none.
func (c *segmentCore) openNorms(ctx context.Context, maxDoc int) (*norms.Reader, error) {
	if !c.fieldInfos.HasNorms() {
		return nil, nil
	}
	return norms.Open(ctx, c.dir, norms.FileName(c.segment, 0), c.fieldInfos, maxDoc)
}

// verify checks the footer checksums of the core files.
func (c *segmentCore) verify() error {
	if c.cfs != nil {
		return c.cfs.VerifyChecksum()
	}
	errs := []error{c.freq.VerifyChecksum()}
	if c.prox != nil {
		errs = append(errs, c.prox.VerifyChecksum())
	}
	return errors.Join(errs...)
}

func (c *segmentCore) incRef() {
	c.refs.Add(1)
}

func (c *segmentCore) decRef() error {
	if c.refs.Add(-1) == 0 {
		return c.close()
	}
	return nil
}

func (c *segmentCore) close() error {
	var errs []error
	if c.terms != nil {
		errs = append(errs, c.terms.Close())
	}
	if c.freq != nil {
		errs = append(errs, c.freq.Close())
	}
	if c.prox != nil {
		errs = append(errs, c.prox.Close())
	}
	if c.cfs != nil {
		errs = append(errs, c.cfs.Close())
	}
	return errors.Join(errs...)
}
