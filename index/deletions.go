package index

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/termdex/internal/conv"
	"github.com/hupe1980/termdex/store"
)

const delMagic = 0x44454C31 // "DEL1"

// writeDeletions stores the deleted documents of a segment as a roaring
// bitmap: Int32 magic, VInt maxDoc, VInt count, serialized bitmap.
func writeDeletions(ctx context.Context, dir store.Directory, name string, maxDoc int, deleted *roaring.Bitmap) error {
	out, err := dir.CreateOutput(ctx, name)
	if err != nil {
		return err
	}
	deleted.RunOptimize()
	out.WriteInt32(delMagic)
	out.WriteVInt(maxDoc)
	out.WriteVInt(int(deleted.GetCardinality()))
	if _, err := deleted.WriteTo(out); err != nil {
		_ = out.Abort()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return out.Close()
}

// readDeletions loads a deletions file written for a segment of maxDoc
// documents.
func readDeletions(ctx context.Context, dir store.Directory, name string, maxDoc int) (*roaring.Bitmap, error) {
	in, err := dir.OpenInput(ctx, name)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	magic := in.ReadInt32()
	gotMax := in.ReadVInt()
	count := in.ReadVInt()
	if err := in.Err(); err != nil {
		return nil, err
	}
	if magic != delMagic || gotMax != maxDoc {
		return nil, fmt.Errorf("%w: %s: magic %#x, maxDoc %d want %d", store.ErrCorrupt, name, magic, gotMax, maxDoc)
	}

	n, err := conv.Int64ToInt(in.Length() - in.FilePointer())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrCorrupt, name, err)
	}
	buf := make([]byte, n)
	in.ReadBytes(buf)
	if err := in.Err(); err != nil {
		return nil, err
	}

	bm := roaring.New()
	if err := bm.UnmarshalBinary(buf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrCorrupt, name, err)
	}
	if int(bm.GetCardinality()) != count {
		return nil, fmt.Errorf("%w: %s: %d deletions, header says %d", store.ErrCorrupt, name, bm.GetCardinality(), count)
	}
	if !bm.IsEmpty() && int(bm.Maximum()) >= maxDoc {
		return nil, fmt.Errorf("%w: %s: deleted doc %d of %d", store.ErrCorrupt, name, bm.Maximum(), maxDoc)
	}
	return bm, nil
}
