// Package conv provides checked integer conversions for values decoded from
// index files, where a corrupt length must not turn into a huge allocation.
package conv

import (
	"fmt"
	"math"
)

// IntToUint32 converts v, failing on negative or oversized values.
func IntToUint32(v int) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("conv: %d out of uint32 range", v)
	}
	return uint32(v), nil
}

// Int64ToInt converts v, failing if it does not fit an int.
func Int64ToInt(v int64) (int, error) {
	if int64(int(v)) != v {
		return 0, fmt.Errorf("conv: %d out of int range", v)
	}
	return int(v), nil
}

// Int64ToInt32 converts v, failing if it does not fit an int32.
func Int64ToInt32(v int64) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("conv: %d out of int32 range", v)
	}
	return int32(v), nil
}

// Uint64ToInt converts v, failing if it does not fit an int.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("conv: %d out of int range", v)
	}
	return int(v), nil
}

// NonNegative returns v if it is a valid count or length.
func NonNegative(v int, what string) (int, error) {
	if v < 0 {
		return 0, fmt.Errorf("conv: negative %s %d", what, v)
	}
	return v, nil
}
