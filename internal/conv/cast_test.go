package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntToUint32(t *testing.T) {
	tests := []struct {
		name    string
		in      int
		want    uint32
		wantErr bool
	}{
		{"zero", 0, 0, false},
		{"positive", 123, 123, false},
		{"max", math.MaxUint32, math.MaxUint32, false},
		{"negative", -1, 0, true},
		{"too large", math.MaxUint32 + 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IntToUint32(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInt64ToInt32(t *testing.T) {
	v, err := Int64ToInt32(math.MaxInt32)
	assert.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), v)

	_, err = Int64ToInt32(math.MaxInt32 + 1)
	assert.Error(t, err)
	_, err = Int64ToInt32(math.MinInt32 - 1)
	assert.Error(t, err)
}

func TestUint64ToInt(t *testing.T) {
	_, err := Uint64ToInt(math.MaxUint64)
	assert.Error(t, err)

	v, err := Uint64ToInt(42)
	assert.NoError(t, err)
	assert.Equal(t, 42, v)

	n, err := Int64ToInt(7)
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestNonNegative(t *testing.T) {
	_, err := NonNegative(-3, "doc count")
	assert.ErrorContains(t, err, "doc count")
}
