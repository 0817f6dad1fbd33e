package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C_StreamingMatchesOneShot(t *testing.T) {
	data := []byte("segment _0 postings")

	h := NewCRC32C()
	_, _ = h.Write(data[:7])
	_, _ = h.Write(data[7:])

	assert.Equal(t, CRC32C(data), h.Sum32())
	assert.Equal(t, uint32(0xE3069283), CRC32C([]byte("123456789")))
}
