package quickxorhash

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Digests as reported by OneDrive for the same content.
func TestSum_KnownDigests(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"empty", nil, "AAAAAAAAAAAAAAAAAAAAAAAAAAA="},
		{"hello", []byte("hello"), "aCgDG9jwBgAAAAAABQAAAAAAAAA="},
		{"hello world", []byte("hello world"), "aCgDG9jwBhDc4Q1yawMZAAAAAAA="},
		{"1000 zero bytes", make([]byte, 1000), "AAAAAAAAAAAAAAAA6AMAAAAAAAA="},
		{"1000 0xff bytes", bytes.Repeat([]byte{0xFF}, 1000), "Yxvb2MY2trGNbWxj89jYOc5xjnM="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sum(tt.input))
		})
	}
}

func TestWrite_SplitMatchesSingle(t *testing.T) {
	data := make([]byte, 1031)
	for i := range data {
		data[i] = byte(i * 7)
	}

	h := New()

	for _, n := range []int{1, 10, 159, 160, 161, 540} {
		_, err := h.Write(data[:n])
		require.NoError(t, err)

		data = data[n:]
	}

	_, err := h.Write(data)
	require.NoError(t, err)

	whole := make([]byte, 1031)
	for i := range whole {
		whole[i] = byte(i * 7)
	}

	assert.Equal(t, Sum(whole), base64.StdEncoding.EncodeToString(h.Sum(nil)))
}

func TestSum_DoesNotChangeState(t *testing.T) {
	h := New()
	_, _ = h.Write([]byte("hello"))

	first := h.Sum(nil)
	assert.Equal(t, first, h.Sum(nil))

	_, _ = h.Write([]byte(" world"))
	assert.Equal(t, "aCgDG9jwBhDc4Q1yawMZAAAAAAA=", base64.StdEncoding.EncodeToString(h.Sum(nil)))

	h.Reset()
	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAA=", base64.StdEncoding.EncodeToString(h.Sum(nil)))
	assert.Equal(t, Size, h.Size())
}
