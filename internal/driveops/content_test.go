package driveops

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRange(t *testing.T, fn RangeFunc, start, end int64) string {
	t.Helper()

	rc, err := fn(start, end)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	return string(data)
}

func TestFileRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	fn := FileRange(path)
	assert.Equal(t, "0123", readRange(t, fn, 0, 3))
	assert.Equal(t, "89", readRange(t, fn, 8, 9))
}

func TestFileRange_Missing(t *testing.T) {
	_, err := FileRange(filepath.Join(t.TempDir(), "gone"))(0, 1)
	assert.Error(t, err)
}

func TestBytesRange(t *testing.T) {
	fn := BytesRange([]byte("abcdef"))
	assert.Equal(t, "bcd", readRange(t, fn, 1, 3))

	_, err := fn(4, 6)
	assert.Error(t, err)
}
