package driveops

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// RangeFunc returns the bytes of the inclusive range [start, end]. The
// caller closes the reader.
type RangeFunc func(start, end int64) (io.ReadCloser, error)

// FileRange serves ranges from the file at path, opening it per range so a
// long-lived task holds no descriptor between chunks.
func FileRange(path string) RangeFunc {
	return func(start, end int64) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}

		return &sectionFile{
			SectionReader: io.NewSectionReader(f, start, end-start+1),
			f:             f,
		}, nil
	}
}

type sectionFile struct {
	*io.SectionReader
	f *os.File
}

func (s *sectionFile) Close() error {
	return s.f.Close()
}

// BytesRange serves ranges from an in-memory buffer.
func BytesRange(data []byte) RangeFunc {
	return func(start, end int64) (io.ReadCloser, error) {
		if start < 0 || end >= int64(len(data)) || start > end {
			return nil, fmt.Errorf("range %d-%d outside %d bytes", start, end, len(data))
		}

		return io.NopCloser(io.NewSectionReader(bytes.NewReader(data), start, end-start+1)), nil
	}
}
