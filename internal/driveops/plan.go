package driveops

import "github.com/tonimelisma/onedrive-push/internal/graph"

// DefaultChunkSize is the largest chunk sent in one PUT (6,400 KiB, twenty
// times the 320 KiB alignment).
const DefaultChunkSize int64 = 20 * graph.ChunkAlignment

// Chunk is an inclusive byte range [Start, End].
type Chunk struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the chunk.
func (c Chunk) Len() int64 {
	return c.End - c.Start + 1
}

// PlanChunks partitions [0, size-1] into contiguous chunks of maxChunk bytes,
// the last one clamped to size-1. A non-positive maxChunk uses
// DefaultChunkSize. Returns nil for size <= 0.
func PlanChunks(size, maxChunk int64) []Chunk {
	if size <= 0 {
		return nil
	}

	if maxChunk <= 0 {
		maxChunk = DefaultChunkSize
	}

	n := (size + maxChunk - 1) / maxChunk
	chunks := make([]Chunk, 0, n)

	for start := int64(0); start < size; start += maxChunk {
		end := min(start+maxChunk, size) - 1
		chunks = append(chunks, Chunk{Start: start, End: end})
	}

	return chunks
}
