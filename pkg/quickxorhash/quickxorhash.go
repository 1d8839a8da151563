// Package quickxorhash implements QuickXorHash, the content digest OneDrive
// for Business and SharePoint report for every file.
//
// Each input byte is XORed into a 160-bit circular register at a position
// that advances 11 bits per byte. The total input length is XORed into the
// last eight bytes of the digest.
//
// Algorithm reference:
// https://learn.microsoft.com/en-us/onedrive/developer/code-snippets/quickxorhash
package quickxorhash

import (
	"encoding/base64"
	"encoding/binary"
	"hash"
)

const (
	// Size is the length of a digest in bytes.
	Size = 20

	// BlockSize is the preferred write size.
	BlockSize = 64

	shift       = 11
	widthInBits = Size * 8
	cellBits    = 64
	numCells    = 3
	lastBits    = widthInBits - (numCells-1)*cellBits
)

type digest struct {
	cells  [numCells]uint64
	pos    int // bit position of the next byte, in [0, widthInBits)
	length uint64
}

// New returns a hash.Hash computing QuickXorHash.
func New() hash.Hash {
	return &digest{}
}

// Sum returns the base64 digest of data, the form Graph reports in
// quickXorHash.
func Sum(data []byte) string {
	h := New()
	_, _ = h.Write(data)

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func width(cell int) int {
	if cell == numCells-1 {
		return lastBits
	}

	return cellBits
}

func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		cell, off := d.pos/cellBits, d.pos%cellBits
		w := width(cell)

		d.cells[cell] ^= uint64(b) << off

		// Bits that overflow this cell wrap into the next one.
		if off > w-8 {
			next := (cell + 1) % numCells
			d.cells[next] ^= uint64(b) >> (w - off)
		}

		d.pos = (d.pos + shift) % widthInBits
	}

	d.length += uint64(len(p))

	return len(p), nil
}

// Sum appends the digest to b without changing the state.
func (d *digest) Sum(b []byte) []byte {
	var out [Size]byte

	binary.LittleEndian.PutUint64(out[0:8], d.cells[0])
	binary.LittleEndian.PutUint64(out[8:16], d.cells[1])
	binary.LittleEndian.PutUint32(out[16:20], uint32(d.cells[2])) //nolint:gosec // only 32 bits are used

	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], d.length)

	for i, v := range n {
		out[Size-len(n)+i] ^= v
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() { *d = digest{} }

func (d *digest) Size() int { return Size }

func (d *digest) BlockSize() int { return BlockSize }
