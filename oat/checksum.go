package oat

import (
	"hash"
	"hash/adler32"
)

// Checksum is the running adler32 over the committed bytes of an OAT file.
type Checksum struct {
	h hash.Hash32
}

// NewChecksum returns an accumulator in its initial state.
func NewChecksum() *Checksum {
	return &Checksum{h: adler32.New()}
}

// Update folds b into the checksum.
func (c *Checksum) Update(b []byte) {
	c.h.Write(b)
}

// UpdateUint32 folds the little-endian encoding of v.
func (c *Checksum) UpdateUint32(v uint32) {
	c.Update(uint32Bytes(v))
}

// Value returns the current checksum.
func (c *Checksum) Value() uint32 {
	return c.h.Sum32()
}
