package oat

import (
	"bytes"
	"crypto/sha256"
)

// ---------------------------------------------------------------------------
// BlobTable: content-addressed offset map
// ---------------------------------------------------------------------------

// BlobTable maps blob contents to the offset where an identical blob was
// first placed. One table exists per blob kind; kinds never share offsets.
type BlobTable struct {
	kind    string
	entries map[[32]byte][]blobEntry
	unique  int
	hits    int
}

type blobEntry struct {
	blob   []byte
	offset uint32
}

// NewBlobTable creates an empty table for the named kind.
func NewBlobTable(kind string) *BlobTable {
	return &BlobTable{
		kind:    kind,
		entries: make(map[[32]byte][]blobEntry),
	}
}

// GetOrInsert returns the offset of an identical blob seen earlier and
// false, or records candidate as the blob's offset and returns it and true.
// Blobs are compared by content; the hash only narrows the search.
func (t *BlobTable) GetOrInsert(blob []byte, candidate uint32) (uint32, bool) {
	key := sha256.Sum256(blob)
	for _, e := range t.entries[key] {
		if bytes.Equal(e.blob, blob) {
			t.hits++
			return e.offset, false
		}
	}
	t.entries[key] = append(t.entries[key], blobEntry{blob: blob, offset: candidate})
	t.unique++
	return candidate, true
}

// Kind returns the blob kind the table was created for.
func (t *BlobTable) Kind() string { return t.kind }

// Len returns the number of distinct blobs.
func (t *BlobTable) Len() int { return t.unique }

// Hits returns how many lookups found an existing blob.
func (t *BlobTable) Hits() int { return t.hits }
