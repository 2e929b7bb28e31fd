package dexfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of a dex file header item.
	HeaderSize = 112

	endianConstant = 0x12345678
)

// Magic prefix shared by every dex version ("dex\n" followed by "0NN\0").
var Magic = [4]byte{'d', 'e', 'x', '\n'}

// ErrNotDex is returned by ReadHeader for data that is not a dex file.
var ErrNotDex = errors.New("dexfile: not a dex file")

// Header holds the dex header fields the writer consults.
type Header struct {
	Magic         [8]byte
	Checksum      uint32
	Signature     [20]byte
	FileSize      uint32
	HeaderSize    uint32
	EndianTag     uint32
	ClassDefsSize uint32
	ClassDefsOff  uint32
}

// ReadHeader decodes the fixed dex header at the start of data.
func ReadHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize || !bytes.Equal(data[:4], Magic[:]) {
		return nil, ErrNotDex
	}
	var h Header
	copy(h.Magic[:], data[0:8])
	h.Checksum = binary.LittleEndian.Uint32(data[8:])
	copy(h.Signature[:], data[12:32])
	h.FileSize = binary.LittleEndian.Uint32(data[32:])
	h.HeaderSize = binary.LittleEndian.Uint32(data[36:])
	h.EndianTag = binary.LittleEndian.Uint32(data[40:])
	h.ClassDefsSize = binary.LittleEndian.Uint32(data[96:])
	h.ClassDefsOff = binary.LittleEndian.Uint32(data[100:])

	if h.EndianTag != endianConstant {
		return nil, fmt.Errorf("dexfile: unsupported endian tag %#x", h.EndianTag)
	}
	if h.HeaderSize != HeaderSize {
		return nil, fmt.Errorf("dexfile: header size %d, want %d", h.HeaderSize, HeaderSize)
	}
	if int(h.FileSize) != len(data) {
		return nil, fmt.Errorf("dexfile: file size %d does not match %d bytes", h.FileSize, len(data))
	}
	return &h, nil
}

// SizeOf returns the file size recorded in the dex header at the start of
// data, which may extend past the dex file. ok is false when data does not
// start with a dex header.
func SizeOf(data []byte) (size uint32, ok bool) {
	if len(data) < HeaderSize || !bytes.Equal(data[:4], Magic[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[32:]), true
}
