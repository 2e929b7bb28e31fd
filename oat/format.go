package oat

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// OAT Format Constants
// ---------------------------------------------------------------------------

// Magic identifies an OAT file.
var Magic = [4]byte{'o', 'a', 't', '\n'}

// Version is the format version written into every header.
var Version = [4]byte{'0', '2', '4', '\x00'}

// HeaderFixedSize is the size of the header before the image location string.
// magic(4) + version(4) + checksum(4) + isa(4) + features(4) + moduleCount(4)
// + executableOffset(4) + trampolines(10*4) + imageOatChecksum(4)
// + imageOatDataBegin(4) + imageLocationSize(4) = 80
//
// It is untyped so it mixes with both int lengths and uint32 offsets.
const HeaderFixedSize = 80

// MethodOffsetsSize is the serialized size of one MethodOffsets record.
const MethodOffsetsSize = 7 * 4

// MethodHeaderSize is the size of the header placed before every code body.
const MethodHeaderSize = 4

// ModuleAlignment is the alignment of every embedded module.
const ModuleAlignment = 4

// ClassType records how many of a class's methods were compiled.
type ClassType uint16

const (
	AllCompiled  ClassType = 0
	SomeCompiled ClassType = 1
	NoneCompiled ClassType = 2
)

func (t ClassType) String() string {
	switch t {
	case AllCompiled:
		return "all-compiled"
	case SomeCompiled:
		return "some-compiled"
	case NoneCompiled:
		return "none-compiled"
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// Binary encoding helpers
// ---------------------------------------------------------------------------

func appendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func uint32Bytes(v uint32) []byte {
	return appendUint32(make([]byte, 0, 4), v)
}

func readUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
