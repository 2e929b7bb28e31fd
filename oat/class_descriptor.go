package oat

import (
	"math/bits"

	"github.com/DroidSim/platform-art/compiled"
	"github.com/DroidSim/platform-art/dexfile"
)

// ClassDescriptor records which methods of a class were compiled and holds
// one MethodOffsets per compiled method, in method ordinal order.
type ClassDescriptor struct {
	Status        compiled.ClassStatus
	Type          ClassType
	Bitmap        []uint32 // SomeCompiled only; bit i set when ordinal i is compiled
	MethodOffsets []MethodOffsets

	offset   uint32
	methods  []dexfile.Method
	compiled []*compiled.CompiledMethod
	// relative offset of each ordinal's MethodOffsets, 0 when not compiled
	offsetsOffsets []uint32
}

func newClassDescriptor(offset uint32, status compiled.ClassStatus, methods []dexfile.Method, cms []*compiled.CompiledMethod) *ClassDescriptor {
	check(len(methods) == len(cms), "class has %d methods but %d compile results", len(methods), len(cms))
	c := &ClassDescriptor{
		Status:         status,
		offset:         offset,
		methods:        methods,
		compiled:       cms,
		offsetsOffsets: make([]uint32, len(cms)),
	}

	numCompiled := 0
	for _, cm := range cms {
		if cm != nil {
			numCompiled++
		}
	}
	switch {
	case len(cms) == 0 || numCompiled == 0:
		c.Type = NoneCompiled
	case numCompiled == len(cms):
		c.Type = AllCompiled
	default:
		c.Type = SomeCompiled
		c.Bitmap = make([]uint32, (len(cms)+31)/32)
	}

	rel := c.headerSize()
	for i, cm := range cms {
		if cm == nil {
			continue
		}
		if c.Bitmap != nil {
			c.Bitmap[i/32] |= 1 << (i % 32)
		}
		c.offsetsOffsets[i] = rel
		rel += MethodOffsetsSize
	}
	c.MethodOffsets = make([]MethodOffsets, numCompiled)
	check(c.bitmapPopCount() == numCompiled || c.Type != SomeCompiled,
		"bitmap has %d bits for %d compiled methods", c.bitmapPopCount(), numCompiled)
	return c
}

func (c *ClassDescriptor) headerSize() uint32 {
	size := uint32(2 + 2)
	if c.Type == SomeCompiled {
		size += 4 + 4*uint32(len(c.Bitmap))
	}
	return size
}

func (c *ClassDescriptor) bitmapPopCount() int {
	n := 0
	for _, w := range c.Bitmap {
		n += bits.OnesCount32(w)
	}
	return n
}

// Offset is the absolute offset of the descriptor.
func (c *ClassDescriptor) Offset() uint32 { return c.offset }

// Size is the serialized size of the descriptor.
func (c *ClassDescriptor) Size() uint32 {
	return c.headerSize() + MethodOffsetsSize*uint32(len(c.MethodOffsets))
}

// NumMethods is the number of method ordinals, compiled or not.
func (c *ClassDescriptor) NumMethods() int { return len(c.compiled) }

// CompiledMethod returns the compile result for an ordinal, or nil.
func (c *ClassDescriptor) CompiledMethod(ordinal int) *compiled.CompiledMethod {
	return c.compiled[ordinal]
}

// MethodOffsetsOffset is the absolute offset of the ordinal's MethodOffsets,
// or 0 when the method was not compiled.
func (c *ClassDescriptor) MethodOffsetsOffset(ordinal int) uint32 {
	if c.offsetsOffsets[ordinal] == 0 {
		return 0
	}
	return c.offset + c.offsetsOffsets[ordinal]
}

// UpdateChecksum folds the serialized descriptor into the header checksum.
func (c *ClassDescriptor) UpdateChecksum(h *Header) {
	h.UpdateChecksum(c.AppendBinary(nil))
}

// AppendBinary serializes the descriptor.
func (c *ClassDescriptor) AppendBinary(b []byte) []byte {
	b = appendUint16(b, uint16(c.Status))
	b = appendUint16(b, uint16(c.Type))
	if c.Type == SomeCompiled {
		b = appendUint32(b, 4*uint32(len(c.Bitmap)))
		for _, w := range c.Bitmap {
			b = appendUint32(b, w)
		}
	}
	for _, mo := range c.MethodOffsets {
		b = mo.AppendBinary(b)
	}
	return b
}
