// Package compiled holds what the compiler and class resolution produce for
// the OAT writer: per-method machine code with its side tables, per-class
// verification status, trampolines, and the live method records of a base
// image that the writer fills in with final offsets.
package compiled

import (
	"errors"
	"slices"

	"github.com/DroidSim/platform-art/isa"
)

// CompiledMethod is the compiler's output for one method. It is immutable
// once handed to the writer, apart from the oatdata offsets recorded for
// portable code.
type CompiledMethod struct {
	InstructionSet isa.InstructionSet

	// Exactly one of QuickCode and PortableCode is set.
	QuickCode    []byte
	PortableCode []byte

	FrameSizeInBytes uint32
	CoreSpillMask    uint32
	FpSpillMask      uint32

	MappingTable []byte
	VmapTable    []byte
	GcMap        []byte

	// CFIInfo is an optional frame description entry for the code.
	CFIInfo []byte

	oatdataOffsets []uint32
}

var (
	errBothCodes = errors.New("compiled: method has both quick and portable code")
	errNoCode    = errors.New("compiled: method has neither quick nor portable code")
	errNoISA     = errors.New("compiled: method has no instruction set")
)

// Validate checks the shape of the method.
func (m *CompiledMethod) Validate() error {
	switch {
	case m.InstructionSet == isa.None:
		return errNoISA
	case len(m.QuickCode) != 0 && len(m.PortableCode) != 0:
		return errBothCodes
	case len(m.QuickCode) == 0 && len(m.PortableCode) == 0:
		return errNoCode
	}
	return nil
}

// IsPortable reports whether the method carries portable code.
func (m *CompiledMethod) IsPortable() bool {
	return len(m.PortableCode) != 0
}

// AlignCode rounds offset up to the method's code alignment.
func (m *CompiledMethod) AlignCode(offset uint32) uint32 {
	return m.InstructionSet.AlignCode(offset)
}

// CodeDelta is added to the code start to form the entrypoint.
func (m *CompiledMethod) CodeDelta() uint32 {
	return m.InstructionSet.CodeDelta()
}

// AddOatdataOffsetToCompiledCodeOffset records the file offset of the
// code-offset field that must be patched once portable code is linked.
// Recording the same offset twice is a no-op.
func (m *CompiledMethod) AddOatdataOffsetToCompiledCodeOffset(off uint32) {
	if slices.Contains(m.oatdataOffsets, off) {
		return
	}
	m.oatdataOffsets = append(m.oatdataOffsets, off)
}

// OatdataOffsets returns the recorded patch locations.
func (m *CompiledMethod) OatdataOffsets() []uint32 {
	return slices.Clone(m.oatdataOffsets)
}
