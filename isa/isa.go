// Package isa describes the target instruction sets an OAT file can carry
// code for, and the per-architecture layout rules (code alignment, code
// delta, pointer size) the writer has to honour.
package isa

import (
	"fmt"
	"strings"
)

// InstructionSet identifies the target architecture of compiled code.
type InstructionSet uint32

const (
	None InstructionSet = iota
	Arm
	Arm64
	Thumb2
	X86
	X86_64
	Mips
)

// PageSize is the alignment of the executable region.
const PageSize = 4096

// StackAlignment is the required alignment of every stack frame.
const StackAlignment = 16

// Code alignment per architecture, in bytes.
const (
	ArmAlignment   = 8
	Arm64Alignment = 16
	MipsAlignment  = 8
	X86Alignment   = 16
)

var names = map[InstructionSet]string{
	None:   "none",
	Arm:    "arm",
	Arm64:  "arm64",
	Thumb2: "thumb2",
	X86:    "x86",
	X86_64: "x86_64",
	Mips:   "mips",
}

// String returns the canonical lower-case name.
func (s InstructionSet) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("InstructionSet(%d)", uint32(s))
}

// Parse converts a name such as "arm64" or "x86-64" to an InstructionSet.
func Parse(name string) (InstructionSet, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	for s, canonical := range names {
		if s != None && canonical == n {
			return s, nil
		}
	}
	return None, fmt.Errorf("isa: unknown instruction set %q", name)
}

// CodeAlignment returns the mandatory alignment of a code body start.
// It returns 0 for None.
func (s InstructionSet) CodeAlignment() uint32 {
	switch s {
	case Arm, Thumb2:
		return ArmAlignment
	case Arm64:
		return Arm64Alignment
	case Mips:
		return MipsAlignment
	case X86, X86_64:
		return X86Alignment
	default:
		return 0
	}
}

// AlignCode rounds offset up to the instruction set's code alignment.
func (s InstructionSet) AlignCode(offset uint32) uint32 {
	a := s.CodeAlignment()
	if a == 0 {
		panic(fmt.Sprintf("isa: no code alignment for %v", s))
	}
	return RoundUp(offset, a)
}

// CodeDelta is the value added to a code start address to form the
// entrypoint. Thumb2 entrypoints carry the interworking bit.
func (s InstructionSet) CodeDelta() uint32 {
	if s == Thumb2 {
		return 1
	}
	return 0
}

// PointerSize returns the target pointer width in bytes.
func (s InstructionSet) PointerSize() int {
	if s.Is64Bit() {
		return 8
	}
	return 4
}

// Is64Bit reports whether the target uses 64-bit pointers.
func (s InstructionSet) Is64Bit() bool {
	return s == Arm64 || s == X86_64
}

// RoundUp rounds x up to a multiple of n, which must be a power of two.
func RoundUp(x, n uint32) uint32 {
	return (x + n - 1) &^ (n - 1)
}

// IsAligned reports whether x is a multiple of the power-of-two n.
func IsAligned(x, n uint32) bool {
	return x&(n-1) == 0
}
