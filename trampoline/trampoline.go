// Package trampoline generates the fixed helper stubs placed at the start of
// a base image's executable region. Each stub loads an entrypoint from the
// current thread (or from the JNI environment / interpreter frame passed in
// the first argument register) and jumps to it.
package trampoline

import (
	"encoding/binary"
	"fmt"

	"github.com/DroidSim/platform-art/isa"
)

// Kind names one stub. The order is the order of the offset table in the
// OAT header.
type Kind int

const (
	InterpreterToInterpreterBridge Kind = iota
	InterpreterToCompiledCodeBridge
	JniDlsymLookup
	PortableImtConflictTrampoline
	PortableResolutionTrampoline
	PortableToInterpreterBridge
	QuickGenericJniTrampoline
	QuickImtConflictTrampoline
	QuickResolutionTrampoline
	QuickToInterpreterBridge

	NumKinds = int(QuickToInterpreterBridge) + 1
)

var kindNames = [NumKinds]string{
	"interpreter_to_interpreter_bridge",
	"interpreter_to_compiled_code_bridge",
	"jni_dlsym_lookup",
	"portable_imt_conflict_trampoline",
	"portable_resolution_trampoline",
	"portable_to_interpreter_bridge",
	"quick_generic_jni_trampoline",
	"quick_imt_conflict_trampoline",
	"quick_resolution_trampoline",
	"quick_to_interpreter_bridge",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < NumKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds returns every kind in header order.
func Kinds() []Kind {
	out := make([]Kind, NumKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// ABI is the calling convention a stub is entered with. It decides which
// register holds the base the entrypoint is loaded from.
type ABI int

const (
	Interpreter ABI = iota // first argument is the interpreter's thread
	JNI                    // first argument is the JNIEnv
	Portable               // thread register
	Quick                  // thread register
)

func (a ABI) String() string {
	switch a {
	case Interpreter:
		return "interpreter"
	case JNI:
		return "jni"
	case Portable:
		return "portable"
	case Quick:
		return "quick"
	}
	return fmt.Sprintf("ABI(%d)", int(a))
}

// ABI returns the calling convention the stub is entered with.
func (k Kind) ABI() ABI {
	switch k {
	case InterpreterToInterpreterBridge, InterpreterToCompiledCodeBridge:
		return Interpreter
	case JniDlsymLookup:
		return JNI
	case PortableImtConflictTrampoline, PortableResolutionTrampoline, PortableToInterpreterBridge:
		return Portable
	default:
		return Quick
	}
}

// entrypointBase is the number of pointer-sized thread slots that precede
// the entrypoint table.
const entrypointBase = 32

// EntrypointOffset is the offset of the kind's entrypoint slot relative to
// the base register for a target with the given pointer size.
func EntrypointOffset(k Kind, pointerSize int) uint32 {
	return uint32((entrypointBase + int(k)) * pointerSize)
}

// JNIEnvSelfOffset is the offset of the owning thread pointer inside the
// JNI environment structure.
func JNIEnvSelfOffset(pointerSize int) uint32 {
	return uint32(pointerSize)
}

// Create returns the stub bytes for kind k on set.
func Create(set isa.InstructionSet, k Kind) ([]byte, error) {
	if k < 0 || int(k) >= NumKinds {
		return nil, fmt.Errorf("trampoline: invalid kind %d", int(k))
	}
	ptr := set.PointerSize()
	off := EntrypointOffset(k, ptr)
	switch set {
	case isa.Arm, isa.Thumb2:
		return armStub(k.ABI(), off), nil
	case isa.Arm64:
		return arm64Stub(k.ABI(), off), nil
	case isa.Mips:
		return mipsStub(k.ABI(), off), nil
	case isa.X86:
		return x86Stub(off), nil
	case isa.X86_64:
		return x86_64Stub(off), nil
	}
	return nil, fmt.Errorf("trampoline: unsupported instruction set %v", set)
}

func words(ws ...uint32) []byte {
	out := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}
