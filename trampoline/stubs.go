package trampoline

import "encoding/binary"

// arm (A32 encoding, also used for thumb2 images)
const (
	armR0 = 0
	armR9 = 9 // thread register
	armIP = 12
	armPC = 15

	armBkpt = 0xE1200070
)

func armLdr(rt, rn, imm uint32) uint32 {
	return 0xE5900000 | rn<<16 | rt<<12 | imm&0xFFF
}

func armStub(abi ABI, off uint32) []byte {
	switch abi {
	case Interpreter:
		return words(armLdr(armPC, armR0, off), armBkpt)
	case JNI:
		return words(
			armLdr(armIP, armR0, JNIEnvSelfOffset(4)),
			armLdr(armPC, armIP, off),
			armBkpt,
		)
	default:
		return words(armLdr(armPC, armR9, off), armBkpt)
	}
}

// arm64
const (
	a64X0  = 0
	a64IP0 = 16
	a64IP1 = 17
	a64TR  = 18 // thread register

	a64Brk = 0xD4200000
)

func a64Ldr(rt, rn, off uint32) uint32 {
	return 0xF9400000 | (off/8)<<10 | rn<<5 | rt
}

func a64Br(rn uint32) uint32 {
	return 0xD61F0000 | rn<<5
}

func arm64Stub(abi ABI, off uint32) []byte {
	switch abi {
	case Interpreter:
		return words(a64Ldr(a64IP1, a64X0, off), a64Br(a64IP1), a64Brk)
	case JNI:
		return words(
			a64Ldr(a64IP1, a64X0, JNIEnvSelfOffset(8)),
			a64Ldr(a64IP0, a64IP1, off),
			a64Br(a64IP0),
			a64Brk,
		)
	default:
		return words(a64Ldr(a64IP0, a64TR, off), a64Br(a64IP0), a64Brk)
	}
}

// mips
const (
	mipsA0 = 4
	mipsS1 = 17 // thread register
	mipsT9 = 25

	mipsNop   = 0x00000000
	mipsBreak = 0x0000000D
)

func mipsLw(rt, rs, imm uint32) uint32 {
	return 0x8C000000 | rs<<21 | rt<<16 | imm&0xFFFF
}

func mipsJr(rs uint32) uint32 {
	return rs<<21 | 0x08
}

func mipsStub(abi ABI, off uint32) []byte {
	var load []uint32
	switch abi {
	case Interpreter:
		load = []uint32{mipsLw(mipsT9, mipsA0, off)}
	case JNI:
		load = []uint32{
			mipsLw(mipsT9, mipsA0, JNIEnvSelfOffset(4)),
			mipsLw(mipsT9, mipsT9, off),
		}
	default:
		load = []uint32{mipsLw(mipsT9, mipsS1, off)}
	}
	return words(append(load, mipsJr(mipsT9), mipsNop, mipsBreak)...)
}

// x86: jmp fs:[off]; int3. Every ABI dispatches through the thread segment.
func x86Stub(off uint32) []byte {
	out := []byte{0x64, 0xFF, 0x25, 0, 0, 0, 0, 0xCC}
	binary.LittleEndian.PutUint32(out[3:], off)
	return out
}

// x86_64: jmp gs:[off]; int3.
func x86_64Stub(off uint32) []byte {
	out := []byte{0x65, 0xFF, 0x24, 0x25, 0, 0, 0, 0, 0xCC}
	binary.LittleEndian.PutUint32(out[4:], off)
	return out
}
