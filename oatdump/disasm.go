package oatdump

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/DroidSim/platform-art/isa"
)

// Disassemble renders code as one line per instruction, each prefixed with
// its offset from pc and its raw bytes. Bytes that do not decode are shown
// as data and decoding resumes after them.
func Disassemble(set isa.InstructionSet, code []byte, pc uint32) []string {
	var lines []string
	emit := func(off int, raw []byte, text string) {
		var hexBytes []string
		for _, b := range raw {
			hexBytes = append(hexBytes, fmt.Sprintf("%02x", b))
		}
		lines = append(lines, fmt.Sprintf("0x%04x: %-16s %s", pc+uint32(off), strings.Join(hexBytes, " "), text))
	}

	for off := 0; off < len(code); {
		n, text := decodeOne(set, code[off:])
		if n == 0 {
			n, text = dataUnit(set, code[off:])
		}
		emit(off, code[off:off+n], text)
		off += n
	}
	return lines
}

// decodeOne returns the length and text of the instruction at the start of
// src, or 0 when there is none.
func decodeOne(set isa.InstructionSet, src []byte) (int, string) {
	switch set {
	case isa.X86, isa.X86_64:
		mode := 32
		if set == isa.X86_64 {
			mode = 64
		}
		inst, err := x86asm.Decode(src, mode)
		if err != nil || inst.Len == 0 {
			return 0, ""
		}
		return inst.Len, inst.String()
	case isa.Arm64:
		if len(src) < 4 {
			return 0, ""
		}
		inst, err := arm64asm.Decode(src[:4])
		if err != nil {
			return 0, ""
		}
		return 4, inst.String()
	case isa.Arm, isa.Thumb2:
		mode := armasm.ModeARM
		if set == isa.Thumb2 {
			mode = armasm.ModeThumb
		}
		inst, err := armasm.Decode(src, mode)
		if err != nil || inst.Len == 0 {
			return 0, ""
		}
		return inst.Len, inst.String()
	}
	return 0, ""
}

// dataUnit shows undecodable bytes as one word, halfword or byte,
// whichever the instruction set's unit is.
func dataUnit(set isa.InstructionSet, src []byte) (int, string) {
	switch {
	case (set == isa.Arm || set == isa.Arm64 || set == isa.Mips) && len(src) >= 4:
		return 4, fmt.Sprintf(".word 0x%08x", binary.LittleEndian.Uint32(src))
	case set == isa.Thumb2 && len(src) >= 2:
		return 2, fmt.Sprintf(".hword 0x%04x", binary.LittleEndian.Uint16(src))
	}
	return 1, fmt.Sprintf("db 0x%02x", src[0])
}
