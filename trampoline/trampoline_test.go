package trampoline

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DroidSim/platform-art/isa"
)

func TestKindOrder(t *testing.T) {
	kinds := Kinds()
	require.Len(t, kinds, 10)
	assert.Equal(t, InterpreterToInterpreterBridge, kinds[0])
	assert.Equal(t, QuickToInterpreterBridge, kinds[9])
	assert.Equal(t, "quick_resolution_trampoline", QuickResolutionTrampoline.String())

	assert.Equal(t, Interpreter, InterpreterToCompiledCodeBridge.ABI())
	assert.Equal(t, JNI, JniDlsymLookup.ABI())
	assert.Equal(t, Portable, PortableResolutionTrampoline.ABI())
	assert.Equal(t, Quick, QuickGenericJniTrampoline.ABI())
}

func TestEntrypointOffset(t *testing.T) {
	assert.Equal(t, uint32(128), EntrypointOffset(InterpreterToInterpreterBridge, 4))
	assert.Equal(t, uint32((32+8)*8), EntrypointOffset(QuickResolutionTrampoline, 8))
}

func TestX86Stubs(t *testing.T) {
	code, err := Create(isa.X86, QuickResolutionTrampoline)
	require.NoError(t, err)
	require.Len(t, code, 8)
	assert.Equal(t, []byte{0x64, 0xFF, 0x25}, code[:3])
	assert.Equal(t, EntrypointOffset(QuickResolutionTrampoline, 4), binary.LittleEndian.Uint32(code[3:]))
	assert.Equal(t, byte(0xCC), code[7])

	code, err = Create(isa.X86_64, JniDlsymLookup)
	require.NoError(t, err)
	require.Len(t, code, 9)
	assert.Equal(t, EntrypointOffset(JniDlsymLookup, 8), binary.LittleEndian.Uint32(code[4:]))
}

func TestArmStubs(t *testing.T) {
	code, err := Create(isa.Thumb2, QuickToInterpreterBridge)
	require.NoError(t, err)
	require.Len(t, code, 8)
	off := EntrypointOffset(QuickToInterpreterBridge, 4)
	assert.Equal(t, 0xE5900000|9<<16|15<<12|off, binary.LittleEndian.Uint32(code))
	assert.Equal(t, uint32(armBkpt), binary.LittleEndian.Uint32(code[4:]))

	code, err = Create(isa.Arm, JniDlsymLookup)
	require.NoError(t, err)
	assert.Len(t, code, 12)
}

func TestArm64Stubs(t *testing.T) {
	code, err := Create(isa.Arm64, QuickResolutionTrampoline)
	require.NoError(t, err)
	require.Len(t, code, 12)
	assert.Equal(t, uint32(0xD61F0200), binary.LittleEndian.Uint32(code[4:]))
	assert.Equal(t, uint32(a64Brk), binary.LittleEndian.Uint32(code[8:]))

	code, err = Create(isa.Arm64, JniDlsymLookup)
	require.NoError(t, err)
	assert.Len(t, code, 16)
}

func TestMipsStubs(t *testing.T) {
	code, err := Create(isa.Mips, InterpreterToCompiledCodeBridge)
	require.NoError(t, err)
	require.Len(t, code, 16)
	assert.Equal(t, uint32(0x03200008), binary.LittleEndian.Uint32(code[4:]))
	assert.Equal(t, uint32(mipsBreak), binary.LittleEndian.Uint32(code[12:]))
}

func TestCreateRejects(t *testing.T) {
	_, err := Create(isa.None, QuickResolutionTrampoline)
	assert.Error(t, err)
	_, err = Create(isa.X86, Kind(42))
	assert.Error(t, err)
}
