package oat

import (
	"encoding/binary"
	"errors"
	"hash/adler32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DroidSim/platform-art/compiled"
	"github.com/DroidSim/platform-art/dexfile"
	"github.com/DroidSim/platform-art/isa"
	"github.com/DroidSim/platform-art/trampoline"
)

func TestChecksumMatchesAdler32(t *testing.T) {
	c := NewChecksum()
	assert.Equal(t, uint32(1), c.Value())

	c.Update([]byte("oat"))
	c.UpdateUint32(0x01020304)
	assert.Equal(t, adler32.Checksum([]byte{'o', 'a', 't', 4, 3, 2, 1}), c.Value())
}

func TestHeaderEncoding(t *testing.T) {
	h := NewHeader(isa.Arm, isa.FeatureHwDiv|isa.FeatureLpae, 2, ImageInfo{
		OatChecksum:  0xCAFEBABE,
		OatDataBegin: 0x70000000,
		Location:     "/data/boot.art",
	})
	h.SetExecutableOffset(2 * isa.PageSize)
	h.SetTrampolineOffset(trampoline.QuickToInterpreterBridge, 2*isa.PageSize+64)

	b := h.AppendBinary(nil)
	require.Len(t, b, int(h.Size()))
	assert.Equal(t, 7*4+4*trampoline.NumKinds+3*4, HeaderFixedSize)
	assert.Equal(t, uint32(HeaderFixedSize+14), h.Size())
	assert.Equal(t, "oat\n024\x00", string(b[:8]))
	assert.Equal(t, h.Checksum, binary.LittleEndian.Uint32(b[8:]))
	assert.Equal(t, uint32(isa.Arm), binary.LittleEndian.Uint32(b[12:]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[16:]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(b[20:]))
	assert.Equal(t, uint32(2*isa.PageSize), binary.LittleEndian.Uint32(b[24:]))
	assert.Equal(t, uint32(2*isa.PageSize+64), binary.LittleEndian.Uint32(b[28+4*int(trampoline.QuickToInterpreterBridge):]))
	assert.Equal(t, "/data/boot.art", string(b[HeaderFixedSize:]))

	parsed, err := parseHeader(&reader{data: b})
	require.NoError(t, err)
	assert.Equal(t, h.Checksum, parsed.Checksum)
	assert.Equal(t, h.TrampolineOffsets, parsed.TrampolineOffsets)
	assert.Equal(t, h.ImageLocation, parsed.ImageLocation)
	assert.Equal(t, h.ImageOatDataBegin, parsed.ImageOatDataBegin)
}

func TestHeaderRejectsUnalignedExecutableOffset(t *testing.T) {
	h := NewHeader(isa.X86, 0, 1, ImageInfo{})
	requireInvariant(t, func() { h.SetExecutableOffset(isa.PageSize + 4) })
}

func TestHeaderOffsetsAreFolded(t *testing.T) {
	a := NewHeader(isa.X86, 0, 1, ImageInfo{})
	b := NewHeader(isa.X86, 0, 1, ImageInfo{})
	assert.Equal(t, a.Checksum, b.Checksum)
	a.SetExecutableOffset(isa.PageSize)
	b.SetExecutableOffset(2 * isa.PageSize)
	assert.NotEqual(t, a.Checksum, b.Checksum)
}

func TestBlobTable(t *testing.T) {
	bt := NewBlobTable("GC map")
	off, isNew := bt.GetOrInsert([]byte{1, 2, 3}, 100)
	assert.True(t, isNew)
	assert.Equal(t, uint32(100), off)

	// Equal content from a different slice resolves to the first offset.
	off, isNew = bt.GetOrInsert([]byte{1, 2, 3}, 200)
	assert.False(t, isNew)
	assert.Equal(t, uint32(100), off)

	off, isNew = bt.GetOrInsert([]byte{1, 2, 4}, 200)
	assert.True(t, isNew)
	assert.Equal(t, uint32(200), off)

	assert.Equal(t, "GC map", bt.Kind())
	assert.Equal(t, 2, bt.Len())
	assert.Equal(t, 1, bt.Hits())
}

func TestClassClassification(t *testing.T) {
	cm := &compiled.CompiledMethod{InstructionSet: isa.X86, QuickCode: []byte{0xC3}}
	methods := func(n int) []dexfile.Method {
		ms := make([]dexfile.Method, n)
		for i := range ms {
			ms[i] = method(uint32(i), 0)
		}
		return ms
	}

	tests := []struct {
		name    string
		cms     []*compiled.CompiledMethod
		typ     ClassType
		bitmap  []uint32
		size    uint32
		offsets []uint32
	}{
		{"no methods", nil, NoneCompiled, nil, 4, nil},
		{"nothing compiled", []*compiled.CompiledMethod{nil, nil}, NoneCompiled, nil, 4, []uint32{0, 0}},
		{"all compiled", []*compiled.CompiledMethod{cm, cm}, AllCompiled, nil, 4 + 2*28, []uint32{1004, 1032}},
		{"some compiled", []*compiled.CompiledMethod{nil, cm, nil}, SomeCompiled, []uint32{0b010}, 12 + 28, []uint32{0, 1012, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClassDescriptor(1000, compiled.StatusVerified, methods(len(tt.cms)), tt.cms)
			assert.Equal(t, tt.typ, c.Type)
			assert.Equal(t, tt.bitmap, c.Bitmap)
			assert.Equal(t, tt.size, c.Size())
			assert.Len(t, c.AppendBinary(nil), int(tt.size))
			for i, want := range tt.offsets {
				assert.Equal(t, want, c.MethodOffsetsOffset(i), "ordinal %d", i)
			}
		})
	}
}

func TestClassBitmapSpansWords(t *testing.T) {
	cm := &compiled.CompiledMethod{InstructionSet: isa.X86, QuickCode: []byte{0xC3}}
	cms := make([]*compiled.CompiledMethod, 33)
	cms[0], cms[32] = cm, cm
	ms := make([]dexfile.Method, 33)

	c := newClassDescriptor(0, compiled.StatusNotReady, ms, cms)
	assert.Equal(t, SomeCompiled, c.Type)
	assert.Equal(t, []uint32{1, 1}, c.Bitmap)
	assert.Len(t, c.MethodOffsets, 2)

	b := c.AppendBinary(nil)
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(b[4:]), "bitmap size is in bytes")
}

func TestParseRejects(t *testing.T) {
	mods, s := singleClassScenario(t)
	_, data := build(t, mods, s, ImageInfo{})

	bad := append([]byte(nil), data...)
	bad[0] = 'x'
	_, err := Parse(bad)
	assert.ErrorIs(t, err, ErrInvalidMagic)

	bad = append([]byte(nil), data...)
	copy(bad[4:], "023\x00")
	_, err = Parse(bad)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	_, err = Parse(data[:40])
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	_, err = Parse(data[:HeaderFixedSize+10])
	assert.True(t, errors.Is(err, ErrUnexpectedEOF) || errors.Is(err, ErrCorruptData), "got %v", err)

	// Every truncation before the executable region is an error, never a
	// panic. Past it, code bodies are not read.
	exec := int(readUint32(data[24:]))
	for n := 0; n < len(data); n++ {
		var err error
		require.NotPanics(t, func() { _, err = Parse(data[:n]) }, "truncated to %d bytes", n)
		if n < exec {
			assert.True(t, errors.Is(err, ErrUnexpectedEOF) || errors.Is(err, ErrCorruptData),
				"truncated to %d bytes: got %v", n, err)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	mods, s := singleClassScenario(t)
	w, data := build(t, mods, s, ImageInfo{OatChecksum: 9, OatDataBegin: 0x1000, Location: "boot.art"})

	f, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, w.Header().Checksum, f.Header.Checksum)
	assert.Equal(t, "boot.art", f.Header.ImageLocation)
	require.Len(t, f.Modules, 1)
	assert.Equal(t, "core.dex", f.Modules[0].Location)
	assert.Equal(t, mods[0].LocationChecksum, f.Modules[0].LocationChecksum)
	assert.Equal(t, []uint32{224}, f.Modules[0].ClassOffsets)
	assert.Nil(t, f.ModuleData[0], "module is not a dex file")

	require.Len(t, f.Classes[0], 1)
	c := f.Classes[0][0]
	assert.Equal(t, SomeCompiled, c.Type)
	assert.Equal(t, compiled.StatusVerified, c.Status)
	assert.Equal(t, w.ClassDescriptors()[0].MethodOffsets, c.MethodOffsets)

	code, err := f.Code(c.MethodOffsets[0].CodeOffset)
	require.NoError(t, err)
	assert.Equal(t, fill(16, 0x90), code)
	assert.Nil(t, f.Trampoline(trampoline.QuickToInterpreterBridge))
}
