package oat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DroidSim/platform-art/compiled"
	"github.com/DroidSim/platform-art/dexfile"
	"github.com/DroidSim/platform-art/isa"
)

func method(idx uint32, flags uint32) dexfile.Method {
	return dexfile.Method{Index: idx, Name: fmt.Sprintf("m%d", idx), AccessFlags: flags, Shorty: "V"}
}

func quickMethod(set isa.InstructionSet, code, gcMap []byte) *compiled.CompiledMethod {
	return &compiled.CompiledMethod{
		InstructionSet:   set,
		QuickCode:        code,
		FrameSizeInBytes: 32,
		CoreSpillMask:    0x4000,
		GcMap:            gcMap,
	}
}

func fill(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// addMethods registers compile results for a module, keyed by method index.
func addMethods(t *testing.T, s *compiled.Store, dex *dexfile.DexFile, methods map[uint32]*compiled.CompiledMethod) {
	t.Helper()
	for idx, cm := range methods {
		require.NoError(t, s.AddMethod(compiled.MethodReference{Dex: dex, Index: idx}, cm))
	}
}

func verifyAll(s *compiled.Store, dex *dexfile.DexFile) {
	for i := range dex.ClassDefs {
		s.SetClassStatus(compiled.ClassReference{Dex: dex, ClassDefIndex: i}, compiled.StatusVerified)
	}
}

// build lays out and writes an OAT file with checks enabled.
func build(t *testing.T, modules []*dexfile.DexFile, driver compiled.Driver, image ImageInfo) (*Writer, []byte) {
	t.Helper()
	ctx := context.Background()
	w, err := New(ctx, modules, driver, image, WithChecks(true))
	require.NoError(t, err)
	out := NewVectorOutputStream("test.oat")
	require.NoError(t, w.Write(ctx, out))
	require.Len(t, out.Bytes(), int(w.Size()))
	return w, out.Bytes()
}

// singleClassScenario is one module with one class of two methods: m0 is
// compiled with 16 bytes of x86 code, m1 is abstract.
func singleClassScenario(t *testing.T) ([]*dexfile.DexFile, *compiled.Store) {
	t.Helper()
	dex := dexfile.New("core.dex", fill(112, 0x5A), []dexfile.ClassDef{{
		Descriptor:     "LFoo;",
		DirectMethods:  []dexfile.Method{method(0, dexfile.AccPublic)},
		VirtualMethods: []dexfile.Method{method(1, dexfile.AccAbstract)},
	}})
	s := compiled.NewStore(isa.X86, 0, false)
	addMethods(t, s, dex, map[uint32]*compiled.CompiledMethod{
		0: quickMethod(isa.X86, fill(16, 0x90), fill(8, 0x01)),
	})
	verifyAll(s, dex)
	return []*dexfile.DexFile{dex}, s
}

// failingStream fails every write after the first n bytes.
type failingStream struct {
	VectorOutputStream
	budget int
}

var errDiskFull = errors.New("disk full")

func (s *failingStream) WriteFully(b []byte) error {
	if len(b) > s.budget {
		return errDiskFull
	}
	s.budget -= len(b)
	return s.VectorOutputStream.WriteFully(b)
}
