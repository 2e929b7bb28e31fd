package oat

import (
	"encoding/binary"
	"fmt"

	"github.com/DroidSim/platform-art/compiled"
	"github.com/DroidSim/platform-art/dexfile"
	"github.com/DroidSim/platform-art/isa"
)

// ---------------------------------------------------------------------------
// Layout pass visitors
// ---------------------------------------------------------------------------

// initClassesVisitor gathers compile results per class and creates the
// class descriptors, in traversal order.
type initClassesVisitor struct {
	w      *Writer
	offset uint32

	dex           *dexfile.DexFile
	classDefIndex int
	methods       []dexfile.Method
	cms           []*compiled.CompiledMethod
}

func (v *initClassesVisitor) StartClass(dex *dexfile.DexFile, classDefIndex int) error {
	v.dex = dex
	v.classDefIndex = classDefIndex
	v.methods = nil
	v.cms = nil
	return nil
}

func (v *initClassesVisitor) ProcessMethod(ordinal int, m dexfile.Method) error {
	check(ordinal == len(v.cms), "method ordinal %d out of sequence", ordinal)
	cm := v.w.driver.CompiledMethod(compiled.MethodReference{Dex: v.dex, Index: m.Index})
	if cm != nil {
		if err := cm.Validate(); err != nil {
			panic(invariantf("%s: %v", v.dex.PrettyMethod(v.classDefIndex, m), err))
		}
	}
	v.methods = append(v.methods, m)
	v.cms = append(v.cms, cm)
	return nil
}

func (v *initClassesVisitor) EndClass() error {
	ref := compiled.ClassReference{Dex: v.dex, ClassDefIndex: v.classDefIndex}
	status, ok := v.w.driver.CompiledClassStatus(ref)
	if !ok {
		if v.w.driver.IsClassRejected(ref) {
			status = compiled.StatusError
		} else {
			status = compiled.StatusNotReady
		}
	}
	c := newClassDescriptor(v.offset, status, v.methods, v.cms)
	v.w.classes = append(v.w.classes, c)
	v.offset += c.Size()
	return nil
}

// initCodeVisitor places code bodies, fills code offsets, frame sizes and
// spill masks, and collects CFI and debug info.
type initCodeVisitor struct {
	classCursor
	w      *Writer
	offset uint32
}

func (v *initCodeVisitor) ProcessMethod(ordinal int, m dexfile.Method) error {
	cm, mo := v.nextCompiled(ordinal)
	if cm == nil {
		return nil
	}
	var codeOffset uint32
	if cm.IsPortable() {
		// The linker patches the code offset field once portable code has
		// an address.
		cm.AddOatdataOffsetToCompiledCodeOffset(v.cls.MethodOffsetsOffset(ordinal))
	} else {
		code := cm.QuickCode
		start := cm.AlignCode(v.offset + MethodHeaderSize)
		placed, isNew := v.w.code.GetOrInsert(code, start)
		if isNew {
			v.w.header.updateUint32(uint32(len(code)))
			v.w.header.UpdateChecksum(code)
			v.offset = start + uint32(len(code))
		}
		codeOffset = placed + cm.CodeDelta()
		v.recordDebugInfo(m, cm, placed)
	}

	if v.w.checked {
		check(len(cm.GcMap) != 0 || m.IsNative() || v.cls.Status < compiled.StatusVerified,
			"%s has no GC map (class status %v)", v.prettyMethod(m), v.cls.Status)
	}

	*mo = MethodOffsets{
		CodeOffset:       codeOffset,
		FrameSizeInBytes: cm.FrameSizeInBytes,
		CoreSpillMask:    cm.CoreSpillMask,
		FpSpillMask:      cm.FpSpillMask,
	}
	return nil
}

// recordDebugInfo appends the method's frame description entry, relocated
// to the code start, to the driver's CFI buffer.
func (v *initCodeVisitor) recordDebugInfo(m dexfile.Method, cm *compiled.CompiledMethod, codeStart uint32) {
	cfi := v.w.driver.CallFrameInformation()
	if cfi == nil || len(cm.CFIInfo) == 0 {
		return
	}
	check(len(cm.CFIInfo) >= 12, "%s: FDE is %d bytes", v.prettyMethod(m), len(cm.CFIInfo))
	low := codeStart - v.w.header.ExecutableOffset
	at := cfi.Append(cm.CFIInfo)
	binary.LittleEndian.PutUint32(cfi.Data[at+8:], low)
	v.w.methodInfo = append(v.w.methodInfo, DebugInfo{
		Name: v.prettyMethod(m),
		Low:  low,
		High: low + uint32(len(cm.QuickCode)),
	})
}

// sideTable selects one kind of per-method side table.
type sideTable struct {
	name  string
	table func(w *Writer) *BlobTable
	blob  func(cm *compiled.CompiledMethod) []byte
	field func(mo *MethodOffsets) *uint32
	stat  func(s *Stats) *uint32
}

// Side tables, in file order.
var sideTables = []sideTable{
	{
		name:  "GC map",
		table: func(w *Writer) *BlobTable { return w.gcMaps },
		blob:  func(cm *compiled.CompiledMethod) []byte { return cm.GcMap },
		field: func(mo *MethodOffsets) *uint32 { return &mo.GcMapOffset },
		stat:  func(s *Stats) *uint32 { return &s.GcMap },
	},
	{
		name:  "mapping table",
		table: func(w *Writer) *BlobTable { return w.mappingTables },
		blob:  func(cm *compiled.CompiledMethod) []byte { return cm.MappingTable },
		field: func(mo *MethodOffsets) *uint32 { return &mo.MappingTableOffset },
		stat:  func(s *Stats) *uint32 { return &s.MappingTable },
	},
	{
		name:  "vmap table",
		table: func(w *Writer) *BlobTable { return w.vmapTables },
		blob:  func(cm *compiled.CompiledMethod) []byte { return cm.VmapTable },
		field: func(mo *MethodOffsets) *uint32 { return &mo.VmapTableOffset },
		stat:  func(s *Stats) *uint32 { return &s.VmapTable },
	},
}

// initMapVisitor places one kind of side table.
type initMapVisitor struct {
	classCursor
	w      *Writer
	kind   sideTable
	offset uint32
}

func (v *initMapVisitor) ProcessMethod(ordinal int, m dexfile.Method) error {
	cm, mo := v.nextCompiled(ordinal)
	if cm == nil {
		return nil
	}
	blob := v.kind.blob(cm)
	if len(blob) == 0 {
		*v.kind.field(mo) = 0
		return nil
	}
	placed, isNew := v.kind.table(v.w).GetOrInsert(blob, v.offset)
	if isNew {
		v.w.header.UpdateChecksum(blob)
		v.offset += uint32(len(blob))
	}
	*v.kind.field(mo) = placed
	return nil
}

// initImageVisitor copies final offsets into the live method records of a
// base image build.
type initImageVisitor struct {
	classCursor
	w *Writer
}

func (v *initImageVisitor) ProcessMethod(ordinal int, m dexfile.Method) error {
	offsets := MethodOffsets{FrameSizeInBytes: isa.StackAlignment}
	cm, mo := v.nextCompiled(ordinal)
	if cm != nil {
		offsets = *mo
	}
	if m.IsNative() && cm == nil {
		// Generic JNI: the frame holds every reference argument plus the
		// receiver or class.
		offsets = genericJniFrame(v.w.driver.InstructionSet(), v.w.driver.CalleeSaveFrame(), m.Shorty)
	}

	ref := compiled.MethodReference{Dex: v.dex, Index: m.Index}
	rec, err := v.w.driver.ResolveMethod(ref)
	if err != nil {
		return fmt.Errorf("oat: resolve %s: %w", v.prettyMethod(m), err)
	}
	if cm != nil && cm.IsPortable() {
		rec.PortableCodeOffset = offsets.CodeOffset
	} else {
		rec.QuickCodeOffset = offsets.CodeOffset
	}
	rec.FrameSizeInBytes = offsets.FrameSizeInBytes
	rec.CoreSpillMask = offsets.CoreSpillMask
	rec.FpSpillMask = offsets.FpSpillMask
	rec.MappingTableOffset = offsets.MappingTableOffset
	rec.VmapTableOffset = offsets.VmapTableOffset
	rec.GcMapOffset = offsets.GcMapOffset
	return nil
}

func genericJniFrame(set isa.InstructionSet, callee compiled.FrameInfo, shorty string) MethodOffsets {
	refs := 1 + dexfile.NumReferenceArgs(shorty)
	table := isa.RoundUp(uint32(set.PointerSize()+4+4*refs), isa.StackAlignment)
	return MethodOffsets{
		FrameSizeInBytes: callee.FrameSizeInBytes + table,
		CoreSpillMask:    callee.CoreSpillMask,
		FpSpillMask:      callee.FpSpillMask,
	}
}
