// Package oat lays out and writes OAT files: the header, one descriptor per
// input module, the embedded modules, one descriptor per class, and a
// page-aligned executable region with trampolines, code and side tables.
//
// Writing happens in two passes over the same traversal. New computes every
// offset and the checksum; Write emits bytes that must land exactly where
// New put them.
package oat

import (
	"context"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/DroidSim/platform-art/compiled"
	"github.com/DroidSim/platform-art/dexfile"
	"github.com/DroidSim/platform-art/isa"
	"github.com/DroidSim/platform-art/trampoline"
)

var log = commonlog.GetLogger("oat")

const tracerName = "github.com/DroidSim/platform-art/oat"

// DebugInfo locates one method's code relative to the executable region.
type DebugInfo struct {
	Name string
	Low  uint32
	High uint32
}

// Sections records where each region of the file starts. End is the total
// size.
type Sections struct {
	ModuleDescriptors uint32
	Modules           uint32
	ClassDescriptors  uint32
	Executable        uint32
	Code              uint32
	GcMaps            uint32
	MappingTables     uint32
	VmapTables        uint32
	End               uint32
}

// Option configures a Writer.
type Option func(*Writer)

// WithChecks enables the stream position, deduplication replay and size
// cross-checks of the write pass, and the GC map sanity check.
func WithChecks(on bool) Option {
	return func(w *Writer) { w.checked = on }
}

// WithTracer sets the tracer used for per-stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(w *Writer) { w.tracer = t }
}

// Writer holds the complete layout of one OAT file.
type Writer struct {
	driver  compiled.Driver
	modules []*dexfile.DexFile
	isImage bool
	checked bool
	tracer  trace.Tracer

	header      *Header
	descriptors []*ModuleDescriptor
	classes     []*ClassDescriptor
	trampolines [trampoline.NumKinds][]byte

	code          *BlobTable
	gcMaps        *BlobTable
	mappingTables *BlobTable
	vmapTables    *BlobTable

	methodInfo []DebugInfo
	sections   Sections
	size       uint32
	stats      *Stats
}

// New computes the layout of an OAT file for modules. Compile results are
// read from driver and must not change afterwards. It fails when the
// target is unset, when a base image build names another image, or when a
// method of a base image cannot be resolved.
func New(ctx context.Context, modules []*dexfile.DexFile, driver compiled.Driver, image ImageInfo, opts ...Option) (*Writer, error) {
	w := &Writer{
		driver:        driver,
		modules:       modules,
		isImage:       driver.IsImage(),
		tracer:        otel.Tracer(tracerName),
		code:          NewBlobTable("code"),
		gcMaps:        NewBlobTable("GC map"),
		mappingTables: NewBlobTable("mapping table"),
		vmapTables:    NewBlobTable("vmap table"),
	}
	for _, opt := range opts {
		opt(w)
	}

	set := driver.InstructionSet()
	if set == isa.None {
		return nil, errors.New("oat: no instruction set")
	}
	if w.isImage && image.Location != "" {
		return nil, fmt.Errorf("oat: base image build cannot reference image %q", image.Location)
	}

	ctx, span := w.tracer.Start(ctx, "oat.layout")
	defer span.End()

	w.header = NewHeader(set, driver.InstructionSetFeatures(), uint32(len(modules)), image)
	offset := w.header.Size()

	var err error
	for _, stage := range []struct {
		name string
		fn   func(uint32) (uint32, error)
	}{
		{"module descriptors", w.initModuleDescriptors},
		{"modules", w.initModules},
		{"class descriptors", w.initClassDescriptors},
		{"executable", w.initExecutable},
		{"code", w.initCode},
		{"side tables", w.initSideTables},
		{"image", w.initImage},
	} {
		if offset, err = w.stage(ctx, "oat.layout."+stage.name, offset, stage.fn); err != nil {
			span.RecordError(err)
			log.Errorf("layout failed in %s stage: %s", stage.name, err)
			return nil, err
		}
	}

	// Method offsets are final only now.
	for _, c := range w.classes {
		c.UpdateChecksum(w.header)
	}

	w.size = offset
	w.sections.End = offset
	log.Debugf("layout: %d modules, %d classes, %d bytes, checksum %#08x",
		len(modules), len(w.classes), w.size, w.header.Checksum)
	return w, nil
}

func (w *Writer) stage(ctx context.Context, name string, offset uint32, fn func(uint32) (uint32, error)) (uint32, error) {
	_, span := w.tracer.Start(ctx, name)
	defer span.End()
	next, err := fn(offset)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	check(next >= offset, "%s moved offset backwards from %#x to %#x", name, offset, next)
	log.Debugf("%s: %#x..%#x", name, offset, next)
	return next, nil
}

func (w *Writer) initModuleDescriptors(offset uint32) (uint32, error) {
	w.sections.ModuleDescriptors = offset
	for _, d := range w.modules {
		md := newModuleDescriptor(d)
		w.descriptors = append(w.descriptors, md)
		offset += md.Size()
	}
	return offset, nil
}

func (w *Writer) initModules(offset uint32) (uint32, error) {
	w.sections.Modules = offset
	for _, md := range w.descriptors {
		offset = isa.RoundUp(offset, ModuleAlignment)
		md.DexFileOffset = offset
		offset += md.dex.FileSize()
	}
	return offset, nil
}

func (w *Writer) initClassDescriptors(offset uint32) (uint32, error) {
	w.sections.ClassDescriptors = offset
	v := &initClassesVisitor{w: w, offset: offset}
	if err := VisitMethods(w.modules, v); err != nil {
		return 0, err
	}

	i := 0
	for _, md := range w.descriptors {
		for ci := range md.ClassOffsets {
			check(i < len(w.classes), "module %s has more classes than descriptors", md.Location)
			md.ClassOffsets[ci] = w.classes[i].offset
			i++
		}
		md.UpdateChecksum(w.header)
	}
	check(i == len(w.classes), "%d class descriptors for %d classes", len(w.classes), i)
	return v.offset, nil
}

func (w *Writer) initExecutable(offset uint32) (uint32, error) {
	if len(w.modules) == 0 && !w.isImage {
		w.sections.Executable = offset
		return offset, nil
	}
	offset = isa.RoundUp(offset, isa.PageSize)
	w.header.SetExecutableOffset(offset)
	w.sections.Executable = offset
	if !w.isImage {
		return offset, nil
	}

	set := w.driver.InstructionSet()
	for _, k := range trampoline.Kinds() {
		stub, err := w.driver.CreateTrampoline(k)
		if err != nil {
			return 0, fmt.Errorf("oat: create %v: %w", k, err)
		}
		check(len(stub) > 0, "empty %v", k)
		offset = set.AlignCode(offset)
		w.header.SetTrampolineOffset(k, offset)
		w.header.UpdateChecksum(stub)
		w.trampolines[k] = stub
		offset += uint32(len(stub))
	}
	return offset, nil
}

func (w *Writer) initCode(offset uint32) (uint32, error) {
	w.sections.Code = offset
	v := &initCodeVisitor{classCursor: classCursor{classes: w.classes}, w: w, offset: offset}
	if err := VisitMethods(w.modules, v); err != nil {
		return 0, err
	}
	return v.offset, nil
}

func (w *Writer) initSideTables(offset uint32) (uint32, error) {
	starts := []*uint32{&w.sections.GcMaps, &w.sections.MappingTables, &w.sections.VmapTables}
	for i, kind := range sideTables {
		*starts[i] = offset
		v := &initMapVisitor{classCursor: classCursor{classes: w.classes}, w: w, kind: kind, offset: offset}
		if err := VisitMethods(w.modules, v); err != nil {
			return 0, err
		}
		offset = v.offset
	}
	return offset, nil
}

func (w *Writer) initImage(offset uint32) (uint32, error) {
	if !w.isImage {
		return offset, nil
	}
	v := &initImageVisitor{classCursor: classCursor{classes: w.classes}, w: w}
	if err := VisitMethods(w.modules, v); err != nil {
		return 0, err
	}
	return offset, nil
}

// Size is the total size of the file.
func (w *Writer) Size() uint32 { return w.size }

// Header returns the header. Its fields are final after New returns.
func (w *Writer) Header() *Header { return w.header }

// Sections returns the start offset of each region.
func (w *Writer) Sections() Sections { return w.sections }

// ModuleDescriptors returns one descriptor per module, in input order.
func (w *Writer) ModuleDescriptors() []*ModuleDescriptor { return w.descriptors }

// ClassDescriptors returns every class descriptor in file order.
func (w *Writer) ClassDescriptors() []*ClassDescriptor { return w.classes }

// MethodInfo returns debug info for every method with a frame description.
func (w *Writer) MethodInfo() []DebugInfo { return w.methodInfo }

// Stats returns the size breakdown of the last Write, or nil.
func (w *Writer) Stats() *Stats { return w.stats }

// DedupeStats reports, per blob kind, distinct blobs and duplicate hits.
func (w *Writer) DedupeStats() []*BlobTable {
	return []*BlobTable{w.code, w.gcMaps, w.mappingTables, w.vmapTables}
}
