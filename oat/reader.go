package oat

import (
	"errors"
	"fmt"
	"slices"

	"github.com/DroidSim/platform-art/compiled"
	"github.com/DroidSim/platform-art/dexfile"
	"github.com/DroidSim/platform-art/isa"
	"github.com/DroidSim/platform-art/trampoline"
)

// ---------------------------------------------------------------------------
// Parse errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidMagic    = errors.New("oat: invalid magic")
	ErrVersionMismatch = errors.New("oat: version mismatch")
	ErrUnexpectedEOF   = errors.New("oat: unexpected end of data")
	ErrCorruptData     = errors.New("oat: corrupt data")
)

// File is a parsed OAT file. It is meant for tooling and tests; it does
// not map or link anything.
type File struct {
	Header  *Header
	Modules []*ModuleDescriptor
	// ModuleData holds each embedded module, or nil when its size cannot
	// be determined (it is not a dex file).
	ModuleData [][]byte
	// Classes holds each module's class descriptors, index for index
	// with ModuleDescriptor.ClassOffsets.
	Classes [][]*ClassDescriptor

	data []byte
}

// reader is a bounds-checked cursor over the file.
type reader struct {
	data   []byte
	offset int
}

func (r *reader) readUint32() (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := readUint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *reader) readUint16() (uint16, error) {
	if r.offset+2 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := uint16(r.data[r.offset]) | uint16(r.data[r.offset+1])<<8
	r.offset += 2
	return v, nil
}

func (r *reader) readBytes(n uint32) ([]byte, error) {
	if uint64(r.offset)+uint64(n) > uint64(len(r.data)) {
		return nil, ErrUnexpectedEOF
	}
	b := r.data[r.offset : r.offset+int(n)]
	r.offset += int(n)
	return b, nil
}

// Parse decodes the header, module descriptors and class descriptors of an
// OAT file.
//
// The number of MethodOffsets in an all-compiled class is not stored in
// the file. It is derived from the distance to the next class descriptor;
// for the last class, trailing all-zero records before the executable
// region are taken to be padding.
func Parse(data []byte) (*File, error) {
	f := &File{data: data}
	r := &reader{data: data}

	h, err := parseHeader(r)
	if err != nil {
		return nil, err
	}
	f.Header = h

	var dataStart uint32
	for i := uint32(0); i < h.ModuleCount; i++ {
		md, err := parseModuleDescriptor(r, dataStart)
		if err != nil {
			return nil, fmt.Errorf("module descriptor %d: %w", i, err)
		}
		if i == 0 {
			dataStart = md.DexFileOffset
		}
		f.Modules = append(f.Modules, md)
	}

	for _, md := range f.Modules {
		var mod []byte
		if md.DexFileOffset > uint32(len(data)) {
			return nil, fmt.Errorf("module %s at %#x: %w", md.Location, md.DexFileOffset, ErrCorruptData)
		}
		if size, ok := dexfile.SizeOf(data[md.DexFileOffset:]); ok {
			if uint64(md.DexFileOffset)+uint64(size) > uint64(len(data)) {
				return nil, fmt.Errorf("module %s: %w", md.Location, ErrUnexpectedEOF)
			}
			mod = data[md.DexFileOffset : md.DexFileOffset+size]
		}
		f.ModuleData = append(f.ModuleData, mod)
	}

	var all []uint32
	for _, md := range f.Modules {
		all = append(all, md.ClassOffsets...)
	}
	end := h.ExecutableOffset
	if end == 0 {
		end = uint32(len(data))
	}
	next := 0
	for _, md := range f.Modules {
		classes := make([]*ClassDescriptor, 0, len(md.ClassOffsets))
		for _, off := range md.ClassOffsets {
			limit, last := end, next+1 >= len(all)
			if !last {
				limit = all[next+1]
			}
			next++
			c, err := parseClassDescriptor(data, off, limit, last)
			if err != nil {
				return nil, fmt.Errorf("class descriptor at %#x: %w", off, err)
			}
			classes = append(classes, c)
		}
		f.Classes = append(f.Classes, classes)
	}
	return f, nil
}

func parseHeader(r *reader) (*Header, error) {
	if len(r.data) < HeaderFixedSize {
		return nil, ErrUnexpectedEOF
	}
	magic, _ := r.readBytes(4)
	if !slices.Equal(magic, Magic[:]) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, magic)
	}
	version, _ := r.readBytes(4)
	if !slices.Equal(version, Version[:]) {
		return nil, fmt.Errorf("%w: got %q", ErrVersionMismatch, version)
	}

	h := &Header{}
	fields := []*uint32{&h.Checksum}
	var set, features uint32
	fields = append(fields, &set, &features, &h.ModuleCount, &h.ExecutableOffset)
	for i := range h.TrampolineOffsets {
		fields = append(fields, &h.TrampolineOffsets[i])
	}
	var locSize uint32
	fields = append(fields, &h.ImageOatChecksum, &h.ImageOatDataBegin, &locSize)
	for _, p := range fields {
		v, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		*p = v
	}
	loc, err := r.readBytes(locSize)
	if err != nil {
		return nil, fmt.Errorf("image location: %w", err)
	}
	h.InstructionSet = isa.InstructionSet(set)
	h.InstructionSetFeatures = isa.Features(features)
	h.ImageLocation = string(loc)
	return h, nil
}

// parseModuleDescriptor reads one descriptor. The class count is not
// stored: class descriptors follow every embedded module, so each class
// offset is at least the module's own data offset, while the location
// size opening the next descriptor is always smaller. Reading stops there
// or at the start of the first module's data.
func parseModuleDescriptor(r *reader, dataStart uint32) (*ModuleDescriptor, error) {
	locSize, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	loc, err := r.readBytes(locSize)
	if err != nil {
		return nil, err
	}
	md := &ModuleDescriptor{Location: string(loc), ClassOffsets: []uint32{}}
	if md.LocationChecksum, err = r.readUint32(); err != nil {
		return nil, err
	}
	if md.DexFileOffset, err = r.readUint32(); err != nil {
		return nil, err
	}
	if dataStart == 0 {
		dataStart = md.DexFileOffset
	}
	if uint64(dataStart) > uint64(len(r.data)) {
		return nil, ErrUnexpectedEOF
	}
	for uint64(r.offset)+4 <= uint64(dataStart) {
		v := readUint32(r.data[r.offset:])
		if v < md.DexFileOffset {
			break
		}
		md.ClassOffsets = append(md.ClassOffsets, v)
		r.offset += 4
	}
	return md, nil
}

func parseClassDescriptor(data []byte, off, limit uint32, last bool) (*ClassDescriptor, error) {
	if off > limit || limit > uint32(len(data)) {
		return nil, ErrCorruptData
	}
	r := &reader{data: data[:limit], offset: int(off)}
	status, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	typ, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	c := &ClassDescriptor{Status: compiled.ClassStatus(int16(status)), Type: ClassType(typ), offset: off}

	count := 0
	switch c.Type {
	case NoneCompiled:
	case SomeCompiled:
		size, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		if size%4 != 0 {
			return nil, fmt.Errorf("%w: bitmap size %d", ErrCorruptData, size)
		}
		for i := uint32(0); i < size/4; i++ {
			w, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			c.Bitmap = append(c.Bitmap, w)
		}
		count = c.bitmapPopCount()
	case AllCompiled:
		count = (int(limit) - r.offset) / MethodOffsetsSize
	default:
		return nil, fmt.Errorf("%w: class type %d", ErrCorruptData, typ)
	}

	for i := 0; i < count; i++ {
		var mo MethodOffsets
		for _, p := range []*uint32{&mo.CodeOffset, &mo.FrameSizeInBytes, &mo.CoreSpillMask, &mo.FpSpillMask,
			&mo.MappingTableOffset, &mo.VmapTableOffset, &mo.GcMapOffset} {
			if *p, err = r.readUint32(); err != nil {
				return nil, err
			}
		}
		c.MethodOffsets = append(c.MethodOffsets, mo)
	}
	if last && c.Type == AllCompiled {
		for len(c.MethodOffsets) > 0 && c.MethodOffsets[len(c.MethodOffsets)-1] == (MethodOffsets{}) {
			c.MethodOffsets = c.MethodOffsets[:len(c.MethodOffsets)-1]
		}
	}
	return c, nil
}

// Bytes returns the raw file.
func (f *File) Bytes() []byte { return f.data }

// Code returns the code body whose entrypoint is codeOffset, using the
// method header in front of it.
func (f *File) Code(codeOffset uint32) ([]byte, error) {
	start := codeOffset - f.Header.InstructionSet.CodeDelta()
	if start < MethodHeaderSize || start > uint32(len(f.data)) {
		return nil, fmt.Errorf("code at %#x: %w", codeOffset, ErrCorruptData)
	}
	size := readUint32(f.data[start-MethodHeaderSize:])
	if uint64(start)+uint64(size) > uint64(len(f.data)) {
		return nil, fmt.Errorf("code at %#x: %w", codeOffset, ErrUnexpectedEOF)
	}
	return f.data[start : start+size], nil
}

// Trampoline returns the stub of kind k, or nil when the file has none.
func (f *File) Trampoline(k trampoline.Kind) []byte {
	off := f.Header.TrampolineOffsets[k]
	if off == 0 {
		return nil
	}
	stub, err := trampoline.Create(f.Header.InstructionSet, k)
	if err != nil || uint64(off)+uint64(len(stub)) > uint64(len(f.data)) {
		return nil
	}
	return f.data[off : off+uint32(len(stub))]
}
