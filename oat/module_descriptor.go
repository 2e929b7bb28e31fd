package oat

import "github.com/DroidSim/platform-art/dexfile"

// ModuleDescriptor is the per-module record following the header. It names
// the module, carries its checksum, locates its raw bytes and lists one
// class descriptor offset per class definition, index for index.
type ModuleDescriptor struct {
	Location         string
	LocationChecksum uint32
	DexFileOffset    uint32
	ClassOffsets     []uint32

	dex *dexfile.DexFile
}

func newModuleDescriptor(d *dexfile.DexFile) *ModuleDescriptor {
	return &ModuleDescriptor{
		Location:         d.Location,
		LocationChecksum: d.LocationChecksum,
		ClassOffsets:     make([]uint32, d.NumClassDefs()),
		dex:              d,
	}
}

// Size is the serialized size of the descriptor.
func (m *ModuleDescriptor) Size() uint32 {
	return 4 + uint32(len(m.Location)) + 4 + 4 + 4*uint32(len(m.ClassOffsets))
}

// UpdateChecksum folds every field into the header checksum.
func (m *ModuleDescriptor) UpdateChecksum(h *Header) {
	h.updateUint32(uint32(len(m.Location)))
	h.UpdateChecksum([]byte(m.Location))
	h.updateUint32(m.LocationChecksum)
	h.updateUint32(m.DexFileOffset)
	for _, off := range m.ClassOffsets {
		h.updateUint32(off)
	}
}

// AppendBinary serializes the descriptor.
func (m *ModuleDescriptor) AppendBinary(b []byte) []byte {
	b = appendUint32(b, uint32(len(m.Location)))
	b = append(b, m.Location...)
	b = appendUint32(b, m.LocationChecksum)
	b = appendUint32(b, m.DexFileOffset)
	for _, off := range m.ClassOffsets {
		b = appendUint32(b, off)
	}
	return b
}
