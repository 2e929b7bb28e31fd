package oat

// MethodOffsets is the per-method record stored in a class descriptor for
// every compiled method. Offsets are absolute file offsets; zero means the
// corresponding item is absent.
type MethodOffsets struct {
	CodeOffset         uint32
	FrameSizeInBytes   uint32
	CoreSpillMask      uint32
	FpSpillMask        uint32
	MappingTableOffset uint32
	VmapTableOffset    uint32
	GcMapOffset        uint32
}

// AppendBinary serializes the record.
func (m MethodOffsets) AppendBinary(b []byte) []byte {
	b = appendUint32(b, m.CodeOffset)
	b = appendUint32(b, m.FrameSizeInBytes)
	b = appendUint32(b, m.CoreSpillMask)
	b = appendUint32(b, m.FpSpillMask)
	b = appendUint32(b, m.MappingTableOffset)
	b = appendUint32(b, m.VmapTableOffset)
	return appendUint32(b, m.GcMapOffset)
}
