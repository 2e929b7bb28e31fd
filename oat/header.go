package oat

import (
	"github.com/DroidSim/platform-art/isa"
	"github.com/DroidSim/platform-art/trampoline"
)

// ---------------------------------------------------------------------------
// Header
// ---------------------------------------------------------------------------

// Header is the fixed record at the start of an OAT file. Offsets are filled
// in as layout discovers them; Checksum is updated for every committed byte
// other than magic, version, the checksum itself, padding and raw modules.
type Header struct {
	Checksum               uint32
	InstructionSet         isa.InstructionSet
	InstructionSetFeatures isa.Features
	ModuleCount            uint32
	ExecutableOffset       uint32
	TrampolineOffsets      [trampoline.NumKinds]uint32
	ImageOatChecksum       uint32
	ImageOatDataBegin      uint32
	ImageLocation          string

	sum *Checksum
}

// NewHeader creates a header and folds its initial fields into the
// checksum.
func NewHeader(set isa.InstructionSet, features isa.Features, moduleCount uint32, image ImageInfo) *Header {
	h := &Header{
		InstructionSet:         set,
		InstructionSetFeatures: features,
		ModuleCount:            moduleCount,
		ImageOatChecksum:       image.OatChecksum,
		ImageOatDataBegin:      image.OatDataBegin,
		ImageLocation:          image.Location,
		sum:                    NewChecksum(),
	}
	h.updateUint32(uint32(set))
	h.updateUint32(uint32(features))
	h.updateUint32(moduleCount)
	h.updateUint32(image.OatChecksum)
	h.updateUint32(image.OatDataBegin)
	h.updateUint32(uint32(len(image.Location)))
	h.UpdateChecksum([]byte(image.Location))
	return h
}

// UpdateChecksum folds b into the header checksum.
func (h *Header) UpdateChecksum(b []byte) {
	h.sum.Update(b)
	h.Checksum = h.sum.Value()
}

func (h *Header) updateUint32(v uint32) {
	h.UpdateChecksum(uint32Bytes(v))
}

// SetExecutableOffset records the page-aligned start of the executable
// region.
func (h *Header) SetExecutableOffset(off uint32) {
	if !isa.IsAligned(off, isa.PageSize) {
		panic(invariantf("executable offset %#x is not page aligned", off))
	}
	h.ExecutableOffset = off
	h.updateUint32(off)
}

// SetTrampolineOffset records where a trampoline stub was placed.
func (h *Header) SetTrampolineOffset(k trampoline.Kind, off uint32) {
	if off != 0 && off < h.ExecutableOffset {
		panic(invariantf("%v at %#x precedes executable offset %#x", k, off, h.ExecutableOffset))
	}
	h.TrampolineOffsets[k] = off
	h.updateUint32(off)
}

// Size is the serialized size including the image location.
func (h *Header) Size() uint32 {
	return HeaderFixedSize + uint32(len(h.ImageLocation))
}

// AppendBinary serializes the header.
func (h *Header) AppendBinary(b []byte) []byte {
	b = append(b, Magic[:]...)
	b = append(b, Version[:]...)
	b = appendUint32(b, h.Checksum)
	b = appendUint32(b, uint32(h.InstructionSet))
	b = appendUint32(b, uint32(h.InstructionSetFeatures))
	b = appendUint32(b, h.ModuleCount)
	b = appendUint32(b, h.ExecutableOffset)
	for _, off := range h.TrampolineOffsets {
		b = appendUint32(b, off)
	}
	b = appendUint32(b, h.ImageOatChecksum)
	b = appendUint32(b, h.ImageOatDataBegin)
	b = appendUint32(b, uint32(len(h.ImageLocation)))
	return append(b, h.ImageLocation...)
}

// ImageInfo identifies the base image an application OAT file is built
// against. It is empty when building the base image itself.
type ImageInfo struct {
	OatChecksum  uint32
	OatDataBegin uint32
	Location     string
}
