package oat

import (
	"fmt"

	"github.com/DroidSim/platform-art/trampoline"
)

// Stats attributes every byte of a written file to one bucket.
type Stats struct {
	Header              uint32
	HeaderImageLocation uint32

	Module          uint32
	ModuleAlignment uint32

	ExecutableOffsetAlignment uint32
	Trampolines               [trampoline.NumKinds]uint32
	TrampolineAlignment       uint32

	MethodHeader  uint32
	Code          uint32
	CodeAlignment uint32
	MappingTable  uint32
	VmapTable     uint32
	GcMap         uint32

	ModuleLocationSize     uint32
	ModuleLocationData     uint32
	ModuleLocationChecksum uint32
	ModuleOffset           uint32
	ModuleClassOffsets     uint32

	ClassType          uint32
	ClassStatus        uint32
	ClassBitmaps       uint32
	ClassMethodOffsets uint32
}

// StatEntry is one named bucket.
type StatEntry struct {
	Name string
	Size uint32
}

// Entries lists every bucket in file order.
func (s *Stats) Entries() []StatEntry {
	out := []StatEntry{
		{"header", s.Header},
		{"header image location", s.HeaderImageLocation},
		{"module location size", s.ModuleLocationSize},
		{"module location data", s.ModuleLocationData},
		{"module location checksum", s.ModuleLocationChecksum},
		{"module offset", s.ModuleOffset},
		{"module class offsets", s.ModuleClassOffsets},
		{"module alignment", s.ModuleAlignment},
		{"module", s.Module},
		{"class status", s.ClassStatus},
		{"class type", s.ClassType},
		{"class bitmaps", s.ClassBitmaps},
		{"class method offsets", s.ClassMethodOffsets},
		{"executable offset alignment", s.ExecutableOffsetAlignment},
	}
	for _, k := range trampoline.Kinds() {
		out = append(out, StatEntry{k.String(), s.Trampolines[k]})
	}
	return append(out,
		StatEntry{"trampoline alignment", s.TrampolineAlignment},
		StatEntry{"method header", s.MethodHeader},
		StatEntry{"code", s.Code},
		StatEntry{"code alignment", s.CodeAlignment},
		StatEntry{"GC map", s.GcMap},
		StatEntry{"mapping table", s.MappingTable},
		StatEntry{"vmap table", s.VmapTable},
	)
}

// Total is the sum of all buckets.
func (s *Stats) Total() uint32 {
	var total uint32
	for _, e := range s.Entries() {
		total += e.Size
	}
	return total
}

func (s *Stats) logSizes() {
	total := s.Total()
	if total == 0 {
		return
	}
	for _, e := range s.Entries() {
		log.Debugf("%-40s %10d (%5.1f%%)", e.Name, e.Size, 100*float64(e.Size)/float64(total))
	}
	log.Debugf("%-40s %10d", "total", total)
}

func (s *Stats) String() string {
	return fmt.Sprintf("%d bytes in %d buckets", s.Total(), len(s.Entries()))
}
