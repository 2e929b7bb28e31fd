// Package oatdump renders an emitted OAT file as a tree: header fields,
// trampolines, modules and their class descriptors, and optionally the
// disassembly of every code body.
package oatdump

import (
	"fmt"
	"io"

	"github.com/tliron/commonlog"
	"github.com/xlab/treeprint"

	"github.com/DroidSim/platform-art/oat"
	"github.com/DroidSim/platform-art/trampoline"
)

var log = commonlog.GetLogger("oatdump")

// Options controls what Dump prints.
type Options struct {
	// Disassemble adds the instructions of every trampoline and code body.
	Disassemble bool
	// Module restricts the modules section to one location when set.
	Module string
}

// Dump parses data and writes the tree to w.
func Dump(w io.Writer, data []byte, opts Options) error {
	f, err := oat.Parse(data)
	if err != nil {
		return fmt.Errorf("oatdump: %w", err)
	}
	tree := treeprint.NewWithRoot(fmt.Sprintf("OAT %s, %d bytes", f.Header.InstructionSet, len(data)))
	dumpHeader(tree.AddBranch("header"), f.Header)
	if f.Header.TrampolineOffsets != [trampoline.NumKinds]uint32{} {
		dumpTrampolines(tree.AddBranch("trampolines"), f, opts)
	}

	modules := tree.AddBranch(fmt.Sprintf("modules (%d)", len(f.Modules)))
	seen := make(map[uint32]bool)
	for i, md := range f.Modules {
		if opts.Module != "" && md.Location != opts.Module {
			continue
		}
		dumpModule(modules, f, i, opts, seen)
	}

	_, err = io.WriteString(w, tree.String())
	return err
}

func dumpHeader(b treeprint.Tree, h *oat.Header) {
	b.AddMetaNode("checksum", fmt.Sprintf("%#08x", h.Checksum))
	b.AddMetaNode("instruction set", h.InstructionSet.String())
	b.AddMetaNode("features", h.InstructionSetFeatures.String())
	b.AddMetaNode("modules", h.ModuleCount)
	b.AddMetaNode("executable offset", fmt.Sprintf("%#x", h.ExecutableOffset))
	if h.ImageLocation != "" || h.ImageOatChecksum != 0 {
		b.AddMetaNode("image", fmt.Sprintf("%s (oat checksum %#08x, data begin %#x)",
			h.ImageLocation, h.ImageOatChecksum, h.ImageOatDataBegin))
	}
}

func dumpTrampolines(b treeprint.Tree, f *oat.File, opts Options) {
	for _, k := range trampoline.Kinds() {
		off := f.Header.TrampolineOffsets[k]
		stub := f.Trampoline(k)
		node := b.AddMetaBranch(fmt.Sprintf("%#x", off), fmt.Sprintf("%s (%d bytes)", k, len(stub)))
		if opts.Disassemble {
			for _, line := range Disassemble(f.Header.InstructionSet, stub, off) {
				node.AddNode(line)
			}
		}
	}
}

func dumpModule(modules treeprint.Tree, f *oat.File, i int, opts Options, seen map[uint32]bool) {
	md := f.Modules[i]
	mb := modules.AddBranch(md.Location)
	mb.AddMetaNode("checksum", fmt.Sprintf("%#08x", md.LocationChecksum))
	size := "unknown size"
	if f.ModuleData[i] != nil {
		size = fmt.Sprintf("%d bytes", len(f.ModuleData[i]))
	}
	mb.AddMetaNode("data", fmt.Sprintf("%#x, %s", md.DexFileOffset, size))

	for ci, c := range f.Classes[i] {
		cb := mb.AddMetaBranch(fmt.Sprintf("%#x", md.ClassOffsets[ci]),
			fmt.Sprintf("class %d: %s, %s", ci, c.Status, c.Type))
		for j, mo := range c.MethodOffsets {
			dumpMethod(cb, f, ordinalOf(c, j), mo, opts, seen)
		}
	}
}

func dumpMethod(cb treeprint.Tree, f *oat.File, ordinal int, mo oat.MethodOffsets, opts Options, seen map[uint32]bool) {
	text := fmt.Sprintf("method %d: frame %d, core %#x, fp %#x", ordinal, mo.FrameSizeInBytes, mo.CoreSpillMask, mo.FpSpillMask)
	if mo.GcMapOffset != 0 {
		text += fmt.Sprintf(", gc map %#x", mo.GcMapOffset)
	}
	if mo.MappingTableOffset != 0 {
		text += fmt.Sprintf(", mapping table %#x", mo.MappingTableOffset)
	}
	if mo.VmapTableOffset != 0 {
		text += fmt.Sprintf(", vmap table %#x", mo.VmapTableOffset)
	}
	if mo.CodeOffset == 0 {
		cb.AddMetaNode("no code", text)
		return
	}
	node := cb.AddMetaBranch(fmt.Sprintf("%#x", mo.CodeOffset), text)
	code, err := f.Code(mo.CodeOffset)
	if err != nil {
		log.Errorf("method %d: %s", ordinal, err)
		node.AddNode(fmt.Sprintf("error: %s", err))
		return
	}
	if seen[mo.CodeOffset] {
		node.AddNode(fmt.Sprintf("%d bytes, shared", len(code)))
		return
	}
	seen[mo.CodeOffset] = true
	if !opts.Disassemble {
		node.AddNode(fmt.Sprintf("%d bytes", len(code)))
		return
	}
	start := mo.CodeOffset - f.Header.InstructionSet.CodeDelta()
	for _, line := range Disassemble(f.Header.InstructionSet, code, start) {
		node.AddNode(line)
	}
}

// ordinalOf maps the j-th compiled method of a class to its method ordinal.
func ordinalOf(c *oat.ClassDescriptor, j int) int {
	if c.Type != oat.SomeCompiled {
		return j
	}
	for ordinal := 0; ordinal < 32*len(c.Bitmap); ordinal++ {
		if c.Bitmap[ordinal/32]&(1<<(ordinal%32)) == 0 {
			continue
		}
		if j == 0 {
			return ordinal
		}
		j--
	}
	return -1
}
