package oat

import (
	"github.com/DroidSim/platform-art/compiled"
	"github.com/DroidSim/platform-art/dexfile"
)

// ---------------------------------------------------------------------------
// Method traversal
// ---------------------------------------------------------------------------

// MethodVisitor is driven over every method of every class of every module.
// Any error stops the traversal and is returned to the caller unchanged.
type MethodVisitor interface {
	StartClass(dex *dexfile.DexFile, classDefIndex int) error
	// ProcessMethod is called for direct methods then virtual methods, in
	// declaration order. ordinal counts the methods visited in this class.
	ProcessMethod(ordinal int, m dexfile.Method) error
	EndClass() error
}

// VisitMethods walks modules in order. A method index that repeats within a
// class is visited only the first time.
func VisitMethods(modules []*dexfile.DexFile, v MethodVisitor) error {
	for _, dex := range modules {
		for ci := range dex.ClassDefs {
			if err := visitClass(dex, ci, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func visitClass(dex *dexfile.DexFile, ci int, v MethodVisitor) error {
	if err := v.StartClass(dex, ci); err != nil {
		return err
	}
	def := dex.ClassDef(ci)
	seen := make(map[uint32]bool, len(def.DirectMethods)+len(def.VirtualMethods))
	ordinal := 0
	for _, list := range [][]dexfile.Method{def.DirectMethods, def.VirtualMethods} {
		for _, m := range list {
			if seen[m.Index] {
				continue
			}
			seen[m.Index] = true
			if err := v.ProcessMethod(ordinal, m); err != nil {
				return err
			}
			ordinal++
		}
	}
	return v.EndClass()
}

// classCursor tracks the class descriptor that matches the traversal
// position. Visitors running after class descriptors exist embed it.
type classCursor struct {
	classes []*ClassDescriptor
	next    int

	dex           *dexfile.DexFile
	classDefIndex int
	cls           *ClassDescriptor
	compiledIndex int
}

func (c *classCursor) StartClass(dex *dexfile.DexFile, classDefIndex int) error {
	check(c.next < len(c.classes), "traversal reached class %d of %s but only %d descriptors exist",
		classDefIndex, dex.Location, len(c.classes))
	c.dex = dex
	c.classDefIndex = classDefIndex
	c.cls = c.classes[c.next]
	c.next++
	c.compiledIndex = 0
	return nil
}

// nextCompiled returns the ordinal's compile result and its MethodOffsets
// record. cm is nil when the method was not compiled.
func (c *classCursor) nextCompiled(ordinal int) (cm *compiled.CompiledMethod, mo *MethodOffsets) {
	cm = c.cls.CompiledMethod(ordinal)
	if cm == nil {
		return nil, nil
	}
	check(c.compiledIndex < len(c.cls.MethodOffsets), "compiled method %d of class %d has no offsets record",
		ordinal, c.classDefIndex)
	mo = &c.cls.MethodOffsets[c.compiledIndex]
	c.compiledIndex++
	return cm, mo
}

func (c *classCursor) EndClass() error {
	check(c.compiledIndex == len(c.cls.MethodOffsets), "class %d visited %d of %d compiled methods",
		c.classDefIndex, c.compiledIndex, len(c.cls.MethodOffsets))
	return nil
}

func (c *classCursor) prettyMethod(m dexfile.Method) string {
	return c.dex.PrettyMethod(c.classDefIndex, m)
}
