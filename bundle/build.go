package bundle

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/DroidSim/platform-art/compiled"
	"github.com/DroidSim/platform-art/dexfile"
	"github.com/DroidSim/platform-art/isa"
)

// Build turns a bundle into the writer's inputs: one DexFile per module,
// in bundle order, and a Store holding every compiled method and class
// status. Modules are populated concurrently, the way compiler workers
// fill the store.
func Build(ctx context.Context, b *Bundle, image bool) ([]*dexfile.DexFile, *compiled.Store, error) {
	set, err := isa.Parse(b.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("bundle: %w", err)
	}
	features, err := isa.ParseFeatures(b.Features)
	if err != nil {
		return nil, nil, fmt.Errorf("bundle: %w", err)
	}

	store := compiled.NewStore(set, features, image)
	if b.CalleeSave != nil {
		store.SetCalleeSaveFrame(b.CalleeSave.info())
	}
	if b.CFI {
		store.EnableCallFrameInformation()
	}

	modules := make([]*dexfile.DexFile, len(b.Modules))
	for i, m := range b.Modules {
		modules[i] = dexfile.New(m.Location, m.Data, m.classDefs())
		store.AddDexFile(modules[i])
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range b.Modules {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return populate(store, set, modules[i], &b.Modules[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	log.Debugf("built %d modules, %d compiled methods for %s", len(modules), store.MethodCount(), set)
	return modules, store, nil
}

func populate(store *compiled.Store, set isa.InstructionSet, dex *dexfile.DexFile, m *Module) error {
	for ci, c := range m.Classes {
		ref := compiled.ClassReference{Dex: dex, ClassDefIndex: ci}
		if c.Status != "" {
			status, err := compiled.ParseClassStatus(c.Status)
			if err != nil {
				return fmt.Errorf("bundle: %s %s: %w", m.Location, c.Descriptor, err)
			}
			store.SetClassStatus(ref, status)
		}
		if c.Rejected {
			store.RejectClass(ref)
		}
		for _, list := range [][]Method{c.Direct, c.Virtual} {
			for _, meth := range list {
				if meth.Compiled == nil {
					continue
				}
				mref := compiled.MethodReference{Dex: dex, Index: meth.Index}
				if err := store.AddMethod(mref, meth.Compiled.method(set)); err != nil {
					return fmt.Errorf("bundle: %s: %w", dex.PrettyMethod(ci, meth.dex()), err)
				}
			}
		}
	}
	return nil
}

func (m *Module) classDefs() []dexfile.ClassDef {
	defs := make([]dexfile.ClassDef, len(m.Classes))
	for i, c := range m.Classes {
		defs[i] = dexfile.ClassDef{
			Descriptor:     c.Descriptor,
			DirectMethods:  methods(c.Direct),
			VirtualMethods: methods(c.Virtual),
		}
	}
	return defs
}

func methods(list []Method) []dexfile.Method {
	if len(list) == 0 {
		return nil
	}
	out := make([]dexfile.Method, len(list))
	for i, m := range list {
		out[i] = m.dex()
	}
	return out
}

func (m Method) dex() dexfile.Method {
	return dexfile.Method{Index: m.Index, Name: m.Name, AccessFlags: m.AccessFlags, Shorty: m.Shorty}
}

func (c *Compiled) method(set isa.InstructionSet) *compiled.CompiledMethod {
	return &compiled.CompiledMethod{
		InstructionSet:   set,
		QuickCode:        c.QuickCode,
		PortableCode:     c.PortableCode,
		FrameSizeInBytes: c.Frame.Size,
		CoreSpillMask:    c.Frame.CoreSpillMask,
		FpSpillMask:      c.Frame.FpSpillMask,
		MappingTable:     c.MappingTable,
		VmapTable:        c.VmapTable,
		GcMap:            c.GcMap,
		CFIInfo:          c.CFI,
	}
}

func (f Frame) info() compiled.FrameInfo {
	return compiled.FrameInfo{FrameSizeInBytes: f.Size, CoreSpillMask: f.CoreSpillMask, FpSpillMask: f.FpSpillMask}
}
