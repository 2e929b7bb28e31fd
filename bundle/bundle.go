// Package bundle carries compiler output between the compiler and the OAT
// writer. A bundle holds the target, the input modules with their class
// and method lists, and each compiled method, encoded as canonical CBOR.
package bundle

import (
	"context"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("bundle")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bundle: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Bundle is the compiler output for one target.
type Bundle struct {
	Target     string   `cbor:"1,keyasint"` // instruction set name, e.g. "arm64"
	Features   []string `cbor:"2,keyasint,omitempty"`
	Modules    []Module `cbor:"3,keyasint"`
	CalleeSave *Frame   `cbor:"4,keyasint,omitempty"`
	// CFI requests that frame description entries be collected.
	CFI bool `cbor:"5,keyasint,omitempty"`
}

// Module is one input module and its classes in class def order.
type Module struct {
	Location string  `cbor:"1,keyasint"`
	Data     []byte  `cbor:"2,keyasint"`
	Classes  []Class `cbor:"3,keyasint,omitempty"`
}

// Class is one class def. Status is a class status name; empty means the
// compiler recorded none.
type Class struct {
	Descriptor string   `cbor:"1,keyasint"`
	Status     string   `cbor:"2,keyasint,omitempty"`
	Rejected   bool     `cbor:"3,keyasint,omitempty"`
	Direct     []Method `cbor:"4,keyasint,omitempty"`
	Virtual    []Method `cbor:"5,keyasint,omitempty"`
}

// Method is one declared method. Compiled is nil when the compiler
// produced nothing for it.
type Method struct {
	Index       uint32    `cbor:"1,keyasint"`
	Name        string    `cbor:"2,keyasint"`
	AccessFlags uint32    `cbor:"3,keyasint,omitempty"`
	Shorty      string    `cbor:"4,keyasint,omitempty"`
	Compiled    *Compiled `cbor:"5,keyasint,omitempty"`
}

// Compiled is the compiler's output for one method.
type Compiled struct {
	QuickCode    []byte `cbor:"1,keyasint,omitempty"`
	PortableCode []byte `cbor:"2,keyasint,omitempty"`
	Frame        Frame  `cbor:"3,keyasint"`
	MappingTable []byte `cbor:"4,keyasint,omitempty"`
	VmapTable    []byte `cbor:"5,keyasint,omitempty"`
	GcMap        []byte `cbor:"6,keyasint,omitempty"`
	CFI          []byte `cbor:"7,keyasint,omitempty"`
}

// Frame is a stack frame size and its spill masks.
type Frame struct {
	Size          uint32 `cbor:"1,keyasint"`
	CoreSpillMask uint32 `cbor:"2,keyasint,omitempty"`
	FpSpillMask   uint32 `cbor:"3,keyasint,omitempty"`
}

// Marshal serializes a Bundle to CBOR bytes.
func Marshal(b *Bundle) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// Unmarshal deserializes a Bundle from CBOR bytes.
func Unmarshal(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal: %w", err)
	}
	return &b, nil
}

// ReadFile loads a bundle from disk.
func ReadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	b, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("read %s: %s, %d modules", path, b.Target, len(b.Modules))
	return b, nil
}

// WriteFile stores a bundle on disk.
func WriteFile(path string, b *Bundle) error {
	data, err := Marshal(b)
	if err != nil {
		return fmt.Errorf("bundle: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("bundle: %w", err)
	}
	return nil
}

// LoadAll reads every path concurrently. Results keep the order of paths.
func LoadAll(ctx context.Context, paths []string) ([]*Bundle, error) {
	out := make([]*Bundle, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := ReadFile(p)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Merge concatenates the modules of bundles built for the same target. The
// first bundle's callee-save frame and CFI setting win; module locations
// must be unique.
func Merge(bundles ...*Bundle) (*Bundle, error) {
	if len(bundles) == 0 {
		return nil, fmt.Errorf("bundle: nothing to merge")
	}
	first := bundles[0]
	merged := &Bundle{
		Target:     first.Target,
		Features:   first.Features,
		CalleeSave: first.CalleeSave,
		CFI:        first.CFI,
	}
	seen := make(map[string]bool)
	for i, b := range bundles {
		if b.Target != first.Target {
			return nil, fmt.Errorf("bundle: bundle %d targets %s, expected %s", i, b.Target, first.Target)
		}
		for _, m := range b.Modules {
			if seen[m.Location] {
				return nil, fmt.Errorf("bundle: module %s appears twice", m.Location)
			}
			seen[m.Location] = true
			merged.Modules = append(merged.Modules, m)
		}
	}
	return merged, nil
}
