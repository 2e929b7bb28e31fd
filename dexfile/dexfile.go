// Package dexfile models the input bytecode modules an OAT file is built
// from. Parsing of class data is done upstream; a DexFile here only
// carries what the writer needs: location, checksum, raw bytes and the
// per-class method lists in declaration order.
package dexfile

import (
	"fmt"
	"hash/adler32"
)

// Access flags used by the writer.
const (
	AccPublic   uint32 = 0x0001
	AccStatic   uint32 = 0x0008
	AccNative   uint32 = 0x0100
	AccAbstract uint32 = 0x0400
)

// Method is one entry of a class's direct or virtual method list.
type Method struct {
	Index       uint32 // method_ids index
	Name        string
	AccessFlags uint32
	Shorty      string // return type first, then parameters
}

// IsNative reports whether the method is declared native.
func (m Method) IsNative() bool { return m.AccessFlags&AccNative != 0 }

// IsAbstract reports whether the method has no body.
func (m Method) IsAbstract() bool { return m.AccessFlags&AccAbstract != 0 }

// ClassDef describes one class defined by a module. A class without class
// data (a marker interface, say) has both method lists empty.
type ClassDef struct {
	Descriptor     string
	DirectMethods  []Method
	VirtualMethods []Method
}

// DexFile is one input module.
type DexFile struct {
	Location         string
	LocationChecksum uint32
	Data             []byte
	ClassDefs        []ClassDef
}

// New creates a module. The checksum is taken from the dex header when data
// is a dex file, and is otherwise the adler32 of the bytes.
func New(location string, data []byte, classDefs []ClassDef) *DexFile {
	d := &DexFile{
		Location:  location,
		Data:      data,
		ClassDefs: classDefs,
	}
	if h, err := ReadHeader(data); err == nil {
		d.LocationChecksum = h.Checksum
	} else {
		d.LocationChecksum = adler32.Checksum(data)
	}
	return d
}

// NumClassDefs returns the number of classes defined by the module.
func (d *DexFile) NumClassDefs() int {
	return len(d.ClassDefs)
}

// ClassDef returns the class at the given index.
func (d *DexFile) ClassDef(i int) *ClassDef {
	return &d.ClassDefs[i]
}

// FileSize is the number of raw bytes embedded in the OAT file.
func (d *DexFile) FileSize() uint32 {
	return uint32(len(d.Data))
}

// PrettyMethod renders a method for diagnostics, e.g. "LFoo;.bar".
func (d *DexFile) PrettyMethod(classDefIndex int, m Method) string {
	owner := "?"
	if classDefIndex >= 0 && classDefIndex < len(d.ClassDefs) {
		owner = d.ClassDefs[classDefIndex].Descriptor
	}
	name := m.Name
	if name == "" {
		name = fmt.Sprintf("method@%d", m.Index)
	}
	return owner + "." + name
}

// NumReferenceArgs counts reference-typed parameters in a shorty.
// The return type at position 0 is not counted.
func NumReferenceArgs(shorty string) int {
	n := 0
	for i := 1; i < len(shorty); i++ {
		if shorty[i] == 'L' {
			n++
		}
	}
	return n
}
