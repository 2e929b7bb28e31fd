package oat

import (
	"github.com/DroidSim/platform-art/dexfile"
)

// ---------------------------------------------------------------------------
// Write pass visitors
// ---------------------------------------------------------------------------

// writeCodeVisitor emits method headers and code bodies. A body whose
// recorded offset lies behind the write offset was deduplicated in the
// layout pass and has already been written.
type writeCodeVisitor struct {
	classCursor
	s      *sink
	replay *BlobTable // checked builds only
}

func (v *writeCodeVisitor) ProcessMethod(ordinal int, m dexfile.Method) error {
	cm, mo := v.nextCompiled(ordinal)
	if cm == nil || cm.IsPortable() {
		return nil
	}
	code := cm.QuickCode
	codeStart := mo.CodeOffset - cm.CodeDelta()
	start := cm.AlignCode(v.s.offset + MethodHeaderSize)

	if v.replay != nil {
		placed, isNew := v.replay.GetOrInsert(code, start)
		check(placed == codeStart && isNew == (codeStart == start),
			"%s: code deduplicated differently (layout %#x, write %#x new=%t)",
			v.prettyMethod(m), codeStart, placed, isNew)
	}

	if codeStart < v.s.offset {
		check(codeStart+uint32(len(code)) <= v.s.offset, "%s: duplicate code at %#x overlaps write offset %#x",
			v.prettyMethod(m), codeStart, v.s.offset)
		return nil
	}
	check(codeStart == start, "%s: code at %#x, expected %#x", v.prettyMethod(m), codeStart, start)

	name := v.prettyMethod(m)
	if err := v.s.pad(start-MethodHeaderSize-v.s.offset, "code alignment", &v.s.stats.CodeAlignment); err != nil {
		return err
	}
	if err := v.s.expect(start-MethodHeaderSize, "method header for "+name); err != nil {
		return err
	}
	if err := v.s.write(uint32Bytes(uint32(len(code))), "method header for "+name, &v.s.stats.MethodHeader); err != nil {
		return err
	}
	return v.s.write(code, "code for "+name, &v.s.stats.Code)
}

// writeMapVisitor emits one kind of side table.
type writeMapVisitor struct {
	classCursor
	s      *sink
	kind   sideTable
	bucket *uint32
	replay *BlobTable // checked builds only
}

func (v *writeMapVisitor) ProcessMethod(ordinal int, m dexfile.Method) error {
	cm, mo := v.nextCompiled(ordinal)
	if cm == nil {
		return nil
	}
	blob := v.kind.blob(cm)
	recorded := *v.kind.field(mo)
	if len(blob) == 0 {
		check(recorded == 0, "%s: empty %s recorded at %#x", v.prettyMethod(m), v.kind.name, recorded)
		return nil
	}

	if v.replay != nil {
		placed, isNew := v.replay.GetOrInsert(blob, v.s.offset)
		check(placed == recorded && isNew == (recorded == v.s.offset),
			"%s: %s deduplicated differently (layout %#x, write %#x new=%t)",
			v.prettyMethod(m), v.kind.name, recorded, placed, isNew)
	}

	if recorded < v.s.offset {
		return nil
	}
	name := v.kind.name + " for " + v.prettyMethod(m)
	check(recorded == v.s.offset, "%s at %#x, write offset %#x", name, recorded, v.s.offset)
	if err := v.s.expect(recorded, name); err != nil {
		return err
	}
	return v.s.write(blob, name, v.bucket)
}
