package oat

import (
	"context"
	"fmt"
	"io"

	"github.com/DroidSim/platform-art/trampoline"
)

// ---------------------------------------------------------------------------
// sink: the write pass's view of the output stream
// ---------------------------------------------------------------------------

// sink tracks the offset the write pass has reached, relative to where the
// stream was positioned when Write started, and attributes bytes to stats.
type sink struct {
	out     OutputStream
	start   int64
	offset  uint32
	checked bool
	stats   *Stats
}

func (s *sink) fail(what string, err error) error {
	log.Errorf("failed to write %s to %s: %s", what, s.out.Location(), err)
	return fmt.Errorf("oat: write %s to %s: %w", what, s.out.Location(), err)
}

// write emits b and adds its length to bucket, which may be nil.
func (s *sink) write(b []byte, what string, bucket *uint32) error {
	if err := s.out.WriteFully(b); err != nil {
		return s.fail(what, err)
	}
	s.offset += uint32(len(b))
	if bucket != nil {
		*bucket += uint32(len(b))
	}
	return nil
}

// pad writes n zero bytes.
func (s *sink) pad(n uint32, what string, bucket *uint32) error {
	if n == 0 {
		return nil
	}
	return s.write(make([]byte, n), what, bucket)
}

// skipTo advances to rel by writing zeros. The stream may already hold
// bytes there, so seeking over the gap is not enough.
func (s *sink) skipTo(rel uint32, what string, bucket *uint32) error {
	check(rel >= s.offset, "%s: cannot seek back from %#x to %#x", what, s.offset, rel)
	return s.pad(rel-s.offset, what, bucket)
}

// expect asserts that the next byte goes to rel. The stream position is
// only queried when checks are enabled.
func (s *sink) expect(rel uint32, what string) error {
	check(s.offset == rel, "%s: write offset %#x, layout offset %#x", what, s.offset, rel)
	if !s.checked {
		return nil
	}
	pos, err := s.out.Seek(0, io.SeekCurrent)
	if err != nil {
		return s.fail(what, err)
	}
	check(pos == s.start+int64(rel), "%s: stream at %d, expected %d", what, pos, s.start+int64(rel))
	return nil
}

// ---------------------------------------------------------------------------
// Write pass
// ---------------------------------------------------------------------------

// Write emits the file laid out by New at the stream's current position.
// On error the stream holds a partial file the caller must discard.
func (w *Writer) Write(ctx context.Context, out OutputStream) error {
	ctx, span := w.tracer.Start(ctx, "oat.write")
	defer span.End()

	start, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		log.Errorf("failed to locate start of %s: %s", out.Location(), err)
		return fmt.Errorf("oat: seek %s: %w", out.Location(), err)
	}
	s := &sink{out: out, start: start, checked: w.checked, stats: &Stats{}}

	for _, stage := range []struct {
		name string
		fn   func(*sink) error
	}{
		{"header", w.writeHeader},
		{"module descriptors", w.writeModuleDescriptors},
		{"modules", w.writeModules},
		{"class descriptors", w.writeClassDescriptors},
		{"executable", w.writeExecutable},
		{"code", w.writeCode},
		{"side tables", w.writeSideTables},
	} {
		_, stageSpan := w.tracer.Start(ctx, "oat.write."+stage.name)
		err := stage.fn(s)
		if err != nil {
			stageSpan.RecordError(err)
		}
		stageSpan.End()
		if err != nil {
			span.RecordError(err)
			log.Errorf("writing %s of %s failed", stage.name, out.Location())
			return err
		}
	}

	check(s.offset == w.size, "wrote %d bytes, layout computed %d", s.offset, w.size)
	if w.checked {
		check(s.stats.Total() == w.size, "size stats total %d, layout computed %d", s.stats.Total(), w.size)
	}
	w.stats = s.stats
	s.stats.logSizes()
	return nil
}

func (w *Writer) writeHeader(s *sink) error {
	b := w.header.AppendBinary(nil)
	if err := s.write(b[:HeaderFixedSize], "header", &s.stats.Header); err != nil {
		return err
	}
	return s.write(b[HeaderFixedSize:], "image location", &s.stats.HeaderImageLocation)
}

func (w *Writer) writeModuleDescriptors(s *sink) error {
	if err := s.expect(w.sections.ModuleDescriptors, "module descriptors"); err != nil {
		return err
	}
	for _, md := range w.descriptors {
		if err := s.write(md.AppendBinary(nil), "module descriptor for "+md.Location, nil); err != nil {
			return err
		}
		s.stats.ModuleLocationSize += 4
		s.stats.ModuleLocationData += uint32(len(md.Location))
		s.stats.ModuleLocationChecksum += 4
		s.stats.ModuleOffset += 4
		s.stats.ModuleClassOffsets += 4 * uint32(len(md.ClassOffsets))
	}
	return nil
}

func (w *Writer) writeModules(s *sink) error {
	for _, md := range w.descriptors {
		if err := s.skipTo(md.DexFileOffset, "module alignment", &s.stats.ModuleAlignment); err != nil {
			return err
		}
		if err := s.expect(md.DexFileOffset, "module "+md.Location); err != nil {
			return err
		}
		if err := s.write(md.dex.Data, "module "+md.Location, &s.stats.Module); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeClassDescriptors(s *sink) error {
	if err := s.expect(w.sections.ClassDescriptors, "class descriptors"); err != nil {
		return err
	}
	for i, c := range w.classes {
		what := fmt.Sprintf("class descriptor %d", i)
		if err := s.expect(c.offset, what); err != nil {
			return err
		}
		if err := s.write(c.AppendBinary(nil), what, nil); err != nil {
			return err
		}
		s.stats.ClassStatus += 2
		s.stats.ClassType += 2
		if c.Type == SomeCompiled {
			s.stats.ClassBitmaps += 4 + 4*uint32(len(c.Bitmap))
		}
		s.stats.ClassMethodOffsets += MethodOffsetsSize * uint32(len(c.MethodOffsets))
	}
	return nil
}

func (w *Writer) writeExecutable(s *sink) error {
	if w.header.ExecutableOffset == 0 {
		return nil
	}
	if err := s.skipTo(w.header.ExecutableOffset, "executable offset alignment", &s.stats.ExecutableOffsetAlignment); err != nil {
		return err
	}
	if !w.isImage {
		return nil
	}
	for k, stub := range w.trampolines {
		off := w.header.TrampolineOffsets[k]
		name := trampoline.Kind(k).String()
		if err := s.skipTo(off, name, &s.stats.TrampolineAlignment); err != nil {
			return err
		}
		if err := s.expect(off, name); err != nil {
			return err
		}
		if err := s.write(stub, name, &s.stats.Trampolines[k]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeCode(s *sink) error {
	if err := s.expect(w.sections.Code, "code"); err != nil {
		return err
	}
	v := &writeCodeVisitor{classCursor: classCursor{classes: w.classes}, s: s}
	if w.checked {
		v.replay = NewBlobTable(w.code.Kind())
	}
	return VisitMethods(w.modules, v)
}

func (w *Writer) writeSideTables(s *sink) error {
	starts := []uint32{w.sections.GcMaps, w.sections.MappingTables, w.sections.VmapTables}
	for i, kind := range sideTables {
		if err := s.expect(starts[i], kind.name+"s"); err != nil {
			return err
		}
		v := &writeMapVisitor{classCursor: classCursor{classes: w.classes}, s: s, kind: kind, bucket: kind.stat(s.stats)}
		if w.checked {
			v.replay = NewBlobTable(kind.name)
		}
		if err := VisitMethods(w.modules, v); err != nil {
			return err
		}
	}
	return nil
}
