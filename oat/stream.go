package oat

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// OutputStream is the sink an OAT file is written to.
type OutputStream interface {
	// Location names the sink in log and error messages.
	Location() string
	// WriteFully writes all of b or fails.
	WriteFully(b []byte) error
	// Seek follows io.Seeker. Seeking past the end zero-fills the gap.
	Seek(offset int64, whence int) (int64, error)
}

// ---------------------------------------------------------------------------
// FileOutputStream
// ---------------------------------------------------------------------------

// FileOutputStream writes to an open file.
type FileOutputStream struct {
	f *os.File
}

// NewFileOutputStream wraps f. The caller keeps ownership of f.
func NewFileOutputStream(f *os.File) *FileOutputStream {
	return &FileOutputStream{f: f}
}

func (s *FileOutputStream) Location() string { return s.f.Name() }

func (s *FileOutputStream) WriteFully(b []byte) error {
	n, err := s.f.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return io.ErrShortWrite
	}
	return nil
}

func (s *FileOutputStream) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.f.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	fi, err := s.f.Stat()
	if err != nil {
		return pos, err
	}
	if pos > fi.Size() {
		if err := s.f.Truncate(pos); err != nil {
			return pos, err
		}
	}
	return pos, nil
}

// ---------------------------------------------------------------------------
// VectorOutputStream
// ---------------------------------------------------------------------------

// VectorOutputStream writes into memory.
type VectorOutputStream struct {
	name string
	buf  []byte
	pos  int64
}

// NewVectorOutputStream creates an empty in-memory sink.
func NewVectorOutputStream(name string) *VectorOutputStream {
	return &VectorOutputStream{name: name}
}

func (s *VectorOutputStream) Location() string { return s.name }

func (s *VectorOutputStream) WriteFully(b []byte) error {
	end := s.pos + int64(len(b))
	s.grow(end)
	copy(s.buf[s.pos:end], b)
	s.pos = end
	return nil
}

var errNegativeSeek = errors.New("oat: seek to negative position")

func (s *VectorOutputStream) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = int64(len(s.buf)) + offset
	default:
		return s.pos, fmt.Errorf("oat: invalid whence %d", whence)
	}
	if pos < 0 {
		return s.pos, errNegativeSeek
	}
	s.grow(pos)
	s.pos = pos
	return pos, nil
}

func (s *VectorOutputStream) grow(n int64) {
	if n > int64(len(s.buf)) {
		s.buf = append(s.buf, make([]byte, n-int64(len(s.buf)))...)
	}
}

// Bytes returns the bytes written so far.
func (s *VectorOutputStream) Bytes() []byte { return s.buf }
