package compiled

import (
	"fmt"
	"sync"

	"github.com/DroidSim/platform-art/dexfile"
	"github.com/DroidSim/platform-art/isa"
	"github.com/DroidSim/platform-art/trampoline"
)

// Driver is the view of the compiler the OAT writer consumes. All compiled
// results must be final before the writer is created.
type Driver interface {
	InstructionSet() isa.InstructionSet
	InstructionSetFeatures() isa.Features
	IsImage() bool

	// CompiledMethod returns nil when the method was not compiled.
	CompiledMethod(ref MethodReference) *CompiledMethod
	// CompiledClassStatus reports the status recorded for a class, if any.
	CompiledClassStatus(ref ClassReference) (ClassStatus, bool)
	IsClassRejected(ref ClassReference) bool

	// CallFrameInformation returns nil when no CFI is being collected.
	CallFrameInformation() *CFIBuffer

	CreateTrampoline(kind trampoline.Kind) ([]byte, error)
	// CalleeSaveFrame is the refs-and-args callee save frame used by
	// generic JNI methods.
	CalleeSaveFrame() FrameInfo
	ResolveMethod(ref MethodReference) (*MethodRecord, error)
}

// ---------------------------------------------------------------------------
// Store: in-memory Driver
// ---------------------------------------------------------------------------

// Store is a Driver backed by maps. It can be populated concurrently by a
// pool of compiler workers and is then read by a single writer.
type Store struct {
	set      isa.InstructionSet
	features isa.Features
	image    bool

	mu         sync.RWMutex
	dexFiles   map[*dexfile.DexFile]bool
	methods    map[MethodReference]*CompiledMethod
	classes    map[ClassReference]ClassStatus
	rejected   map[ClassReference]bool
	records    map[MethodReference]*MethodRecord
	cfi        *CFIBuffer
	calleeSave FrameInfo
}

// NewStore creates an empty store for the given target.
func NewStore(set isa.InstructionSet, features isa.Features, image bool) *Store {
	return &Store{
		set:      set,
		features: features,
		image:    image,
		dexFiles: make(map[*dexfile.DexFile]bool),
		methods:  make(map[MethodReference]*CompiledMethod),
		classes:  make(map[ClassReference]ClassStatus),
		rejected: make(map[ClassReference]bool),
		records:  make(map[MethodReference]*MethodRecord),
		calleeSave: FrameInfo{
			FrameSizeInBytes: defaultCalleeSaveFrameSize(set),
		},
	}
}

func defaultCalleeSaveFrameSize(set isa.InstructionSet) uint32 {
	switch set {
	case isa.Arm, isa.Thumb2:
		return 48
	case isa.Arm64:
		return 224
	case isa.Mips:
		return 64
	case isa.X86:
		return 32
	case isa.X86_64:
		return 176
	}
	return isa.StackAlignment
}

// AddDexFile registers a module whose methods can be resolved.
func (s *Store) AddDexFile(d *dexfile.DexFile) {
	s.mu.Lock()
	s.dexFiles[d] = true
	s.mu.Unlock()
}

// AddMethod records the compiled output for a method. It fails on a
// malformed method or one built for a different instruction set.
func (s *Store) AddMethod(ref MethodReference, m *CompiledMethod) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("method %d: %w", ref.Index, err)
	}
	if m.InstructionSet != s.set && !(s.set == isa.Thumb2 && m.InstructionSet == isa.Arm) {
		return fmt.Errorf("compiled: method %d built for %v, store targets %v", ref.Index, m.InstructionSet, s.set)
	}
	s.mu.Lock()
	s.methods[ref] = m
	s.mu.Unlock()
	return nil
}

// SetClassStatus records the verification status of a class.
func (s *Store) SetClassStatus(ref ClassReference, status ClassStatus) {
	s.mu.Lock()
	s.classes[ref] = status
	s.mu.Unlock()
}

// RejectClass marks a class as having failed verification.
func (s *Store) RejectClass(ref ClassReference) {
	s.mu.Lock()
	s.rejected[ref] = true
	s.mu.Unlock()
}

// EnableCallFrameInformation makes the store collect CFI.
func (s *Store) EnableCallFrameInformation() {
	s.mu.Lock()
	if s.cfi == nil {
		s.cfi = &CFIBuffer{}
	}
	s.mu.Unlock()
}

// SetCalleeSaveFrame overrides the default callee save frame.
func (s *Store) SetCalleeSaveFrame(f FrameInfo) {
	s.mu.Lock()
	s.calleeSave = f
	s.mu.Unlock()
}

// MethodCount returns the number of compiled methods.
func (s *Store) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.methods)
}

// Record returns the live record of a resolved method, or nil.
func (s *Store) Record(ref MethodReference) *MethodRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[ref]
}

func (s *Store) InstructionSet() isa.InstructionSet   { return s.set }
func (s *Store) InstructionSetFeatures() isa.Features { return s.features }
func (s *Store) IsImage() bool                        { return s.image }

func (s *Store) CompiledMethod(ref MethodReference) *CompiledMethod {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.methods[ref]
}

func (s *Store) CompiledClassStatus(ref ClassReference) (ClassStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.classes[ref]
	return st, ok
}

func (s *Store) IsClassRejected(ref ClassReference) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejected[ref]
}

func (s *Store) CallFrameInformation() *CFIBuffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfi
}

func (s *Store) CreateTrampoline(kind trampoline.Kind) ([]byte, error) {
	return trampoline.Create(s.set, kind)
}

func (s *Store) CalleeSaveFrame() FrameInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calleeSave
}

// ResolveMethod returns the live record for a method, creating it on first
// use. Methods of unregistered modules cannot be resolved.
func (s *Store) ResolveMethod(ref MethodReference) (*MethodRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dexFiles[ref.Dex] {
		loc := "<nil>"
		if ref.Dex != nil {
			loc = ref.Dex.Location
		}
		return nil, fmt.Errorf("compiled: cannot resolve method %d: module %s not registered", ref.Index, loc)
	}
	if r, ok := s.records[ref]; ok {
		return r, nil
	}
	r := &MethodRecord{Ref: ref}
	s.records[ref] = r
	return r, nil
}

var _ Driver = (*Store)(nil)
