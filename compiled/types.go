package compiled

import (
	"fmt"

	"github.com/DroidSim/platform-art/dexfile"
)

// ClassStatus is the verification state of a class, in the runtime's
// encoding. Values are ordered: a class at or above Verified has been
// fully verified.
type ClassStatus int16

const (
	StatusError                      ClassStatus = -1
	StatusNotReady                   ClassStatus = 0
	StatusIdx                        ClassStatus = 1
	StatusLoaded                     ClassStatus = 2
	StatusResolved                   ClassStatus = 3
	StatusVerifying                  ClassStatus = 4
	StatusRetryVerificationAtRuntime ClassStatus = 5
	StatusVerifyingAtRuntime         ClassStatus = 6
	StatusVerified                   ClassStatus = 7
	StatusInitializing               ClassStatus = 8
	StatusInitialized                ClassStatus = 9
)

var statusNames = map[ClassStatus]string{
	StatusError:                      "error",
	StatusNotReady:                   "not-ready",
	StatusIdx:                        "idx",
	StatusLoaded:                     "loaded",
	StatusResolved:                   "resolved",
	StatusVerifying:                  "verifying",
	StatusRetryVerificationAtRuntime: "retry-verification-at-runtime",
	StatusVerifyingAtRuntime:         "verifying-at-runtime",
	StatusVerified:                   "verified",
	StatusInitializing:               "initializing",
	StatusInitialized:                "initialized",
}

func (s ClassStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("ClassStatus(%d)", int16(s))
}

// ParseClassStatus is the inverse of ClassStatus.String.
func ParseClassStatus(name string) (ClassStatus, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("compiled: unknown class status %q", name)
}

// MethodReference identifies a method by module and method index.
type MethodReference struct {
	Dex   *dexfile.DexFile
	Index uint32
}

// ClassReference identifies a class by module and class def index.
type ClassReference struct {
	Dex           *dexfile.DexFile
	ClassDefIndex int
}

// FrameInfo describes a stack frame layout.
type FrameInfo struct {
	FrameSizeInBytes uint32
	CoreSpillMask    uint32
	FpSpillMask      uint32
}

// MethodRecord is the live, in-memory method object of a base image. The
// writer stores the final offsets here so the image embedder can resolve
// entrypoints without re-reading the OAT file.
type MethodRecord struct {
	Ref MethodReference

	QuickCodeOffset    uint32
	PortableCodeOffset uint32
	FrameSizeInBytes   uint32
	CoreSpillMask      uint32
	FpSpillMask        uint32
	MappingTableOffset uint32
	VmapTableOffset    uint32
	GcMapOffset        uint32
}

// CFIBuffer accumulates frame description entries for every placed method.
type CFIBuffer struct {
	Data []byte
}

// Append copies fde to the end of the buffer and returns its start.
func (b *CFIBuffer) Append(fde []byte) int {
	start := len(b.Data)
	b.Data = append(b.Data, fde...)
	return start
}
