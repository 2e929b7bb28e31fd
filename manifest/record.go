package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Record describes the last file written from a manifest, so a later run
// can tell whether its inputs changed.
type Record struct {
	Output         string           `toml:"output"`
	InstructionSet string           `toml:"instruction-set"`
	Size           uint32           `toml:"size"`
	Checksum       uint32           `toml:"checksum"`
	Modules        []RecordedModule `toml:"module"`
}

// RecordedModule is one input module of a recorded build.
type RecordedModule struct {
	Location string `toml:"location"`
	Checksum uint32 `toml:"checksum"`
	Classes  int    `toml:"classes"`
}

// FindModule returns the recorded module with the given location, or nil.
func (r *Record) FindModule(location string) *RecordedModule {
	for i := range r.Modules {
		if r.Modules[i].Location == location {
			return &r.Modules[i]
		}
	}
	return nil
}

// ReadRecord loads a build record. A missing file yields nil, nil.
func ReadRecord(path string) (*Record, error) {
	var r Record
	if _, err := toml.DecodeFile(path, &r); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &r, nil
}

// WriteRecord stores a build record, creating its directory.
func WriteRecord(path string, r *Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(r); err != nil {
		f.Close()
		return fmt.Errorf("cannot encode %s: %w", path, err)
	}
	return f.Close()
}
