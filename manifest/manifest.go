// Package manifest handles oatwriter.toml build configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/DroidSim/platform-art/isa"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "oatwriter.toml"

// Manifest represents an oatwriter.toml build configuration.
type Manifest struct {
	Target Target      `toml:"target"`
	Image  ImageConfig `toml:"image"`
	Inputs Inputs      `toml:"inputs"`
	Output Output      `toml:"output"`

	// Dir is the directory containing the oatwriter.toml file (set at load time).
	Dir string `toml:"-"`
}

// Target selects the instruction set and its optional features. Bundles
// built for another target or feature set are rejected.
type Target struct {
	InstructionSet string   `toml:"instruction-set"`
	Features       []string `toml:"features"`
}

// ImageConfig describes the base image. Base builds the image itself and
// must not name a location.
type ImageConfig struct {
	Base         bool   `toml:"base"`
	Location     string `toml:"location"`
	OatChecksum  uint32 `toml:"oat-checksum"`
	OatDataBegin uint32 `toml:"oat-data-begin"`
}

// Inputs lists compiler output bundles. Entries may be glob patterns.
type Inputs struct {
	Bundles []string `toml:"bundles"`
}

// Output configures the emitted file.
type Output struct {
	Path    string `toml:"path"`
	Checked bool   `toml:"checked"`
	Stats   bool   `toml:"stats"`
	Record  bool   `toml:"record"`
}

// Load parses an oatwriter.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Inputs.Bundles) == 0 {
		m.Inputs.Bundles = []string{"*.bundle"}
	}
	if m.Output.Path == "" {
		m.Output.Path = "out.oat"
	}
	if !md.IsDefined("output", "checked") {
		m.Output.Checked = true
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find an oatwriter.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the target names and the image settings.
func (m *Manifest) Validate() error {
	if m.Target.InstructionSet != "" {
		if _, err := isa.Parse(m.Target.InstructionSet); err != nil {
			return err
		}
	}
	if _, err := isa.ParseFeatures(m.Target.Features); err != nil {
		return err
	}
	if m.Image.Base && m.Image.Location != "" {
		return fmt.Errorf("base image build cannot reference image %q", m.Image.Location)
	}
	return nil
}

// BundlePaths expands the configured bundle patterns relative to Dir.
// Matches are sorted per pattern; a pattern matching nothing is an error.
func (m *Manifest) BundlePaths() ([]string, error) {
	var paths []string
	for _, pattern := range m.Inputs.Bundles {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(m.Dir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad bundle pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no bundles match %s", pattern)
		}
		slices.Sort(matches)
		paths = append(paths, matches...)
	}
	return slices.Compact(paths), nil
}

// OutputPath returns the absolute path of the OAT file.
func (m *Manifest) OutputPath() string {
	if filepath.IsAbs(m.Output.Path) {
		return m.Output.Path
	}
	return filepath.Join(m.Dir, m.Output.Path)
}

// RecordPath returns the path to .oatwriter/record.toml.
func (m *Manifest) RecordPath() string {
	return filepath.Join(m.Dir, ".oatwriter", "record.toml")
}
