package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[target]
instruction-set = "arm"
features = ["div", "lpae"]

[image]
location = "/system/framework/boot.art"
oat-checksum = 3735928559
oat-data-begin = 0x70000000

[inputs]
bundles = ["core.bundle", "apps/*.bundle"]

[output]
path = "build/app.oat"
checked = false
stats = true
record = true
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Target.InstructionSet != "arm" {
		t.Errorf("instruction set = %q, want arm", m.Target.InstructionSet)
	}
	if !reflect.DeepEqual(m.Target.Features, []string{"div", "lpae"}) {
		t.Errorf("features = %v, want [div lpae]", m.Target.Features)
	}
	if m.Image.Location != "/system/framework/boot.art" {
		t.Errorf("image location = %q", m.Image.Location)
	}
	if m.Image.OatChecksum != 0xDEADBEEF {
		t.Errorf("image oat checksum = %#x, want 0xdeadbeef", m.Image.OatChecksum)
	}
	if m.Image.OatDataBegin != 0x70000000 {
		t.Errorf("image oat data begin = %#x, want 0x70000000", m.Image.OatDataBegin)
	}
	if len(m.Inputs.Bundles) != 2 {
		t.Errorf("bundles count = %d, want 2", len(m.Inputs.Bundles))
	}
	if m.Output.Checked {
		t.Error("output checked = true, want false")
	}
	if !m.Output.Stats || !m.Output.Record {
		t.Errorf("output = %+v, want stats and record", m.Output)
	}
	if got, want := m.OutputPath(), filepath.Join(m.Dir, "build", "app.oat"); got != want {
		t.Errorf("output path = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[target]
instruction-set = "x86_64"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Inputs.Bundles) != 1 || m.Inputs.Bundles[0] != "*.bundle" {
		t.Errorf("default bundles = %v, want [*.bundle]", m.Inputs.Bundles)
	}
	if m.Output.Path != "out.oat" {
		t.Errorf("default output = %q, want out.oat", m.Output.Path)
	}
	if !m.Output.Checked {
		t.Error("checks should default to on")
	}
	if m.Image.Base {
		t.Error("base image should default to off")
	}
}

func TestLoadManifestRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown isa", "[target]\ninstruction-set = \"vax\"\n", "unknown instruction set"},
		{"unknown feature", "[target]\nfeatures = [\"sse9\"]\n", "unknown feature"},
		{"base with location", "[image]\nbase = true\nlocation = \"boot.art\"\n", "cannot reference image"},
		{"unknown key", "[output]\nformat = \"elf\"\n", "unknown key output.format"},
		{"syntax", "[target\n", "parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[target]\ninstruction-set = \"mips\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Target.InstructionSet != "mips" {
		t.Errorf("instruction set = %q, want mips", m.Target.InstructionSet)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no oatwriter.toml exists")
	}
}

func TestBundlePaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "apps"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"core.bundle", "apps/b.bundle", "apps/a.bundle", "apps/notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	m := &Manifest{Dir: dir, Inputs: Inputs{Bundles: []string{"core.bundle", "apps/*.bundle"}}}
	paths, err := m.BundlePaths()
	if err != nil {
		t.Fatalf("BundlePaths failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "core.bundle"),
		filepath.Join(dir, "apps", "a.bundle"),
		filepath.Join(dir, "apps", "b.bundle"),
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}

	m.Inputs.Bundles = []string{"missing/*.bundle"}
	if _, err := m.BundlePaths(); err == nil {
		t.Error("expected an error for a pattern matching nothing")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	m := &Manifest{Dir: t.TempDir()}
	path := m.RecordPath()

	rec := &Record{
		Output:         "out.oat",
		InstructionSet: "arm64",
		Size:           8192,
		Checksum:       0xFEEDF00D,
		Modules: []RecordedModule{
			{Location: "core.dex", Checksum: 0x1234, Classes: 3},
			{Location: "app.dex", Checksum: 0x5678, Classes: 1},
		},
	}
	if err := WriteRecord(path, rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	loaded, err := ReadRecord(path)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, rec) {
		t.Errorf("record = %+v, want %+v", loaded, rec)
	}

	found := loaded.FindModule("app.dex")
	if found == nil || found.Checksum != 0x5678 {
		t.Errorf("FindModule(app.dex) = %v, want checksum 0x5678", found)
	}
	if notFound := loaded.FindModule("nonexistent.dex"); notFound != nil {
		t.Errorf("FindModule(nonexistent.dex) = %v, want nil", notFound)
	}
}

func TestReadRecordNotFound(t *testing.T) {
	rec, err := ReadRecord(filepath.Join(t.TempDir(), "record.toml"))
	if err != nil {
		t.Errorf("ReadRecord should return nil,nil for missing file, got err: %v", err)
	}
	if rec != nil {
		t.Errorf("ReadRecord should return nil for missing file, got %v", rec)
	}
}
