package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DroidSim/platform-art/bundle"
	"github.com/DroidSim/platform-art/manifest"
	"github.com/DroidSim/platform-art/oat"
)

func writeFixture(t *testing.T, dir string) {
	t.Helper()
	b := &bundle.Bundle{
		Target: "x86",
		Modules: []bundle.Module{{
			Location: "core.dex",
			Data:     bytes.Repeat([]byte{0x11}, 40),
			Classes: []bundle.Class{{
				Descriptor: "LMain;",
				Status:     "verified",
				Direct: []bundle.Method{{
					Index: 0, Name: "main", Shorty: "V",
					Compiled: &bundle.Compiled{
						QuickCode: []byte{0x55, 0xC3},
						Frame:     bundle.Frame{Size: 16},
						GcMap:     []byte{0},
					},
				}},
			}},
		}},
	}
	require.NoError(t, bundle.WriteFile(filepath.Join(dir, "core.bundle"), b))
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(`
[target]
instruction-set = "x86"

[image]
location = "boot.art"

[output]
path = "out/app.oat"
stats = true
record = true
`), 0o644))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestWriteFromManifest(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	out, err := run(t, "write", "--manifest", dir)
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^code +2$`, out)
	assert.Regexp(t, `(?m)^total +\d+\n\n`, out)
	assert.Regexp(t, `(?m)^\S+ +\d+ unique +\d+ shared$`, out)

	data, err := os.ReadFile(filepath.Join(dir, "out", "app.oat"))
	require.NoError(t, err)
	f, err := oat.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "boot.art", f.Header.ImageLocation)
	require.Len(t, f.Modules, 1)
	assert.Equal(t, "core.dex", f.Modules[0].Location)

	rec, err := manifest.ReadRecord(filepath.Join(dir, ".oatwriter", "record.toml"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, uint32(len(data)), rec.Size)
	assert.Equal(t, f.Header.Checksum, rec.Checksum)
	assert.Equal(t, 1, rec.FindModule("core.dex").Classes)

	out, err = run(t, "dump", "-d", filepath.Join(dir, "out", "app.oat"))
	require.NoError(t, err)
	assert.Contains(t, out, "core.dex")
	assert.Contains(t, out, "RET")
}

func TestWriteExplicitBundles(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	target := filepath.Join(t.TempDir(), "explicit.oat")

	_, err := run(t, "write", "--manifest", dir, "--image-location", "", "--stats=false", "--record=false",
		"-o", target, filepath.Join(dir, "core.bundle"))
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	f, err := oat.Parse(data)
	require.NoError(t, err)
	assert.Empty(t, f.Header.ImageLocation)
	assert.NoFileExists(t, filepath.Join(dir, ".oatwriter", "record.toml"))
}

func TestWriteTargetMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	_, err := run(t, "write", "--manifest", dir, "--isa", "arm64")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest expects arm64")
	assert.NoFileExists(t, filepath.Join(dir, "out", "app.oat"))
}

func TestWriteFeatureMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(`
[target]
instruction-set = "x86"
features = ["div"]
`), 0o644))

	_, err := run(t, "write", "--manifest", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundles use features none, manifest expects div")
	assert.NoFileExists(t, filepath.Join(dir, "out.oat"))
}

func TestWriteRejectsUnknownInstructionSet(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	_, err := run(t, "write", "--manifest", dir, "--isa", "vax")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "out", "app.oat"))
}

func TestWriteBaseImageRejectsLocation(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir)

	_, err := run(t, "write", "--manifest", dir, "--base-image")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reference image")
}

func TestDumpMissingFile(t *testing.T) {
	_, err := run(t, "dump", filepath.Join(t.TempDir(), "nope.oat"))
	assert.Error(t, err)
}
