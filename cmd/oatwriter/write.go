package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DroidSim/platform-art/bundle"
	"github.com/DroidSim/platform-art/isa"
	"github.com/DroidSim/platform-art/manifest"
	"github.com/DroidSim/platform-art/oat"
)

type writeFlags struct {
	manifestDir string
	output      string
	instrSet    string
	baseImage   bool
	imageLoc    string
	imageSum    uint32
	imageBegin  uint32
	checked     bool
	stats       bool
	record      bool
}

func newWriteCommand() *cobra.Command {
	var f writeFlags
	cmd := &cobra.Command{
		Use:   "write [bundles...]",
		Short: "Lay out and write an OAT file",
		Long: `Reads compiler output bundles and writes one OAT file.

Without bundle arguments, the bundles listed in the nearest oatwriter.toml
are used. Flags override manifest settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(f.manifestDir)
			if err != nil {
				return err
			}
			applyFlags(cmd, m, &f)
			paths := args
			if len(paths) == 0 {
				if paths, err = m.BundlePaths(); err != nil {
					return err
				}
			}
			return writeOat(cmd.Context(), m, paths, cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.manifestDir, "manifest", "", "Directory holding oatwriter.toml (default: search upwards from the working directory)")
	fl.StringVarP(&f.output, "output", "o", "", "Output file")
	fl.StringVar(&f.instrSet, "isa", "", "Expected instruction set of the bundles")
	fl.BoolVar(&f.baseImage, "base-image", false, "Build the base image itself")
	fl.StringVar(&f.imageLoc, "image-location", "", "Location of the base image")
	fl.Uint32Var(&f.imageSum, "image-oat-checksum", 0, "Checksum of the base image's OAT file")
	fl.Uint32Var(&f.imageBegin, "image-oat-data-begin", 0, "Load address of the base image's OAT data")
	fl.BoolVar(&f.checked, "checked", true, "Cross-check the write pass against the layout")
	fl.BoolVar(&f.stats, "stats", false, "Print the size breakdown")
	fl.BoolVar(&f.record, "record", false, "Write a build record next to the manifest")
	return cmd
}

// loadManifest loads dir's manifest, or searches from the working directory
// when dir is empty. Without a manifest an empty one rooted at the working
// directory is used.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil || m != nil {
		return m, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return &manifest.Manifest{
		Dir:    wd,
		Inputs: manifest.Inputs{Bundles: []string{"*.bundle"}},
		Output: manifest.Output{Path: "out.oat", Checked: true},
	}, nil
}

func applyFlags(cmd *cobra.Command, m *manifest.Manifest, f *writeFlags) {
	changed := cmd.Flags().Changed
	if changed("output") {
		m.Output.Path = f.output
		if !filepath.IsAbs(f.output) {
			if abs, err := filepath.Abs(f.output); err == nil {
				m.Output.Path = abs
			}
		}
	}
	if changed("isa") {
		m.Target.InstructionSet = f.instrSet
	}
	if changed("base-image") {
		m.Image.Base = f.baseImage
	}
	if changed("image-location") {
		m.Image.Location = f.imageLoc
	}
	if changed("image-oat-checksum") {
		m.Image.OatChecksum = f.imageSum
	}
	if changed("image-oat-data-begin") {
		m.Image.OatDataBegin = f.imageBegin
	}
	if changed("checked") {
		m.Output.Checked = f.checked
	}
	if changed("stats") {
		m.Output.Stats = f.stats
	}
	if changed("record") {
		m.Output.Record = f.record
	}
}

func writeOat(ctx context.Context, m *manifest.Manifest, paths []string, stdout io.Writer) error {
	if err := m.Validate(); err != nil {
		return err
	}

	bundles, err := bundle.LoadAll(ctx, paths)
	if err != nil {
		return err
	}
	merged, err := bundle.Merge(bundles...)
	if err != nil {
		return err
	}
	if err := checkTarget(m.Target, merged); err != nil {
		return err
	}

	modules, store, err := bundle.Build(ctx, merged, m.Image.Base)
	if err != nil {
		return err
	}
	image := oat.ImageInfo{
		OatChecksum:  m.Image.OatChecksum,
		OatDataBegin: m.Image.OatDataBegin,
		Location:     m.Image.Location,
	}
	w, err := oat.New(ctx, modules, store, image, oat.WithChecks(m.Output.Checked))
	if err != nil {
		return err
	}

	path := m.OutputPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := w.Write(ctx, oat.NewFileOutputStream(out)); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	log.Infof("wrote %s: %d bytes, checksum %#08x", path, w.Size(), w.Header().Checksum)

	if m.Output.Stats {
		st := w.Stats()
		for _, e := range st.Entries() {
			fmt.Fprintf(stdout, "%-28s %8d\n", e.Name, e.Size)
		}
		fmt.Fprintf(stdout, "%-28s %8d\n\n", "total", st.Total())
		for _, t := range w.DedupeStats() {
			fmt.Fprintf(stdout, "%-16s %6d unique %6d shared\n", t.Kind(), t.Len(), t.Hits())
		}
	}
	if m.Output.Record {
		if err := manifest.WriteRecord(m.RecordPath(), buildRecord(m, w, path)); err != nil {
			return err
		}
	}
	return nil
}

// checkTarget rejects bundles compiled for another instruction set or
// feature set than the manifest names. Empty manifest fields match anything.
func checkTarget(target manifest.Target, b *bundle.Bundle) error {
	if want := target.InstructionSet; want != "" {
		wantSet, err := isa.Parse(want)
		if err != nil {
			return fmt.Errorf("manifest instruction set: %w", err)
		}
		gotSet, err := isa.Parse(b.Target)
		if err != nil {
			return fmt.Errorf("bundle target: %w", err)
		}
		if gotSet != wantSet {
			return fmt.Errorf("bundles target %s, manifest expects %s", gotSet, wantSet)
		}
	}
	if len(target.Features) > 0 {
		want, err := isa.ParseFeatures(target.Features)
		if err != nil {
			return fmt.Errorf("manifest features: %w", err)
		}
		got, err := isa.ParseFeatures(b.Features)
		if err != nil {
			return fmt.Errorf("bundle features: %w", err)
		}
		if got != want {
			return fmt.Errorf("bundles use features %s, manifest expects %s", got, want)
		}
	}
	return nil
}

func buildRecord(m *manifest.Manifest, w *oat.Writer, path string) *manifest.Record {
	rec := &manifest.Record{
		Output:         path,
		InstructionSet: w.Header().InstructionSet.String(),
		Size:           w.Size(),
		Checksum:       w.Header().Checksum,
	}
	for _, md := range w.ModuleDescriptors() {
		rec.Modules = append(rec.Modules, manifest.RecordedModule{
			Location: md.Location,
			Checksum: md.LocationChecksum,
			Classes:  len(md.ClassOffsets),
		})
	}
	return rec
}
