package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/sparcsviz/internal/aggregate"
	"github.com/verte-zerg/sparcsviz/internal/charts"
	"github.com/verte-zerg/sparcsviz/internal/chartspec"
	"github.com/verte-zerg/sparcsviz/internal/config"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [kind...]",
		Short: "Write chart documents to <dir>/<kind>.json",
		RunE:  runExportCmd,
	}
	defaults := config.Defaults()
	cmd.Flags().StringVar(&exportDir, "dir", defaults.ExportDir, "output directory")
	cmd.Flags().IntVar(&exportWorkers, "workers", defaults.Workers, "charts built in parallel")
	cmd.Flags().BoolVar(&exportPretty, "pretty", defaults.Pretty, "indent the JSON output")
	return cmd
}

func runExportCmd(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	applyFlag(cmd, "dir", &s.ExportDir, exportDir)
	applyFlag(cmd, "workers", &s.Workers, exportWorkers)
	applyFlag(cmd, "pretty", &s.Pretty, exportPretty)
	if s.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}

	kinds := args
	if len(kinds) == 0 {
		kinds = charts.Kinds()
	}
	for _, k := range kinds {
		if _, ok := charts.Lookup(k); !ok {
			return fmt.Errorf("unknown chart kind %q (run: sparcs kinds)", k)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cat, err := loadCatalog(ctx, s, verboseQueries)
	if err != nil {
		return err
	}
	written, err := exportCharts(ctx, cat, kinds, exportOptions{Dir: s.ExportDir, Workers: s.Workers, Pretty: s.Pretty})
	for _, path := range written {
		logErrf("Wrote %s\n", path)
	}
	return err
}

type exportOptions struct {
	Dir     string
	Workers int
	Pretty  bool
}

// exportCharts builds kinds concurrently and writes one file per kind. The
// returned paths are sorted and cover every file written, even when another
// kind failed.
func exportCharts(ctx context.Context, cat *aggregate.Catalog, kinds []string, opts exportOptions) ([]string, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	paths := make([]string, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))
	for i, kind := range kinds {
		g.Go(func() error {
			doc, err := charts.BuildContext(gctx, cat, kind, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			b, err := render(doc, opts.Pretty)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			path := filepath.Join(opts.Dir, kind+".json")
			if err := writeFileAtomic(path, b); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			paths[i] = path
			return nil
		})
	}
	err := g.Wait()

	var written []string
	for _, p := range paths {
		if p != "" {
			written = append(written, p)
		}
	}
	sort.Strings(written)
	return written, err
}

// render serializes doc and terminates it with a newline.
func render(doc *chartspec.Document, pretty bool) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = doc.Pretty()
	} else {
		b, err = doc.Serialize()
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}
	return b, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".chart-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
