package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/geodds/geodds/pkg/geoquery"
)

// FSOpener binds the engine contract to plain files on disk, for deployments
// that run without a query-engine library. Data lives under
// root/<dataset>/<product>/, one file per variable. Estimates are the summed
// size of the selected files and Execute copies them into the request's
// output directory; subsetting is left to the real engine binding.
type FSOpener struct {
	root string
}

// NewFSOpener validates the data root and returns the binding.
func NewFSOpener(root string) (*FSOpener, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open data root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data root %s is not a directory", root)
	}
	return &FSOpener{root: root}, nil
}

// Open checks that the product's data directory exists.
func (o *FSOpener) Open(_ context.Context, dataset, product string) (Handle, error) {
	dir := filepath.Join(o.root, dataset, product)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("no data for %s/%s: %w", dataset, product, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("no data for %s/%s: %s is not a directory", dataset, product, dir)
	}
	return &fsHandle{dir: dir}, nil
}

type fsHandle struct {
	dir string
}

// files resolves the query's variable selection against the product
// directory. An empty selection means everything.
func (h *fsHandle) files(q geoquery.Query) ([]string, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read product data: %w", err)
	}

	wanted := make(map[string]bool, len(q.Variable))
	for _, v := range q.Variable {
		wanted[v] = true
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		variable := strings.TrimSuffix(name, filepath.Ext(name))
		if len(wanted) > 0 && !wanted[variable] {
			continue
		}
		paths = append(paths, filepath.Join(h.dir, name))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no data matches the requested variables")
	}
	sort.Strings(paths)
	return paths, nil
}

func (h *fsHandle) Estimate(_ context.Context, q geoquery.Query) (int64, error) {
	paths, err := h.files(q)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		total += info.Size()
	}
	return total, nil
}

func (h *fsHandle) Execute(ctx context.Context, q geoquery.Query, outDir string) (string, error) {
	paths, err := h.files(q)
	if err != nil {
		return "", err
	}

	ext := "nc"
	if q.Format != "" {
		ext = q.Format
	}
	outPath := filepath.Join(outDir, "result."+ext)
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact %s: %w", outPath, err)
	}
	defer out.Close()

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := appendFile(out, path); err != nil {
			return "", err
		}
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize artifact %s: %w", outPath, err)
	}
	return outPath, nil
}

func appendFile(out *os.File, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	return nil
}
