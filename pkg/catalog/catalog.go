package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultMaximumQuerySizeGB applies when a product does not declare its own
// size cap.
const DefaultMaximumQuerySizeGB = 10.0

var (
	// ErrMissingDataset reports a dataset name absent from the catalog.
	ErrMissingDataset = errors.New("dataset not found in catalog")
	// ErrMissingProduct reports a product name absent from a dataset.
	ErrMissingProduct = errors.New("product not found in dataset")
	// ErrMissingKeyInCatalogEntry reports a catalog entry lacking a key the
	// caller requires.
	ErrMissingKeyInCatalogEntry = errors.New("missing key in catalog entry")
)

// Product is one queryable collection within a dataset.
type Product struct {
	Name               string                 `yaml:"-" json:"name"`
	Description        string                 `yaml:"description" json:"description"`
	Role               string                 `yaml:"role" json:"role"`
	MaximumQuerySizeGB float64                `yaml:"maximum_query_size_gb" json:"maximum_query_size_gb"`
	Metadata           map[string]interface{} `yaml:"metadata" json:"metadata"`
}

// MetadataValue fetches a metadata key, reporting ErrMissingKeyInCatalogEntry
// when it is absent.
func (p Product) MetadataValue(key string) (interface{}, error) {
	v, ok := p.Metadata[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q in product %q", ErrMissingKeyInCatalogEntry, key, p.Name)
	}
	return v, nil
}

// Dataset is one catalog file: shared metadata plus its products.
type Dataset struct {
	Name     string                 `yaml:"name" json:"name"`
	Metadata map[string]interface{} `yaml:"metadata" json:"metadata"`
	Products map[string]*Product    `yaml:"products" json:"products"`
}

// Catalog is the loaded set of datasets. Lookups are safe for concurrent use
// with Reload.
type Catalog struct {
	path string

	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// Open loads every *.yaml/*.yml file under path.
func Open(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog directory, replacing the loaded datasets
// atomically. A parse failure leaves the previous catalog in place.
func (c *Catalog) Reload() error {
	entries, err := os.ReadDir(c.path)
	if err != nil {
		return fmt.Errorf("failed to read catalog directory %s: %w", c.path, err)
	}

	datasets := make(map[string]*Dataset)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		ds, err := loadDatasetFile(filepath.Join(c.path, entry.Name()))
		if err != nil {
			return err
		}
		datasets[ds.Name] = ds
	}

	c.mu.Lock()
	c.datasets = datasets
	c.mu.Unlock()
	return nil
}

func loadDatasetFile(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var ds Dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	if ds.Name == "" {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingKeyInCatalogEntry, "name", path)
	}

	for name, p := range ds.Products {
		p.Name = name
		if p.Role == "" {
			p.Role = "public"
		}
		if p.MaximumQuerySizeGB <= 0 {
			p.MaximumQuerySizeGB = DefaultMaximumQuerySizeGB
		}
	}
	return &ds, nil
}

// Datasets returns all datasets sorted by name.
func (c *Catalog) Datasets() []*Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Dataset, 0, len(c.datasets))
	for _, ds := range c.datasets {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dataset looks up one dataset by name.
func (c *Catalog) Dataset(name string) (*Dataset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ds, ok := c.datasets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingDataset, name)
	}
	return ds, nil
}

// Product looks up one product within a dataset.
func (c *Catalog) Product(dataset, product string) (*Product, error) {
	ds, err := c.Dataset(dataset)
	if err != nil {
		return nil, err
	}
	p, ok := ds.Products[product]
	if !ok {
		return nil, fmt.Errorf("%w: %q in dataset %q", ErrMissingProduct, product, dataset)
	}
	return p, nil
}
