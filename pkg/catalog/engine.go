package catalog

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/geodds/geodds/pkg/geoquery"
)

const (
	handleCacheSize = 128
	handleCacheTTL  = 15 * time.Minute
)

// Handle is an open view onto one product, ready to answer queries.
type Handle interface {
	// Estimate returns the result size in bytes without computing anything.
	Estimate(ctx context.Context, q geoquery.Query) (int64, error)
	// Execute runs the query and returns the path of the produced artifact.
	Execute(ctx context.Context, q geoquery.Query, outDir string) (string, error)
}

// Opener opens product handles. Implemented by the query-engine binding.
type Opener interface {
	Open(ctx context.Context, dataset, product string) (Handle, error)
}

// Engine fronts the query engine with a TTL'd LRU of open product handles.
// Opening a handle reads catalog and index metadata, which dominates the cost
// of an estimate, so repeated estimates against the same product reuse the
// cached handle.
type Engine struct {
	opener  Opener
	handles *lru.LRU[string, Handle]
}

// NewEngine wraps an Opener with the handle cache.
func NewEngine(opener Opener) *Engine {
	return &Engine{
		opener:  opener,
		handles: lru.NewLRU[string, Handle](handleCacheSize, nil, handleCacheTTL),
	}
}

func (e *Engine) handle(ctx context.Context, dataset, product string) (Handle, error) {
	key := dataset + "/" + product
	if h, ok := e.handles.Get(key); ok {
		return h, nil
	}
	h, err := e.opener.Open(ctx, dataset, product)
	if err != nil {
		return nil, fmt.Errorf("failed to open product %s: %w", key, err)
	}
	e.handles.Add(key, h)
	return h, nil
}

// Estimate returns the size in bytes a query would produce. Read-only; never
// triggers compute.
func (e *Engine) Estimate(ctx context.Context, dataset, product string, q geoquery.Query) (int64, error) {
	h, err := e.handle(ctx, dataset, product)
	if err != nil {
		return 0, err
	}
	return h.Estimate(ctx, q)
}

// Execute computes the query into outDir and returns the artifact path.
func (e *Engine) Execute(ctx context.Context, dataset, product string, q geoquery.Query, outDir string) (string, error) {
	h, err := e.handle(ctx, dataset, product)
	if err != nil {
		return "", err
	}
	return h.Execute(ctx, q, outDir)
}
