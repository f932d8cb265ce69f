package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/geodds/geodds/pkg/catalog"
	"github.com/geodds/geodds/pkg/geoquery"
	"github.com/geodds/geodds/pkg/httputil"
	"github.com/geodds/geodds/pkg/middleware"
	"github.com/geodds/geodds/pkg/units"
)

type productSummary struct {
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	Role               string  `json:"role"`
	MaximumQuerySizeGB float64 `json:"maximum_query_size_gb"`
}

type datasetSummary struct {
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
	Products []productSummary       `json:"products"`
}

// listDatasets returns every dataset with the subset of products the caller's
// roles satisfy.
func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.AuthContext(r)

	out := make([]datasetSummary, 0)
	for _, ds := range s.catalog.Datasets() {
		summary := datasetSummary{
			Name:     ds.Name,
			Metadata: ds.Metadata,
			Products: make([]productSummary, 0, len(ds.Products)),
		}
		for _, p := range ds.Products {
			if !authCtx.Authorized(p.Role) {
				continue
			}
			summary.Products = append(summary.Products, productSummary{
				Name:               p.Name,
				Description:        p.Description,
				Role:               p.Role,
				MaximumQuerySizeGB: p.MaximumQuerySizeGB,
			})
		}
		sort.Slice(summary.Products, func(i, j int) bool {
			return summary.Products[i].Name < summary.Products[j].Name
		})
		out = append(out, summary)
	}
	httputil.WriteSuccess(w, out)
}

// product resolves the path's product and enforces its role. Used by every
// product-scoped handler.
func (s *Server) product(w http.ResponseWriter, r *http.Request) (*catalog.Product, bool) {
	dataset, _ := httputil.ParsePathString(r, "dataset")
	product, _ := httputil.ParsePathString(r, "product")

	p, err := s.catalog.Product(dataset, product)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	if !middleware.AuthContext(r).Authorized(p.Role) {
		httputil.WriteUnauthorized(w, "authorization failed")
		return nil, false
	}
	return p, true
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := s.product(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, p)
}

// getMetadata returns a product's metadata, or a single entry when ?key=
// names one.
func (s *Server) getMetadata(w http.ResponseWriter, r *http.Request) {
	p, ok := s.product(w, r)
	if !ok {
		return
	}
	if key := httputil.ParseQueryString(r, "key", ""); key != "" {
		v, err := p.MetadataValue(key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, map[string]interface{}{key: v})
		return
	}
	httputil.WriteSuccess(w, p.Metadata)
}

// estimate answers the size a query would produce, in a human-friendly unit
// unless ?unit= requests a specific one.
func (s *Server) estimate(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.product(w, r); !ok {
		return
	}
	dataset, _ := httputil.ParsePathString(r, "dataset")
	product, _ := httputil.ParsePathString(r, "product")

	body, err := httputil.ReadBody(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	q, err := geoquery.Parse(body)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	start := time.Now()
	bytes, err := s.engine.Estimate(r.Context(), dataset, product, *q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.EstimateDuration.Observe(time.Since(start).Seconds())
	}

	var size units.Size
	if unitName := httputil.ParseQueryString(r, "unit", ""); unitName != "" {
		unit, err := units.ParseUnit(unitName)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		size = units.Convert(float64(bytes), unit)
	} else {
		size = units.Humanize(float64(bytes))
	}
	httputil.WriteSuccess(w, size)
}
