package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/geodds/geodds/pkg/artifacts"
	"github.com/geodds/geodds/pkg/catalog"
	"github.com/geodds/geodds/pkg/httputil"
	"github.com/geodds/geodds/pkg/middleware"
	"github.com/geodds/geodds/pkg/store"
)

// ErrNotYetAccomplished reports a download attempted before the request
// reached DONE.
var ErrNotYetAccomplished = errors.New("request not yet accomplished")

// SizeExceededError rejects an execute whose estimate is over the product's
// configured cap. Both quantities are reported in GB.
type SizeExceededError struct {
	EstimatedGB float64
	AllowedGB   float64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("maximum allowed size exceeded: estimated %.2f GB, allowed %.2f GB",
		e.EstimatedGB, e.AllowedGB)
}

// writeError maps a service error to its HTTP status. Validation failures,
// missing entities and size-gate rejections are 400; a download attempted
// before DONE is 404; everything unclassified is logged and surfaced as 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var sizeErr *SizeExceededError
	switch {
	case errors.Is(err, catalog.ErrMissingDataset),
		errors.Is(err, catalog.ErrMissingProduct),
		errors.Is(err, catalog.ErrMissingKeyInCatalogEntry),
		errors.Is(err, store.ErrRequestNotFound),
		errors.Is(err, artifacts.ErrEmptyArtifact):
		httputil.WriteError(w, http.StatusBadRequest, err)
	case errors.As(err, &sizeErr):
		httputil.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrNotYetAccomplished):
		httputil.WriteError(w, http.StatusNotFound, err)
	default:
		middleware.Logger(r, s.logger).WithError(err).Error("request failed")
		httputil.WriteInternalError(w)
	}
}
