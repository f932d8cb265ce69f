package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/geodds/geodds/pkg/catalog"
	"github.com/geodds/geodds/pkg/geoquery"
	"github.com/geodds/geodds/pkg/middleware"
	"github.com/geodds/geodds/pkg/observability"
	"github.com/geodds/geodds/pkg/queue"
	"github.com/geodds/geodds/pkg/store"
)

// RequestStore is the slice of the request store the gateway needs.
type RequestStore interface {
	CreateRequest(ctx context.Context, userID, dataset, product string, query json.RawMessage, format string, estimateSizeBytes int64, priority int) (int64, error)
	GetRequest(ctx context.Context, id int64) (*store.Request, error)
	GetRequestsByUser(ctx context.Context, userID string) ([]*store.Request, error)
	GetDownload(ctx context.Context, requestID int64) (*store.Download, error)
}

// Estimator answers size estimates. Satisfied by *catalog.Engine.
type Estimator interface {
	Estimate(ctx context.Context, dataset, product string, q geoquery.Query) (int64, error)
}

// Server is the HTTP gateway.
type Server struct {
	router  *mux.Router
	store   RequestStore
	catalog *catalog.Catalog
	engine  Estimator
	codec   queue.Codec
	auth    *middleware.AuthMiddleware
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer wires the gateway's routes and middleware chain. The codec is the
// same one the broker publishes with; the gateway uses it to refuse documents
// that could never be framed as a queue message.
func NewServer(
	requests RequestStore,
	cat *catalog.Catalog,
	engine Estimator,
	codec queue.Codec,
	users middleware.UserLookup,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		store:   requests,
		catalog: cat,
		engine:  engine,
		codec:   codec,
		auth:    middleware.NewAuthMiddleware(users, logger),
		logger:  logger,
		metrics: metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(
		middleware.RequestID(s.logger),
		middleware.Recovery(s.logger),
		middleware.AccessLog(s.logger),
		s.auth.Handler,
	)

	// catalog browsing; anonymous callers see public products only
	s.handle("GET", "/datasets", http.HandlerFunc(s.listDatasets))
	s.handle("GET", "/datasets/{dataset}/{product}", http.HandlerFunc(s.getProduct))
	s.handle("GET", "/datasets/{dataset}/{product}/metadata", http.HandlerFunc(s.getMetadata))
	s.handle("POST", "/datasets/{dataset}/{product}/estimate", http.HandlerFunc(s.estimate))

	// request lifecycle; writes reject anonymous callers
	s.handle("POST", "/datasets/{dataset}/{product}/execute",
		middleware.RequireAuthenticated(http.HandlerFunc(s.execute)))
	s.handle("POST", "/datasets/{dataset}/{product}/workflow",
		middleware.RequireAuthenticated(http.HandlerFunc(s.workflow)))
	s.handle("GET", "/requests",
		middleware.RequireAuthenticated(http.HandlerFunc(s.listRequests)))
	s.handle("GET", "/requests/{id}/status",
		middleware.RequireAuthenticated(http.HandlerFunc(s.requestStatus)))
	s.handle("GET", "/requests/{id}/size",
		middleware.RequireAuthenticated(http.HandlerFunc(s.requestSize)))
	s.handle("GET", "/requests/{id}/uri",
		middleware.RequireAuthenticated(http.HandlerFunc(s.requestURI)))
	s.handle("GET", "/download/{id}",
		middleware.RequireAuthenticated(http.HandlerFunc(s.download)))
}

func (s *Server) handle(method, path string, h http.Handler) {
	if s.metrics != nil {
		h = s.metrics.InstrumentHandler(path, h)
	}
	s.router.Handle(path, h).Methods(method)
}

// Router exposes the configured handler tree.
func (s *Server) Router() http.Handler {
	return s.router
}
