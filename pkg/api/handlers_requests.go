package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/geodds/geodds/pkg/artifacts"
	"github.com/geodds/geodds/pkg/auth"
	"github.com/geodds/geodds/pkg/geoquery"
	"github.com/geodds/geodds/pkg/httputil"
	"github.com/geodds/geodds/pkg/middleware"
	"github.com/geodds/geodds/pkg/store"
	"github.com/geodds/geodds/pkg/units"
)

// DefaultFormat applies when neither the query document nor the format
// parameter names one.
const DefaultFormat = "netcdf"

// execute validates a query, size-gates it against the product's cap and
// inserts a PENDING request. The admission broker picks it up on its next
// tick.
func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	p, ok := s.product(w, r)
	if !ok {
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
	// no escaping in the queue framing; a document the broker could never
	// publish is refused here instead of failing after admission
	if err := s.codec.ValidateField(string(body)); err != nil {
		httputil.WriteBadRequest(w, fmt.Sprintf("query document %s", err))
		return
	}

	format := httputil.ParseQueryString(r, "format", q.Format)
	if format == "" {
		format = DefaultFormat
	}
	if err := s.codec.ValidateField(format); err != nil {
		httputil.WriteBadRequest(w, fmt.Sprintf("format %s", err))
		return
	}
	priority, err := httputil.ParseQueryInt(r, "priority", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	estimated, err := s.engine.Estimate(r.Context(), dataset, product, *q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	allowedBytes := p.MaximumQuerySizeGB * units.Factor(units.Gigabytes)
	if float64(estimated) > allowedBytes {
		s.writeError(w, r, &SizeExceededError{
			EstimatedGB: units.Convert(float64(estimated), units.Gigabytes).Value,
			AllowedGB:   p.MaximumQuerySizeGB,
		})
		return
	}

	// the query document is stored verbatim as submitted
	id, err := s.store.CreateRequest(r.Context(), middleware.AuthContext(r).UserID(),
		dataset, product, body, format, estimated, priority)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"request_id": id})
}

// workflowTask is one node of a workflow DAG.
type workflowTask struct {
	ID   string                 `json:"id"`
	Op   string                 `json:"op"`
	Use  []string               `json:"use"`
	Args map[string]interface{} `json:"args"`
}

// workflow accepts a task DAG instead of a single query. The task list is
// stored as the request's query document; it is a JSON array, which is how
// the broker tells workflow requests apart.
func (s *Server) workflow(w http.ResponseWriter, r *http.Request) {
	_, ok := s.product(w, r)
	if !ok {
		return
	}
	dataset, _ := httputil.ParsePathString(r, "dataset")
	product, _ := httputil.ParsePathString(r, "product")

	body, err := httputil.ReadBody(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var tasks []workflowTask
	if err := json.Unmarshal(body, &tasks); err != nil {
		httputil.WriteBadRequest(w, fmt.Sprintf("invalid task list: %v", err))
		return
	}
	if len(tasks) == 0 {
		httputil.WriteBadRequest(w, "task list is empty")
		return
	}
	for i, task := range tasks {
		if task.ID == "" || task.Op == "" {
			httputil.WriteBadRequest(w, fmt.Sprintf("task %d is missing id or op", i))
			return
		}
	}
	if err := s.codec.ValidateField(string(body)); err != nil {
		httputil.WriteBadRequest(w, fmt.Sprintf("task list %s", err))
		return
	}

	format := httputil.ParseQueryString(r, "format", DefaultFormat)
	priority, err := httputil.ParseQueryInt(r, "priority", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	id, err := s.store.CreateRequest(r.Context(), middleware.AuthContext(r).UserID(),
		dataset, product, body, format, 0, priority)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"request_id": id})
}

// listRequests returns all requests belonging to the caller, newest first.
func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.store.GetRequestsByUser(r.Context(), middleware.AuthContext(r).UserID())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []*store.Request{}
	}
	httputil.WriteSuccess(w, reqs)
}

// ownedRequest loads the path's request and enforces ownership. Admins may
// inspect any request.
func (s *Server) ownedRequest(w http.ResponseWriter, r *http.Request) (*store.Request, bool) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return nil, false
	}
	req, err := s.store.GetRequest(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	authCtx := middleware.AuthContext(r)
	if req.UserID != authCtx.UserID() && !authCtx.HasScope(auth.ScopeAdmin) {
		httputil.WriteUnauthorized(w, "authorization failed")
		return nil, false
	}
	return req, true
}

func (s *Server) requestStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	resp := map[string]interface{}{"status": req.Status}
	if req.FailReason != nil {
		resp["fail_reason"] = *req.FailReason
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) requestSize(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	d, err := s.store.GetDownload(r.Context(), req.ID)
	if err != nil || d.SizeBytes == 0 {
		httputil.WriteBadRequest(w, "no artifact produced for this request")
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"size_bytes": d.SizeBytes})
}

func (s *Server) requestURI(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	d, err := s.store.GetDownload(r.Context(), req.ID)
	if err != nil {
		httputil.WriteBadRequest(w, ErrNotYetAccomplished.Error())
		return
	}
	httputil.WriteSuccess(w, map[string]string{"download_uri": d.DownloadURI})
}

// download streams the artifact file. 404 until the request is DONE and the
// file exists on disk.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	if req.Status != store.StatusDone {
		httputil.WriteNotFound(w, ErrNotYetAccomplished.Error())
		return
	}
	d, err := s.store.GetDownload(r.Context(), req.ID)
	if errors.Is(err, store.ErrRequestNotFound) {
		httputil.WriteNotFound(w, ErrNotYetAccomplished.Error())
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	f, err := artifacts.Open(d.LocationPath)
	if err != nil {
		httputil.WriteNotFound(w, "artifact file not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(d.SizeBytes, 10))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(d.LocationPath)))
	if _, err := io.Copy(w, f); err != nil {
		middleware.Logger(r, s.logger).WithError(err).
			WithField("request_id", req.ID).Warn("download interrupted")
	}
}
