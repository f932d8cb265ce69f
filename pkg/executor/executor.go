package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/geodds/geodds/pkg/artifacts"
	"github.com/geodds/geodds/pkg/config"
	"github.com/geodds/geodds/pkg/geoquery"
	"github.com/geodds/geodds/pkg/observability"
	"github.com/geodds/geodds/pkg/queue"
	"github.com/geodds/geodds/pkg/store"
)

// FailReasonTimeout marks jobs that exceeded the polling budget.
const FailReasonTimeout = "Processing timeout"

// FailReasonEmptyResult marks jobs that finished without producing a file.
const FailReasonEmptyResult = "empty result"

// FailReasonWorkflow marks workflow messages this executor cannot run.
const FailReasonWorkflow = "workflow execution not supported by this executor"

const consumeBlock = 5 * time.Second

// ExecutorStore is the slice of the request store the executor needs.
type ExecutorStore interface {
	GetRequest(ctx context.Context, id int64) (*store.Request, error)
	MarkRunning(ctx context.Context, id, workerID int64) (bool, error)
	UpdateRequest(ctx context.Context, id int64, status store.RequestStatus, upd store.RequestUpdate) error
	CreateWorker(ctx context.Context, host, status string, schedulerPort int, dashboardAddress string) (int64, error)
	UpdateWorkerStatus(ctx context.Context, workerID int64, status string) error
}

// Consumer is the queue side the executor needs.
type Consumer interface {
	EnsureGroup(ctx context.Context) error
	Consume(ctx context.Context, consumer string, block time.Duration) (*queue.Delivery, error)
	Reclaim(ctx context.Context, consumer string, minIdle time.Duration) (*queue.Delivery, error)
	Codec() queue.Codec
}

// Runner computes queries. Satisfied by *catalog.Engine.
type Runner interface {
	Execute(ctx context.Context, dataset, product string, q geoquery.Query, outDir string) (string, error)
}

// Executor consumes queued requests and runs them on the compute pool.
type Executor struct {
	store   ExecutorStore
	queue   Consumer
	engine  Runner
	results *artifacts.Store
	uris    artifacts.URIBuilder
	cfg     config.ExecutorConfig
	logger  *observability.Logger
	metrics *observability.Metrics

	workerID int64
	consumer string

	// reclaimIdle is how long a delivery must sit unacked in another
	// consumer's pending list before this executor may take it over. It is
	// twice the polling budget, so live work is never stolen.
	reclaimIdle time.Duration

	poolMu sync.Mutex
	pool   *Pool
}

// New creates an executor. Register must be called before Run.
func New(
	s ExecutorStore,
	q Consumer,
	engine Runner,
	results *artifacts.Store,
	uris artifacts.URIBuilder,
	cfg config.ExecutorConfig,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Executor {
	return &Executor{
		store:       s,
		queue:       q,
		engine:      engine,
		results:     results,
		uris:        uris,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		reclaimIdle: 2 * time.Duration(cfg.ResultCheckRetries) * cfg.SleepInterval,
		pool:        NewPool(cfg.NWorkers),
	}
}

// Register records this executor in the workers table and names its queue
// consumer after the new worker id.
func (e *Executor) Register(ctx context.Context) error {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	dashboard := fmt.Sprintf("%s:%d", host, e.cfg.DashboardPort)
	id, err := e.store.CreateWorker(ctx, host, "ONLINE", e.cfg.SchedulerPort, dashboard)
	if err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	e.workerID = id
	e.consumer = fmt.Sprintf("executor-%d", id)
	e.logger = e.logger.WithField("worker_id", id)
	return nil
}

// Run consumes messages until the context is canceled. A message is taken
// only when a pool slot is free, so the per-read prefetch stays at one.
func (e *Executor) Run(ctx context.Context) error {
	if err := e.queue.EnsureGroup(ctx); err != nil {
		return err
	}

	slots := make(chan struct{}, e.cfg.NWorkers)
	var wg sync.WaitGroup
	// drain in-flight handlers before tearing the pool down
	defer e.shutdown()
	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.ensureHealthyPool()

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		delivery, err := e.next(ctx)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.WithError(err).Error("consume failed")
			time.Sleep(time.Second)
			continue
		}
		if delivery == nil {
			<-slots
			continue
		}

		wg.Add(1)
		go func(d *queue.Delivery) {
			defer wg.Done()
			defer func() { <-slots }()
			e.handle(ctx, d)
		}(delivery)
	}
}

// next prefers entries stranded in a dead consumer's pending list over new
// work, then falls back to a blocking read.
func (e *Executor) next(ctx context.Context) (*queue.Delivery, error) {
	d, err := e.queue.Reclaim(ctx, e.consumer, e.reclaimIdle)
	if err != nil || d != nil {
		return d, err
	}
	return e.queue.Consume(ctx, e.consumer, consumeBlock)
}

func (e *Executor) shutdown() {
	e.poolMu.Lock()
	pool := e.pool
	e.poolMu.Unlock()
	pool.Close(30 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if e.workerID != 0 {
		if err := e.store.UpdateWorkerStatus(ctx, e.workerID, "OFFLINE"); err != nil {
			e.logger.WithError(err).Warn("failed to mark worker offline")
		}
	}
}

// handle runs one delivery end to end and acknowledges it on the same
// delivery it arrived on.
func (e *Executor) handle(ctx context.Context, d *queue.Delivery) {
	codec := e.queue.Codec()

	id, err := codec.RequestID(d.Body)
	if err != nil {
		e.logger.WithError(err).Error("dropping malformed message")
		e.ack(ctx, d)
		return
	}
	logger := e.logger.WithField("request_id", id)

	if codec.IsWorkflow(d.Body) {
		// never silently ack a workflow message
		logger.Warn("rejecting workflow message")
		e.fail(ctx, id, FailReasonWorkflow)
		e.ack(ctx, d)
		return
	}

	msg, err := codec.DecodeQuery(d.Body)
	if err != nil {
		logger.WithError(err).Error("dropping malformed message")
		e.ack(ctx, d)
		return
	}

	req, err := e.store.GetRequest(ctx, id)
	if errors.Is(err, store.ErrRequestNotFound) {
		logger.Warn("request row missing, dropping message")
		e.ack(ctx, d)
		return
	}
	if err != nil {
		// transient store fault: leave the delivery unacked so it is
		// reclaimed and retried instead of stranding the row in QUEUED
		logger.WithError(err).Error("request lookup failed, leaving delivery pending")
		return
	}
	if req.Status != store.StatusQueued {
		logger.WithField("status", req.Status).Info("duplicate delivery, skipping")
		e.ack(ctx, d)
		return
	}

	claimed, err := e.store.MarkRunning(ctx, id, e.workerID)
	if err != nil {
		logger.WithError(err).Error("failed to claim request, leaving delivery pending")
		return
	}
	if !claimed {
		logger.Info("request claimed by another executor")
		e.ack(ctx, d)
		return
	}
	if e.metrics != nil {
		e.metrics.StateTransitionsTotal.WithLabelValues(
			string(store.StatusQueued), string(store.StatusRunning)).Inc()
	}

	outcome := e.compute(ctx, logger, id, msg)
	e.record(ctx, logger, id, outcome)
	e.ack(ctx, d)

	if outcome.poolFault {
		e.restartPool()
	}
}

type outcome struct {
	path      string
	size      int64
	uri       string
	failure   string
	poolFault bool
}

// compute submits the job and polls its task handle: RESULT_CHECK_RETRIES
// rounds of SLEEP_SEC each, then cancel and fail.
func (e *Executor) compute(ctx context.Context, logger *observability.Logger, id int64, msg queue.QueryMessage) outcome {
	q, err := geoquery.Parse(msg.Query)
	if err != nil {
		return outcome{failure: fmt.Sprintf("%s: %v", errorKind(err), err)}
	}
	outDir, err := e.results.RequestDir(id)
	if err != nil {
		return outcome{failure: fmt.Sprintf("%s: %v", errorKind(err), err)}
	}

	e.poolMu.Lock()
	pool := e.pool
	e.poolMu.Unlock()

	start := time.Now()
	if e.metrics != nil {
		e.metrics.JobsInFlight.Inc()
		defer e.metrics.JobsInFlight.Dec()
	}

	task, err := pool.Submit(ctx, func(jobCtx context.Context) (string, error) {
		return e.engine.Execute(jobCtx, msg.Dataset, msg.Product, *q, outDir)
	})
	if err != nil {
		logger.WithError(err).Error("compute pool rejected job")
		return outcome{failure: "compute pool unavailable", poolFault: true}
	}

	finished := false
	for i := 0; i < e.cfg.ResultCheckRetries; i++ {
		select {
		case <-task.Done():
			finished = true
		case <-time.After(e.cfg.SleepInterval):
		}
		if finished {
			break
		}
	}
	if !finished {
		task.Cancel()
		logger.WithField("waited", time.Since(start).String()).Warn("job timed out")
		e.observeJob("timeout", start)
		return outcome{failure: FailReasonTimeout}
	}

	path, err := task.Result()
	if err != nil {
		e.observeJob("error", start)
		return outcome{failure: fmt.Sprintf("%s: %v", errorKind(err), err)}
	}
	if path == "" {
		e.observeJob("empty", start)
		return outcome{failure: FailReasonEmptyResult}
	}

	size, err := artifacts.SizeOf(path)
	if err != nil {
		e.observeJob("empty", start)
		return outcome{failure: FailReasonEmptyResult}
	}

	uri := ""
	if e.uris != nil {
		uri, err = e.uris.DownloadURI(ctx, id, path)
		if err != nil {
			logger.WithError(err).Warn("failed to build download uri")
		}
	}

	e.observeJob("success", start)
	return outcome{path: path, size: size, uri: uri}
}

func (e *Executor) observeJob(label string, start time.Time) {
	if e.metrics != nil {
		e.metrics.JobDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
}

// record writes the outcome back to the store.
func (e *Executor) record(ctx context.Context, logger *observability.Logger, id int64, out outcome) {
	if out.failure != "" {
		logger.WithField("reason", out.failure).Warn("request failed")
		e.fail(ctx, id, out.failure)
		return
	}

	err := e.store.UpdateRequest(ctx, id, store.StatusDone, store.RequestUpdate{
		WorkerID:     &e.workerID,
		LocationPath: &out.path,
		DownloadURI:  &out.uri,
		SizeBytes:    &out.size,
	})
	if err != nil {
		logger.WithError(err).Error("failed to record result")
		return
	}
	if e.metrics != nil {
		e.metrics.StateTransitionsTotal.WithLabelValues(
			string(store.StatusRunning), string(store.StatusDone)).Inc()
	}
	logger.WithFields(map[string]interface{}{
		"path": out.path,
		"size": out.size,
	}).Info("request done")
}

func (e *Executor) fail(ctx context.Context, id int64, reason string) {
	err := e.store.UpdateRequest(ctx, id, store.StatusFailed, store.RequestUpdate{
		WorkerID:   &e.workerID,
		FailReason: &reason,
	})
	if err != nil {
		e.logger.WithError(err).WithField("request_id", id).Error("failed to record failure")
		return
	}
	if e.metrics != nil {
		e.metrics.StateTransitionsTotal.WithLabelValues(
			string(store.StatusRunning), string(store.StatusFailed)).Inc()
	}
}

func (e *Executor) ack(ctx context.Context, d *queue.Delivery) {
	if err := d.Ack(ctx); err != nil {
		e.logger.WithError(err).WithField("message_id", d.ID).Error("ack failed")
		if e.metrics != nil {
			e.metrics.QueueConsumesTotal.WithLabelValues("ack_error").Inc()
		}
		return
	}
	if e.metrics != nil {
		e.metrics.QueueConsumesTotal.WithLabelValues("acked").Inc()
	}
}

// ensureHealthyPool restarts the pool in place when its workers died, and
// recreates it from scratch when the restart fails.
func (e *Executor) ensureHealthyPool() {
	e.poolMu.Lock()
	healthy := e.pool.Healthy()
	e.poolMu.Unlock()
	if !healthy {
		e.restartPool()
	}
}

func (e *Executor) restartPool() {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()

	if e.metrics != nil {
		e.metrics.PoolRestartsTotal.Inc()
	}
	if err := e.pool.Restart(30 * time.Second); err != nil {
		e.logger.WithError(err).Error("pool restart failed, recreating")
		e.pool = NewPool(e.cfg.NWorkers)
		return
	}
	e.logger.Info("compute pool restarted")
}

// errorKind names an error's concrete type, the closest analog of an
// exception class name.
func errorKind(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	name := t.String()
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
