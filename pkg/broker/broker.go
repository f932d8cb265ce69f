package broker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/geodds/geodds/pkg/observability"
	"github.com/geodds/geodds/pkg/queue"
	"github.com/geodds/geodds/pkg/store"
)

// AdmissionStore is the slice of the request store the broker needs.
type AdmissionStore interface {
	GetRequestsByStatus(ctx context.Context, status store.RequestStatus) ([]*store.Request, error)
	CountActiveRequests(ctx context.Context, userID string) (int, error)
	MarkQueued(ctx context.Context, id int64) (bool, error)
	UpdateRequest(ctx context.Context, id int64, status store.RequestStatus, upd store.RequestUpdate) error
	ReapStale(ctx context.Context, age time.Duration) (int64, error)
}

// Publisher is the queue side the broker needs.
type Publisher interface {
	Publish(ctx context.Context, body string) error
	Codec() queue.Codec
}

// Config holds the broker's tunables.
type Config struct {
	// RunningRequestLimit caps each user's QUEUED+RUNNING requests.
	RunningRequestLimit int
	// CheckEvery is the admission tick period.
	CheckEvery time.Duration
	// ReapEvery is the recovery sweep period.
	ReapEvery time.Duration
	// ReapAge is how stale a QUEUED or RUNNING request's last_update must be
	// before it is requeued. Sized as 2x the executor's polling budget so a
	// slow but live job is never stolen.
	ReapAge time.Duration
}

// Broker is the admission control loop. Run a single instance; a second one
// is harmless for correctness (the PENDING->QUEUED flip is atomic) but
// produces duplicate queue messages.
type Broker struct {
	store   AdmissionStore
	pub     Publisher
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
}

// New creates the broker.
func New(s AdmissionStore, pub Publisher, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Broker {
	if cfg.ReapEvery <= 0 {
		cfg.ReapEvery = time.Minute
	}
	return &Broker{store: s, pub: pub, cfg: cfg, logger: logger, metrics: metrics}
}

// Run schedules the admission tick and the reaper until the context is
// canceled.
func (b *Broker) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", b.cfg.CheckEvery), func() {
		if err := b.Tick(ctx); err != nil {
			b.logger.WithError(err).Error("admission tick failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule admission tick: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", b.cfg.ReapEvery), func() {
		b.Reap(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule reaper: %w", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// Tick runs one admission pass: scan PENDING requests in admission order and
// promote each one whose owner has quota room. A publish failure abandons the
// tick; rows already promoted stay QUEUED and the rest are retried next tick.
func (b *Broker) Tick(ctx context.Context) error {
	pending, err := b.store.GetRequestsByStatus(ctx, store.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}
	if b.metrics != nil {
		b.metrics.RequestsPending.Set(float64(len(pending)))
	}

	// one count query per user per tick; admissions within the tick are
	// tracked locally
	active := make(map[string]int)
	emitted := 0
	for _, req := range pending {
		count, ok := active[req.UserID]
		if !ok {
			count, err = b.store.CountActiveRequests(ctx, req.UserID)
			if err != nil {
				return fmt.Errorf("failed to count active requests: %w", err)
			}
		}
		if count >= b.cfg.RunningRequestLimit {
			active[req.UserID] = count
			continue
		}

		body, err := b.encode(req)
		if err != nil {
			// the gateway rejects unencodable documents at submit, so this
			// only triggers on separator reconfiguration or rows written by
			// older deployments; unencodable now means unencodable forever,
			// fail it instead of rescanning it every tick
			b.failRequest(ctx, req.ID, err)
			continue
		}

		if err := b.pub.Publish(ctx, body); err != nil {
			if b.metrics != nil {
				b.metrics.QueuePublishesTotal.WithLabelValues("error").Inc()
			}
			b.logger.WithError(err).WithField("request_id", req.ID).Error("publish failed, abandoning tick")
			return fmt.Errorf("failed to publish request %d: %w", req.ID, err)
		}
		if b.metrics != nil {
			b.metrics.QueuePublishesTotal.WithLabelValues("success").Inc()
		}

		queued, err := b.store.MarkQueued(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("failed to mark request %d queued: %w", req.ID, err)
		}
		if !queued {
			// another broker won the flip; the duplicate message is resolved
			// by the executor's QUEUED check
			b.logger.WithField("request_id", req.ID).Warn("request already queued")
			continue
		}
		if b.metrics != nil {
			b.metrics.StateTransitionsTotal.WithLabelValues(
				string(store.StatusPending), string(store.StatusQueued)).Inc()
		}
		active[req.UserID] = count + 1
		emitted++
	}

	b.logger.WithFields(map[string]interface{}{
		"pending": len(pending),
		"emitted": emitted,
	}).Info("admission tick complete")
	return nil
}

// encode frames the queue message for a request. A query document that is a
// JSON array is a workflow task list.
func (b *Broker) encode(req *store.Request) (string, error) {
	codec := b.pub.Codec()
	if isTaskList(req.Query) {
		return codec.EncodeWorkflow(queue.WorkflowMessage{
			RequestID: req.ID,
			TaskList:  req.Query,
		})
	}
	format := req.Format
	if format == "" {
		format = "netcdf"
	}
	return codec.EncodeQuery(queue.QueryMessage{
		RequestID: req.ID,
		Dataset:   req.Dataset,
		Product:   req.Product,
		Query:     req.Query,
		Format:    format,
	})
}

func isTaskList(query []byte) bool {
	trimmed := bytes.TrimLeft(query, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

func (b *Broker) failRequest(ctx context.Context, id int64, cause error) {
	reason := fmt.Sprintf("admission failed: %v", cause)
	if err := b.store.UpdateRequest(ctx, id, store.StatusFailed, store.RequestUpdate{
		FailReason: &reason,
	}); err != nil {
		b.logger.WithError(err).WithField("request_id", id).Error("failed to fail request")
		return
	}
	if b.metrics != nil {
		b.metrics.StateTransitionsTotal.WithLabelValues(
			string(store.StatusPending), string(store.StatusFailed)).Inc()
	}
}

// Reap requeues RUNNING requests orphaned by a crashed executor and QUEUED
// requests whose queue message never reached a live executor.
func (b *Broker) Reap(ctx context.Context) {
	n, err := b.store.ReapStale(ctx, b.cfg.ReapAge)
	if err != nil {
		b.logger.WithError(err).Error("reaper sweep failed")
		return
	}
	if n > 0 {
		b.logger.WithField("requeued", n).Warn("requeued stale running requests")
		if b.metrics != nil {
			b.metrics.StateTransitionsTotal.WithLabelValues(
				string(store.StatusRunning), string(store.StatusPending)).Add(float64(n))
		}
	}
}
