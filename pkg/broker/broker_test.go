package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodds/geodds/pkg/observability"
	"github.com/geodds/geodds/pkg/queue"
	"github.com/geodds/geodds/pkg/store"
)

type fakeAdmissionStore struct {
	pending []*store.Request
	// userID -> QUEUED+RUNNING count before the tick
	active map[string]int

	queued  []int64
	failed  map[int64]string
	reaped  int64
	reapAge time.Duration

	markQueuedResult bool
}

func newFakeAdmissionStore(pending ...*store.Request) *fakeAdmissionStore {
	return &fakeAdmissionStore{
		pending:          pending,
		active:           map[string]int{},
		failed:           map[int64]string{},
		markQueuedResult: true,
	}
}

func (f *fakeAdmissionStore) GetRequestsByStatus(_ context.Context, status store.RequestStatus) ([]*store.Request, error) {
	if status != store.StatusPending {
		return nil, nil
	}
	return f.pending, nil
}

func (f *fakeAdmissionStore) CountActiveRequests(_ context.Context, userID string) (int, error) {
	return f.active[userID], nil
}

func (f *fakeAdmissionStore) MarkQueued(_ context.Context, id int64) (bool, error) {
	if !f.markQueuedResult {
		return false, nil
	}
	f.queued = append(f.queued, id)
	return true, nil
}

func (f *fakeAdmissionStore) UpdateRequest(_ context.Context, id int64, status store.RequestStatus, upd store.RequestUpdate) error {
	if status == store.StatusFailed && upd.FailReason != nil {
		f.failed[id] = *upd.FailReason
	}
	return nil
}

func (f *fakeAdmissionStore) ReapStale(_ context.Context, age time.Duration) (int64, error) {
	f.reapAge = age
	return f.reaped, nil
}

type fakePublisher struct {
	published []string
	failAfter int // fail when len(published) reaches this; <0 never
	codec     queue.Codec
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failAfter: -1, codec: queue.NewCodec(`\`)}
}

func (f *fakePublisher) Publish(_ context.Context, body string) error {
	if f.failAfter >= 0 && len(f.published) >= f.failAfter {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, body)
	return nil
}

func (f *fakePublisher) Codec() queue.Codec { return f.codec }

func pendingRequest(id int64, userID string) *store.Request {
	return &store.Request{
		ID: id, UserID: userID, Dataset: "era5", Product: "reanalysis",
		Query: json.RawMessage(`{"variable":"tas"}`), Format: "netcdf",
		Status: store.StatusPending,
	}
}

func newBroker(s AdmissionStore, p Publisher, limit int) *Broker {
	logger := observability.NewLogger(observability.ErrorLevel, "json", io.Discard)
	return New(s, p, Config{
		RunningRequestLimit: limit,
		CheckEvery:          10 * time.Second,
		ReapAge:             30 * time.Minute,
	}, logger, nil)
}

func TestTick_QuotaCapsAdmissions(t *testing.T) {
	// five pending requests from one user, limit two
	s := newFakeAdmissionStore(
		pendingRequest(1, "u1"),
		pendingRequest(2, "u1"),
		pendingRequest(3, "u1"),
		pendingRequest(4, "u1"),
		pendingRequest(5, "u1"),
	)
	p := newFakePublisher()

	require.NoError(t, newBroker(s, p, 2).Tick(context.Background()))

	assert.Equal(t, []int64{1, 2}, s.queued)
	assert.Len(t, p.published, 2)
}

func TestTick_QuotaIsPerUser(t *testing.T) {
	s := newFakeAdmissionStore(
		pendingRequest(1, "u1"),
		pendingRequest(2, "u2"),
		pendingRequest(3, "u1"),
	)
	s.active["u1"] = 1 // u1 already has one running
	p := newFakePublisher()

	require.NoError(t, newBroker(s, p, 1).Tick(context.Background()))

	// u1 is at quota; only u2's request is admitted
	assert.Equal(t, []int64{2}, s.queued)
}

func TestTick_AdmissionOrderPreserved(t *testing.T) {
	// the store returns (priority, created_on) order; the broker must not
	// reorder
	s := newFakeAdmissionStore(
		pendingRequest(9, "u1"),
		pendingRequest(3, "u2"),
		pendingRequest(7, "u3"),
	)
	p := newFakePublisher()

	require.NoError(t, newBroker(s, p, 3).Tick(context.Background()))
	assert.Equal(t, []int64{9, 3, 7}, s.queued)
}

func TestTick_PublishFailureAbandonsTick(t *testing.T) {
	s := newFakeAdmissionStore(
		pendingRequest(1, "u1"),
		pendingRequest(2, "u2"),
		pendingRequest(3, "u3"),
	)
	p := newFakePublisher()
	p.failAfter = 1 // second publish fails

	err := newBroker(s, p, 3).Tick(context.Background())
	require.Error(t, err)

	// the first row stays QUEUED; the rest are retried next tick
	assert.Equal(t, []int64{1}, s.queued)
}

func TestTick_MessageFraming(t *testing.T) {
	s := newFakeAdmissionStore(pendingRequest(42, "u1"))
	p := newFakePublisher()

	require.NoError(t, newBroker(s, p, 1).Tick(context.Background()))
	require.Len(t, p.published, 1)
	assert.Equal(t, `42\era5\reanalysis\{"variable":"tas"}\netcdf`, p.published[0])
}

func TestTick_WorkflowRequestsUseWorkflowFraming(t *testing.T) {
	req := pendingRequest(7, "u1")
	req.Query = json.RawMessage(`[{"id":"a","op":"subset","use":[],"args":{}}]`)
	s := newFakeAdmissionStore(req)
	p := newFakePublisher()

	require.NoError(t, newBroker(s, p, 1).Tick(context.Background()))
	require.Len(t, p.published, 1)
	assert.True(t, p.codec.IsWorkflow(p.published[0]))
}

func TestTick_UnencodableRequestIsFailed(t *testing.T) {
	req := pendingRequest(7, "u1")
	req.Query = json.RawMessage(`{"s":"a\\b"}`) // literal backslash breaks the framing
	s := newFakeAdmissionStore(req)
	p := newFakePublisher()

	require.NoError(t, newBroker(s, p, 1).Tick(context.Background()))

	assert.Empty(t, p.published)
	assert.Empty(t, s.queued)
	assert.Contains(t, s.failed[7], "admission failed")
}

func TestTick_LostFlipDoesNotError(t *testing.T) {
	s := newFakeAdmissionStore(pendingRequest(1, "u1"))
	s.markQueuedResult = false // another broker already flipped it
	p := newFakePublisher()

	require.NoError(t, newBroker(s, p, 1).Tick(context.Background()))
	assert.Len(t, p.published, 1)
	assert.Empty(t, s.queued)
}

func TestReap(t *testing.T) {
	s := newFakeAdmissionStore()
	s.reaped = 3
	b := newBroker(s, newFakePublisher(), 1)

	b.Reap(context.Background())
	assert.Equal(t, 30*time.Minute, s.reapAge)
}
