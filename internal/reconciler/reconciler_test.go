package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/application"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/request"
)

type fakeStore struct {
	mu        sync.Mutex
	apps      map[string]application.Application
	reqs      map[string]request.Request
	commitErr error
	commits   int
	fetchWait time.Duration
	inFlight  int32
	maxSeen   int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		apps: make(map[string]application.Application),
		reqs: make(map[string]request.Request),
	}
}

func (f *fakeStore) addRequest(id string, status request.Status) {
	f.reqs[id] = request.Request{Id: id, Kind: request.KindService, Status: status}
}

func (f *fakeStore) addApplication(id, requestId string, status application.Status, dueAt time.Time) {
	f.apps[id] = application.Application{
		Id:              id,
		RequestId:       requestId,
		BidderId:        "bidder-" + id,
		Kind:            request.KindService,
		Status:          status,
		CommissionDueAt: dueAt,
	}
}

func (f *fakeStore) ExpiredPending(ctx context.Context, now time.Time) ([]application.Application, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	if f.fetchWait > 0 {
		time.Sleep(f.fetchWait)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []application.Application
	for _, app := range f.apps {
		if app.Status == application.Pending && app.CommissionDueAt.Before(now) {
			out = append(out, app)
		}
	}
	return out, nil
}

func (f *fakeStore) ApplicationsByRequest(ctx context.Context, requestIds []string) ([]application.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []application.Application
	for _, app := range f.apps {
		for _, id := range requestIds {
			if app.RequestId == id {
				out = append(out, app)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Requests(ctx context.Context, requestIds []string) ([]request.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []request.Request
	for _, id := range requestIds {
		if req, ok := f.reqs[id]; ok {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeStore) Commit(ctx context.Context, apps []application.Application, reqs []request.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	for _, app := range apps {
		f.apps[app.Id] = app
	}
	for _, req := range reqs {
		f.reqs[req.Id] = req
	}
	f.commits++
	return nil
}

func (f *fakeStore) appStatus(t *testing.T, id string) application.Status {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	require.True(t, ok, "application %s not found", id)
	return app.Status
}

func (f *fakeStore) reqStatus(t *testing.T, id string) request.Status {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	require.True(t, ok, "request %s not found", id)
	return req.Status
}

type recordingPublisher struct {
	mu     sync.Mutex
	kinds  []string
	err    error
	called int
}

func (p *recordingPublisher) Publish(kind string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.called++
	p.kinds = append(p.kinds, kind)
	return p.err
}

func (p *recordingPublisher) count(kind string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestReconcileEmptyBatchPerformsNoWrites(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.addRequest("r2", request.Opening)
	store.addApplication("b4", "r2", application.Pending, now.Add(time.Hour))

	rec := New("service", store, nil, time.Minute, nil)
	report, err := rec.Reconcile(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, Report{}, report)
	require.Equal(t, 0, store.commits)
	require.Equal(t, application.Pending, store.appStatus(t, "b4"))
	require.Equal(t, request.Opening, store.reqStatus(t, "r2"))
}

func TestReconcileExpiresOverdueApplication(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.addRequest("r1", request.Opening)
	store.addApplication("b1", "r1", application.Pending, now.Add(-time.Hour))

	rec := New("service", store, nil, time.Minute, nil)
	report, err := rec.Reconcile(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, Report{Expired: 1, ReopenedRequests: 1}, report)
	require.Equal(t, application.Rejected, store.appStatus(t, "b1"))
	require.Equal(t, request.Opening, store.reqStatus(t, "r1"))
}

func TestReconcileReopensRejectedSiblingsAndKeepsApproved(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.addRequest("r1", request.Closed)
	store.addApplication("b1", "r1", application.Pending, now.Add(-time.Hour))
	store.addApplication("b2", "r1", application.Rejected, now.Add(-2*time.Hour))
	store.addApplication("b3", "r1", application.Approved, now.Add(time.Hour))

	pub := &recordingPublisher{}
	rec := New("service", store, pub, time.Minute, nil)
	report, err := rec.Reconcile(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, Report{Expired: 1, ReopenedRequests: 1, Resurrected: 1}, report)

	// The freshly expired application stays Rejected within the pass.
	require.Equal(t, application.Rejected, store.appStatus(t, "b1"))
	// The previously rejected sibling gets another chance.
	require.Equal(t, application.Pending, store.appStatus(t, "b2"))
	// Approved applications are never touched.
	require.Equal(t, application.Approved, store.appStatus(t, "b3"))
	// The request reopens even though an approved application exists.
	require.Equal(t, request.Opening, store.reqStatus(t, "r1"))

	require.Equal(t, 1, pub.count("application.expired"))
	require.Equal(t, 1, pub.count("application.reopened"))
	require.Equal(t, 1, pub.count("request.reopened"))
}

func TestReconcileLeavesUnaffectedRequestsAlone(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.addRequest("r1", request.Opening)
	store.addApplication("b1", "r1", application.Pending, now.Add(-time.Hour))
	store.addRequest("r2", request.Closed)
	store.addApplication("b5", "r2", application.Rejected, now.Add(-time.Hour))
	store.addApplication("b6", "r2", application.Pending, now.Add(time.Hour))

	rec := New("service", store, nil, time.Minute, nil)
	report, err := rec.Reconcile(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, Report{Expired: 1, ReopenedRequests: 1}, report)

	require.Equal(t, request.Closed, store.reqStatus(t, "r2"))
	require.Equal(t, application.Rejected, store.appStatus(t, "b5"))
	require.Equal(t, application.Pending, store.appStatus(t, "b6"))
}

func TestReconcileCommitFailureLeavesStoreUnchanged(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.addRequest("r1", request.Closed)
	store.addApplication("b1", "r1", application.Pending, now.Add(-time.Hour))
	store.addApplication("b2", "r1", application.Rejected, now.Add(-2*time.Hour))
	store.commitErr = errors.New("serialization failure")

	pub := &recordingPublisher{}
	rec := New("service", store, pub, time.Minute, nil)
	_, err := rec.Reconcile(context.Background(), now)
	require.Error(t, err)

	require.Equal(t, application.Pending, store.appStatus(t, "b1"))
	require.Equal(t, application.Rejected, store.appStatus(t, "b2"))
	require.Equal(t, request.Closed, store.reqStatus(t, "r1"))
	require.Equal(t, 0, pub.called, "no events before a successful commit")

	// The next pass redoes the work with the same outcome.
	store.commitErr = nil
	report, err := rec.Reconcile(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, Report{Expired: 1, ReopenedRequests: 1, Resurrected: 1}, report)
	require.Equal(t, application.Rejected, store.appStatus(t, "b1"))
	require.Equal(t, application.Pending, store.appStatus(t, "b2"))
	require.Equal(t, request.Opening, store.reqStatus(t, "r1"))
}

func TestReconcilePublishErrorDoesNotFailPass(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.addRequest("r1", request.Opening)
	store.addApplication("b1", "r1", application.Pending, now.Add(-time.Hour))

	pub := &recordingPublisher{err: errors.New("broker down")}
	rec := New("service", store, pub, time.Minute, nil)
	report, err := rec.Reconcile(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, report.Expired)
	require.Equal(t, 1, store.commits)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	rec := New("service", store, nil, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

func TestRunPassesNeverOverlap(t *testing.T) {
	store := newFakeStore()
	store.fetchWait = 10 * time.Millisecond
	rec := New("service", store, nil, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	require.LessOrEqual(t, atomic.LoadInt32(&store.maxSeen), int32(1), "ticks must not overlap")
}
