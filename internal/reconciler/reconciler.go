package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quangvo5803/HomeCareDN-sub005/internal/metrics"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/application"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/request"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/notify"
)

// Store is the persistence contract one reconciliation pass needs for a
// single resource kind. Commit must apply every row change atomically and
// fail the whole batch on conflict.
type Store interface {
	ExpiredPending(ctx context.Context, now time.Time) ([]application.Application, error)
	ApplicationsByRequest(ctx context.Context, requestIds []string) ([]application.Application, error)
	Requests(ctx context.Context, requestIds []string) ([]request.Request, error)
	Commit(ctx context.Context, apps []application.Application, reqs []request.Request) error
}

// Report summarizes the writes of one pass.
type Report struct {
	Expired          int
	ReopenedRequests int
	Resurrected      int
}

// Reconciler expires overdue pending applications and reopens the affected
// requests. One instance per resource kind; instances share no state.
type Reconciler struct {
	kind     string
	store    Store
	notifier notify.Publisher
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func New(kind string, store Store, notifier notify.Publisher, interval time.Duration, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		kind:     kind,
		store:    store,
		notifier: notifier,
		interval: interval,
		log:      log.With(slog.String("kind", kind)),
		now:      time.Now,
	}
}

// WithClock overrides the clock used by the loop. Reconcile itself takes its
// reference time as an argument and never reads the wall clock.
func (r *Reconciler) WithClock(now func() time.Time) {
	r.now = now
}

// Reconcile runs one pass at the given reference time.
//
// An application is expired when it is still Pending and its commission
// deadline lies before now. Every expired application becomes Rejected, every
// request touched by the batch is forced back to Opening, and every Rejected
// sibling of a touched request that was not expired by this pass is reset to
// Pending so its bidder gets another chance. Approved applications are never
// modified. All changes land in a single atomic commit; on any error the
// pass aborts without partial writes and the next tick redoes the work.
func (r *Reconciler) Reconcile(ctx context.Context, now time.Time) (Report, error) {
	const op = "reconciler.Reconcile"

	batch, err := r.store.ExpiredPending(ctx, now)
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(batch) == 0 {
		return Report{}, nil
	}

	expiredIds := make(map[string]struct{}, len(batch))
	expired := make([]application.Application, 0, len(batch))
	requestIds := make([]string, 0, len(batch))
	seenRequests := make(map[string]struct{}, len(batch))

	for _, app := range batch {
		// Only Pending rows may be expired, whatever the store returned.
		if app.Status != application.Pending {
			continue
		}
		app.Status = application.Rejected
		expiredIds[app.Id] = struct{}{}
		expired = append(expired, app)
		if _, ok := seenRequests[app.RequestId]; !ok {
			seenRequests[app.RequestId] = struct{}{}
			requestIds = append(requestIds, app.RequestId)
		}
	}
	if len(expired) == 0 {
		return Report{}, nil
	}
	updatedApps := expired

	siblings, err := r.store.ApplicationsByRequest(ctx, requestIds)
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", op, err)
	}

	resurrected := make([]application.Application, 0)
	for _, app := range siblings {
		if app.Status != application.Rejected {
			continue
		}
		if _, ok := expiredIds[app.Id]; ok {
			continue
		}
		app.Status = application.Pending
		resurrected = append(resurrected, app)
		updatedApps = append(updatedApps, app)
	}

	parents, err := r.store.Requests(ctx, requestIds)
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", op, err)
	}

	updatedReqs := make([]request.Request, 0, len(parents))
	for _, req := range parents {
		req.Status = request.Opening
		updatedReqs = append(updatedReqs, req)
	}

	if err := r.store.Commit(ctx, updatedApps, updatedReqs); err != nil {
		return Report{}, fmt.Errorf("%s: %w", op, err)
	}

	report := Report{
		Expired:          len(expired),
		ReopenedRequests: len(updatedReqs),
		Resurrected:      len(resurrected),
	}

	r.publishChanges(expired, resurrected, updatedReqs)

	return report, nil
}

// publishChanges emits change events after a successful commit. Notification
// is best-effort: failures are logged and never fail the pass.
func (r *Reconciler) publishChanges(expired, resurrected []application.Application, reopened []request.Request) {
	if r.notifier == nil {
		return
	}
	for _, app := range expired {
		r.publish(notify.KindApplicationExpired, notify.ApplicationEvent{
			ApplicationId: app.Id,
			RequestId:     app.RequestId,
			BidderId:      app.BidderId,
		})
	}
	for _, app := range resurrected {
		r.publish(notify.KindApplicationReopened, notify.ApplicationEvent{
			ApplicationId: app.Id,
			RequestId:     app.RequestId,
			BidderId:      app.BidderId,
		})
	}
	for _, req := range reopened {
		r.publish(notify.KindRequestReopened, notify.RequestEvent{RequestId: req.Id})
	}
}

func (r *Reconciler) publish(kind string, payload any) {
	if err := r.notifier.Publish(kind, payload); err != nil {
		r.log.Warn("failed to publish change event", slog.String("event", kind), slog.String("error", err.Error()))
	}
}

// Run executes passes on a fixed delay until ctx is cancelled. The timer is
// re-armed only after a pass finishes, so ticks never overlap for one kind.
// A failed pass is logged and retried naturally on the next tick.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("reconciliation loop started", slog.Duration("interval", r.interval))

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciliation loop stopped")
			return
		case <-timer.C:
		}

		start := time.Now()
		report, err := r.Reconcile(ctx, r.now())
		elapsed := time.Since(start)

		metrics.RecordReconcilePass(r.kind, report.Expired, report.ReopenedRequests, report.Resurrected, elapsed, err == nil)

		if err != nil {
			r.log.Error("reconciliation pass failed", slog.String("error", err.Error()))
		} else if report.Expired > 0 {
			r.log.Info("reconciliation pass completed",
				slog.Int("expired", report.Expired),
				slog.Int("reopened_requests", report.ReopenedRequests),
				slog.Int("resurrected", report.Resurrected),
			)
		}

		timer.Reset(r.interval)
	}
}
