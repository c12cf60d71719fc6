// workers/ledger_audit.go
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"powerup-economy/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// AuditStatus summarizes the latest audit runs.
type AuditStatus struct {
	LastReconcileAt time.Time        `json:"last_reconcile_at"`
	Drift           []services.Drift `json:"drift"`
	LastArchiveAt   time.Time        `json:"last_archive_at"`
	Archived        int              `json:"archived"`
}

// LedgerAudit periodically checks cached balances against the ledger and,
// when an archiver is configured, ships new entries to object storage.
type LedgerAudit struct {
	sched    gocron.Scheduler
	ledger   *services.LedgerService
	archiver *services.LedgerArchiver // nil disables archival
	clock    clockwork.Clock
	log      *zap.Logger

	reconcileEvery time.Duration
	archiveEvery   time.Duration

	mu     sync.Mutex
	status AuditStatus
}

func NewLedgerAudit(ledger *services.LedgerService, archiver *services.LedgerArchiver, clock clockwork.Clock,
	reconcileEvery, archiveEvery time.Duration, logger *zap.Logger) (*LedgerAudit, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create audit scheduler: %w", err)
	}
	return &LedgerAudit{
		sched:          sched,
		ledger:         ledger,
		archiver:       archiver,
		clock:          clock,
		log:            logger.Named("ledger_audit"),
		reconcileEvery: reconcileEvery,
		archiveEvery:   archiveEvery,
	}, nil
}

// Start registers the jobs and starts the scheduler. Jobs run with ctx.
func (a *LedgerAudit) Start(ctx context.Context) error {
	_, err := a.sched.NewJob(
		gocron.DurationJob(a.reconcileEvery),
		gocron.NewTask(func() { _, _ = a.Reconcile(ctx) }),
		gocron.WithName("ledger-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}

	if a.archiver != nil {
		_, err = a.sched.NewJob(
			gocron.DurationJob(a.archiveEvery),
			gocron.NewTask(func() { _, _ = a.Archive(ctx) }),
			gocron.WithName("ledger-archive"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("schedule archive: %w", err)
		}
	}

	a.sched.Start()
	a.log.Info("🕒 ledger audit scheduled",
		zap.Duration("reconcile_every", a.reconcileEvery),
		zap.Duration("archive_every", a.archiveEvery),
		zap.Bool("archive_enabled", a.archiver != nil))
	return nil
}

// Reconcile runs one reconciliation pass and records the result.
func (a *LedgerAudit) Reconcile(ctx context.Context) ([]services.Drift, error) {
	drifts, err := a.ledger.Reconcile(ctx)
	if err != nil {
		a.log.Error("❌ ledger reconciliation failed", zap.Error(err))
		return nil, err
	}
	for _, d := range drifts {
		a.log.Error("🚨 cached balance drifted from ledger",
			zap.String("player_id", d.PlayerID), zap.String("currency", string(d.Currency)),
			zap.Int64("cached", d.Cached), zap.Int64("derived", d.Derived))
	}

	a.mu.Lock()
	a.status.LastReconcileAt = a.clock.Now()
	a.status.Drift = drifts
	a.mu.Unlock()
	return drifts, nil
}

// Archive runs one archival pass.
func (a *LedgerAudit) Archive(ctx context.Context) (int, error) {
	if a.archiver == nil {
		return 0, nil
	}
	n, err := a.archiver.Run(ctx)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	a.status.LastArchiveAt = a.clock.Now()
	a.status.Archived += n
	a.mu.Unlock()
	return n, nil
}

func (a *LedgerAudit) Status() AuditStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.status
	s.Drift = append([]services.Drift(nil), a.status.Drift...)
	return s
}

// Shutdown stops the scheduler and waits for running jobs.
func (a *LedgerAudit) Shutdown() error {
	if err := a.sched.Shutdown(); err != nil {
		return fmt.Errorf("shutdown audit scheduler: %w", err)
	}
	a.log.Info("⏹️ ledger audit stopped")
	return nil
}
