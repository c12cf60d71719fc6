package workers

import (
	"context"
	"testing"
	"time"

	"powerup-economy/models"
	"powerup-economy/services"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type countingPutter struct {
	keys chan string
}

func (p *countingPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.keys <- *in.Key
	return &s3.PutObjectOutput{}, nil
}

func TestLedgerAuditReconcileRecordsDrift(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	f := newFixture(t, clock)
	p := f.player(t, "uid-1")
	_, err := f.ledger.Compensate(context.Background(), p, models.CurrencyTokens, 10, models.ReasonAdminGrant)
	require.NoError(t, err)

	audit, err := NewLedgerAudit(f.ledger, nil, clock, time.Hour, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)

	drifts, err := audit.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drifts)

	require.NoError(t, f.db.Model(&models.Player{}).Where("id = ?", p).Update("tokens", 3).Error)
	drifts, err = audit.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)

	status := audit.Status()
	assert.Equal(t, clock.Now(), status.LastReconcileAt)
	assert.Equal(t, services.Drift{PlayerID: p, Currency: models.CurrencyTokens, Cached: 3, Derived: 10}, status.Drift[0])

	n, err := audit.Archive(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "archival disabled without an archiver")
}

func TestLedgerAuditSchedulesJobs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	clock := clockwork.NewRealClock()
	f := newFixture(t, clock)
	p := f.player(t, "uid-1")
	_, err := f.ledger.Compensate(context.Background(), p, models.CurrencyPoints, 120, models.ReasonAdminGrant)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	putter := &countingPutter{keys: make(chan string, 16)}
	archiver := services.NewLedgerArchiver(f.store, putter, "archive", clock, log)
	archiver.Settle = 0

	audit, err := NewLedgerAudit(f.ledger, archiver, clock, 20*time.Millisecond, 20*time.Millisecond, log)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, audit.Start(ctx))

	select {
	case key := <-putter.keys:
		assert.Contains(t, key, "ledger/")
	case <-time.After(2 * time.Second):
		t.Fatal("archive job never ran")
	}
	require.Eventually(t, func() bool {
		return !audit.Status().LastReconcileAt.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, audit.Shutdown())
	assert.Equal(t, 1, audit.Status().Archived)
}
