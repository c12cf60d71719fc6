package workers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"powerup-economy/services"
	"powerup-economy/storage"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	store    *services.Store
	ledger   *services.LedgerService
	identity *services.IdentityResolver
}

func newFixture(t *testing.T, clock clockwork.Clock) *fixture {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "workers.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := zaptest.NewLogger(t)
	store := services.NewStore(db, 2*time.Second, 3, log)
	locks := services.NewPlayerLocks()
	return &fixture{
		db:       db,
		store:    store,
		ledger:   services.NewLedgerService(store, locks, nil, clock, log),
		identity: services.NewIdentityResolver(store, log),
	}
}

func (f *fixture) player(t *testing.T, externalID string) string {
	t.Helper()
	p, err := f.identity.Resolve(context.Background(), externalID)
	require.NoError(t, err)
	return p.ID
}
