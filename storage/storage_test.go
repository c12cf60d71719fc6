package storage

import (
	"path/filepath"
	"testing"

	"powerup-economy/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestOpenSQLiteSeedsCatalog(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "economy.db"))
	require.NoError(t, err)

	var defs []models.PowerUpDefinition
	require.NoError(t, db.Order("id").Find(&defs).Error)
	require.Len(t, defs, 4)

	byID := map[string]models.PowerUpDefinition{}
	for _, d := range defs {
		byID[d.ID] = d
	}
	assert.Equal(t, models.KindMultiplier, byID["double-points"].Kind)
	assert.Equal(t, int64(2), byID["double-points"].Factor)
	assert.Equal(t, 3, byID["gamble"].MaxUses)
	assert.Equal(t, int64(8), byID["sabotage"].Price)
}

func TestSeedCatalogIsIdempotent(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "economy.db"))
	require.NoError(t, err)

	catalog := models.DefaultCatalog()
	catalog[0].Price = 7
	require.NoError(t, SeedCatalog(db, catalog))

	var count int64
	require.NoError(t, db.Model(&models.PowerUpDefinition{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)

	var double models.PowerUpDefinition
	require.NoError(t, db.First(&double, "id = ?", "double-points").Error)
	assert.Equal(t, int64(7), double.Price)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", logger.Silent)
	assert.ErrorContains(t, err, "unsupported")
}
