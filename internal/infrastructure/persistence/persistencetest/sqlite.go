// Package persistencetest provides in-memory catalog databases for tests
// of packages that sit on top of the gorm repositories.
package persistencetest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewCatalogDB creates an in-memory SQLite database with the catalog
// tables. One connection keeps every query on the same in-memory database.
func NewCatalogDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	statements := []string{
		`CREATE TABLE products (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			category TEXT,
			description TEXT,
			technical_specs TEXT,
			pricing_structure TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(tenant_id, slug)
		)`,
		`CREATE TABLE product_attribute_groups (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE product_attribute_values (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			name TEXT NOT NULL,
			width_mm INTEGER,
			height_mm INTEGER,
			meta TEXT,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE generic_product_prices (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			variant_name TEXT NOT NULL,
			variant_value TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			price NUMERIC NOT NULL,
			extra_data TEXT,
			created_at DATETIME NOT NULL,
			UNIQUE(product_id, variant_name, variant_value, quantity)
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}
