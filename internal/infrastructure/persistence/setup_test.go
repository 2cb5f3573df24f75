package persistence

import (
	"testing"

	"github.com/erp/priceimport/internal/infrastructure/persistence/persistencetest"
	"gorm.io/gorm"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	return persistencetest.NewCatalogDB(t)
}
