package persistence

import (
	"errors"

	"github.com/erp/priceimport/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps gorm sentinels onto domain errors
func translateError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}
