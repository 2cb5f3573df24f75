package priceimport

import (
	"context"
	"time"

	"github.com/erp/priceimport/internal/domain/extraction"
)

// Extractor returns the item texts of one page container. The provider
// chain implements it.
type Extractor interface {
	Extract(ctx context.Context, url string, selector extraction.Selector) (*extraction.Result, error)
}

// ProductLocker keeps two runs from writing one product's rows at the same
// time. TryLock fails with shared.ErrLocked while another holder is active.
type ProductLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// SnapshotWriter stores the audit artifacts of a run and returns where
// they went.
type SnapshotWriter interface {
	Write(ctx context.Context, snap *Snapshot) ([]string, error)
}
