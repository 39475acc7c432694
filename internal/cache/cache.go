package cache

import (
	"context"
	"time"

	"kokopos/backend/internal/domain"
)

// BarcodeCache caches barcode lookup results. Scans of the same handful of
// fast movers dominate a shift, so even a short TTL removes most catalog
// reads. Flush is called after any catalog write to keep matches fresh.
type BarcodeCache interface {
	Get(ctx context.Context, code string) (*domain.BarcodeMatch, bool, error)
	Set(ctx context.Context, code string, match *domain.BarcodeMatch, ttl time.Duration) error
	Flush(ctx context.Context) error
}

type NoopBarcodeCache struct{}

func (NoopBarcodeCache) Get(_ context.Context, _ string) (*domain.BarcodeMatch, bool, error) {
	return nil, false, nil
}

func (NoopBarcodeCache) Set(_ context.Context, _ string, _ *domain.BarcodeMatch, _ time.Duration) error {
	return nil
}

func (NoopBarcodeCache) Flush(_ context.Context) error {
	return nil
}
