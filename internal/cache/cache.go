package cache

import (
	"context"
	"time"

	"garmentpos/backend/internal/domain"
)

// BillCache holds finished bills. Bills never change after creation, so
// entries only expire, they are never invalidated.
type BillCache interface {
	Get(ctx context.Context, key string) (*domain.Bill, bool, error)
	Set(ctx context.Context, key string, value *domain.Bill, ttl time.Duration) error
}

type NoopBillCache struct{}

func (NoopBillCache) Get(_ context.Context, _ string) (*domain.Bill, bool, error) {
	return nil, false, nil
}

func (NoopBillCache) Set(_ context.Context, _ string, _ *domain.Bill, _ time.Duration) error {
	return nil
}

func BillIDKey(id string) string {
	return "bill:id:" + id
}

func BillNumberKey(number string) string {
	return "bill:number:" + number
}
