package cache

import (
	"context"
	"time"
)

// JSONCache stores values as JSON documents under string keys. A miss is
// reported as found=false with a nil error.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Noop struct{}

func (Noop) GetJSON(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (Noop) SetJSON(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}
