package ratelimit

import (
	"context"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Memory is a fixed-window, in-process limiter used when no Redis is
// configured. Counts are per replica.
type Memory struct {
	lim *limiter.Limiter
}

// NewMemory builds an in-process limiter admitting max events per window.
// A non-positive window falls back to one minute.
func NewMemory(window time.Duration, max int) *Memory {
	if window <= 0 {
		window = time.Minute
	}
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "ratelimit",
		CleanUpInterval: window,
	})
	return &Memory{lim: limiter.New(store, limiter.Rate{Period: window, Limit: int64(max)})}
}

// Allow implements Limiter.
func (m *Memory) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := m.lim.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     int(res.Limit),
		Remaining: int(res.Remaining),
		ResetAt:   time.Unix(res.Reset, 0),
	}, nil
}
