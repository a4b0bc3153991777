package rembg

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited 进程内限速，所有会话共享一个令牌桶
type RateLimited struct {
	next    Remover
	limiter *rate.Limiter
}

// NewRateLimited every <= 0 表示不限速
func NewRateLimited(next Remover, every time.Duration, burst int) *RateLimited {
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *RateLimited) Remove(ctx context.Context, payload, mimeType, instruction string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Remove(ctx, payload, mimeType, instruction)
}
