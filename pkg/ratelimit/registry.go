// Package ratelimit 按客户端维度的令牌桶限流
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Registry 为每个 key (通常是客户端IP) 维护一个令牌桶，长时间不用的桶会被清理
type Registry struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	limiters map[string]*entry
	lastGC   time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRegistry rps 为每秒补充的令牌数，burst 为桶容量
func NewRegistry(rps float64, burst int, idleTTL time.Duration) *Registry {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Registry{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  idleTTL,
		now:      time.Now,
		limiters: make(map[string]*entry),
	}
}

// Allow 消耗 key 对应桶中的一个令牌
func (r *Registry) Allow(key string) bool {
	now := r.now()
	return r.get(key, now).AllowN(now, 1)
}

// RetryAfter 返回还需等待多久才有令牌，不消耗令牌
func (r *Registry) RetryAfter(key string) time.Duration {
	now := r.now()
	res := r.get(key, now).ReserveN(now, 1)
	if !res.OK() {
		return time.Second
	}
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	return delay
}

func (r *Registry) get(key string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastGC) > r.idleTTL {
		for k, e := range r.limiters {
			if now.Sub(e.lastSeen) > r.idleTTL {
				delete(r.limiters, k)
			}
		}
		r.lastGC = now
	}

	e, ok := r.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Len 当前维护的桶数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
