// Package ratelimit limits request rates per key, in Redis when available and
// in process otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// slidingWindow keeps one sorted-set member per request. It returns the number of
// requests left, or the negated wait in milliseconds when the window is full.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window_ms)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window_ms)
	return limit - count - 1
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest > 0 then
	return -(tonumber(oldest[2]) + window_ms - now)
end
return -window_ms
`)

// Result describes one Allow decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter allows at most limit requests per key within window.
type Limiter struct {
	redis  *redis.Client
	local  *gocache.Cache
	mu     sync.Mutex
	limit  int
	window time.Duration
	prefix string
	seq    uint64
	now    func() time.Time
}

// New creates a limiter. rdb may be nil.
func New(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		redis:  rdb,
		local:  gocache.New(window, 2*window),
		limit:  limit,
		window: window,
		prefix: "inboxt:ratelimit:",
		now:    time.Now,
	}
}

// Allow records a request for key and reports whether it fits in the window.
// A Redis failure falls back to the in-process counter.
func (l *Limiter) Allow(ctx context.Context, key string) Result {
	if l.redis != nil {
		if res, err := l.allowRedis(ctx, key); err == nil {
			return res
		}
	}
	return l.allowLocal(key)
}

func (l *Limiter) allowRedis(ctx context.Context, key string) (Result, error) {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	now := l.now().UnixMilli()
	n, err := slidingWindow.Run(ctx, l.redis, []string{l.prefix + key},
		now, l.window.Milliseconds(), l.limit, fmt.Sprintf("%d-%d", now, seq)).Int64()
	if err != nil {
		return Result{}, err
	}
	if n < 0 {
		return Result{Limit: l.limit, RetryAfter: time.Duration(-n) * time.Millisecond}, nil
	}
	return Result{Allowed: true, Limit: l.limit, Remaining: int(n)}, nil
}

type window struct {
	count   int
	resetAt time.Time
}

// allowLocal is a fixed window counter.
func (l *Limiter) allowLocal(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.local.Get(key)
	cur, _ := w.(*window)
	if !ok || cur == nil || !now.Before(cur.resetAt) {
		cur = &window{resetAt: now.Add(l.window)}
		l.local.Set(key, cur, l.window)
	}
	if cur.count >= l.limit {
		return Result{Limit: l.limit, RetryAfter: cur.resetAt.Sub(now)}
	}
	cur.count++
	return Result{Allowed: true, Limit: l.limit, Remaining: l.limit - cur.count}
}
