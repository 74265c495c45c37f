package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"
    "golang.org/x/time/rate"

    "github.com/iliyamo/movie-ticket-booking/internal/config"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
    Allowed    bool
    Remaining  int64
    RetryAfter time.Duration
}

// Limiter takes one token from the bucket named by key.
type Limiter interface {
    Take(ctx context.Context, key string) (Decision, error)
}

// tokenBucketScript refills the bucket by whole intervals and takes one
// token.  It returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
    tokens = capacity
    last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
    tokens = math.min(capacity, tokens + (intervals * refill_tokens))
    last_refill = last_refill + (intervals * interval_ms)
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
    allowed = 1
    tokens = tokens - 1
else
    retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_after_ms }
`)

// RedisLimiter shares buckets between every instance of the service.
type RedisLimiter struct {
    rdb redis.Scripter
    cfg config.RateLimitConfig
    now func() time.Time
}

func NewRedisLimiter(rdb redis.Scripter, cfg config.RateLimitConfig) *RedisLimiter {
    return &RedisLimiter{rdb: rdb, cfg: cfg, now: time.Now}
}

func (l *RedisLimiter) Take(ctx context.Context, key string) (Decision, error) {
    vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{key},
        l.now().UnixMilli(),
        l.cfg.Capacity,
        l.cfg.RefillTokens,
        l.cfg.RefillInterval.Milliseconds(),
        int64(l.cfg.TTL/time.Second),
    ).Int64Slice()
    if err != nil {
        return Decision{}, fmt.Errorf("rate limit script: %w", err)
    }
    if len(vals) != 3 {
        return Decision{}, fmt.Errorf("rate limit script: unexpected result %v", vals)
    }
    return Decision{
        Allowed:    vals[0] == 1,
        Remaining:  vals[1],
        RetryAfter: time.Duration(vals[2]) * time.Millisecond,
    }, nil
}

// LocalLimiter keeps buckets in process memory.  It is used when Redis is
// not configured and as the fallback when a Redis call fails.
type LocalLimiter struct {
    cfg   config.RateLimitConfig
    mu    sync.Mutex
    items map[string]*localBucket
    swept time.Time
}

type localBucket struct {
    lim      *rate.Limiter
    lastSeen time.Time
}

func NewLocalLimiter(cfg config.RateLimitConfig) *LocalLimiter {
    return &LocalLimiter{cfg: cfg, items: make(map[string]*localBucket), swept: time.Now()}
}

func (l *LocalLimiter) Take(_ context.Context, key string) (Decision, error) {
    now := time.Now()
    l.mu.Lock()
    defer l.mu.Unlock()

    l.sweep(now)
    b, ok := l.items[key]
    if !ok {
        every := l.cfg.RefillInterval / time.Duration(l.cfg.RefillTokens)
        b = &localBucket{lim: rate.NewLimiter(rate.Every(every), l.cfg.Capacity)}
        l.items[key] = b
    }
    b.lastSeen = now

    r := b.lim.ReserveN(now, 1)
    if delay := r.DelayFrom(now); delay > 0 {
        r.CancelAt(now)
        return Decision{Allowed: false, RetryAfter: delay}, nil
    }
    return Decision{Allowed: true, Remaining: int64(b.lim.TokensAt(now))}, nil
}

// sweep drops buckets idle for longer than the configured TTL.
func (l *LocalLimiter) sweep(now time.Time) {
    if now.Sub(l.swept) < l.cfg.TTL {
        return
    }
    for k, b := range l.items {
        if now.Sub(b.lastSeen) > l.cfg.TTL {
            delete(l.items, k)
        }
    }
    l.swept = now
}

// fallbackLimiter asks primary first and uses secondary when it errors.
type fallbackLimiter struct {
    primary   Limiter
    secondary Limiter
    log       logrus.FieldLogger
}

func (f fallbackLimiter) Take(ctx context.Context, key string) (Decision, error) {
    d, err := f.primary.Take(ctx, key)
    if err == nil {
        return d, nil
    }
    f.log.WithError(err).WithField("key", key).Warn("rate limiter falling back to local buckets")
    return f.secondary.Take(ctx, key)
}

// NewLimiter picks the Redis bucket when a client is available, backed by
// local buckets, and local buckets alone otherwise.
func NewLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger) Limiter {
    local := NewLocalLimiter(cfg)
    if rdb == nil {
        return local
    }
    return fallbackLimiter{primary: NewRedisLimiter(rdb, cfg), secondary: local, log: log}
}

// RateLimit rejects requests with 429 once their bucket is empty.  The
// bucket key is chosen by cfg.KeyStrategy.
func RateLimit(cfg config.RateLimitConfig, limiter Limiter) echo.MiddlewareFunc {
    if !cfg.Enabled || limiter == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            d, err := limiter.Take(c.Request().Context(), rateKey(cfg, c))
            if err != nil {
                // fail open
                return next(c)
            }
            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
            if !d.Allowed {
                secs := int(math.Ceil(d.RetryAfter.Seconds()))
                if secs < 1 {
                    secs = 1
                }
                h.Set("Retry-After", strconv.Itoa(secs))
                return c.JSON(http.StatusTooManyRequests, echo.Map{"message": "rate limit exceeded"})
            }
            return next(c)
        }
    }
}

func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := subject(c)
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
