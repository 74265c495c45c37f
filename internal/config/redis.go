package config

// Redis backs the distributed rate limiter and the catalog response cache.
// Both degrade gracefully when the server cannot be reached at startup.

import (
    "context"
    "crypto/tls"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"
)

// RedisOptions builds client options from the environment:
//   REDIS_ADDR (host:port) or REDIS_HOST + REDIS_PORT, REDIS_PASSWORD,
//   REDIS_DB and REDIS_TLS.
func RedisOptions() *redis.Options {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
        addr = host + ":" + port
    }
    opts := &redis.Options{
        Addr:     addr,
        Password: envStr("REDIS_PASSWORD", ""),
        DB:       envInt("REDIS_DB", 0),
    }
    if v := envStr("REDIS_TLS", ""); strings.EqualFold(v, "true") || v == "1" {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return opts
}

// NewRedisClient connects and pings Redis.  It returns nil when the server
// is unreachable; callers then fall back to in-process rate limiting and
// run without a response cache.
func NewRedisClient(log logrus.FieldLogger) *redis.Client {
    if !envBool("REDIS_ENABLED", true) {
        return nil
    }
    opts := RedisOptions()
    client := redis.NewClient(opts)

    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.WithError(err).WithField("addr", opts.Addr).Warn("redis unavailable, cache disabled and rate limiting is local")
        _ = client.Close()
        return nil
    }
    return client
}
