// Package cache implements the exact-match response cache on Redis/Valkey.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the exact-cache connection.
type Options struct {
	URL            string // redis:// or rediss://
	Cluster        bool
	TLSVerify      bool
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
}

// Exact is a best-effort TTL'd key/value cache. Every transport error is
// logged and swallowed: reads degrade to a miss, writes to a silent drop.
// A nil *Exact is valid and always misses.
type Exact struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// New connects to a single-endpoint or cluster Redis per opts. Cluster
// redirections are handled by the client; the caller only sees keys.
func New(opts Options, logger *slog.Logger) (*Exact, error) {
	var client redis.UniversalClient
	if opts.Cluster {
		o, err := redis.ParseClusterURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing cache cluster URL: %w", err)
		}
		o.DialTimeout = opts.ConnectTimeout
		o.ReadTimeout = opts.SocketTimeout
		o.WriteTimeout = opts.SocketTimeout
		if o.TLSConfig != nil && !opts.TLSVerify {
			o.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
		client = redis.NewClusterClient(o)
	} else {
		o, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing cache URL: %w", err)
		}
		o.DialTimeout = opts.ConnectTimeout
		o.ReadTimeout = opts.SocketTimeout
		o.WriteTimeout = opts.SocketTimeout
		if o.TLSConfig != nil && !opts.TLSVerify {
			o.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
		client = redis.NewClient(o)
	}

	return &Exact{client: client, logger: logger}, nil
}

// Get looks up a cached response body. A transport failure is reported as a
// miss; the pipeline must never fail a request because the cache is down.
func (e *Exact) Get(ctx context.Context, key string) ([]byte, bool) {
	if e == nil {
		return nil, false
	}
	val, err := e.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		e.logger.Warn("exact cache read failed", "key", key, "error", err)
		return nil, false
	}
	return val, true
}

// Set stores a response body with the given TTL. Failures are dropped.
func (e *Exact) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if e == nil {
		return
	}
	if err := e.client.Set(ctx, key, value, ttl).Err(); err != nil {
		e.logger.Warn("exact cache write failed", "key", key, "error", err)
	}
}

// Ping checks connectivity, for startup logging only.
func (e *Exact) Ping(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (e *Exact) Close() error {
	if e == nil {
		return nil
	}
	return e.client.Close()
}
