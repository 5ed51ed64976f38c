// Package heartbeat publishes a TTL'd key to Redis while this process
// believes itself to be the leader. It is a second, independent liveness
// signal alongside the ZooKeeper session and Nacos registration: a
// consumer that only has Redis access can still tell whether a leader is
// currently renewing its heartbeat, and how long ago it last did.
package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mlindqvist/zkdistributed/logger"
)

// Beacon renews a leader's heartbeat key on an interval shorter than its
// TTL, and on Stop stops renewing and deletes the key.
type Beacon struct {
	rdb   redis.UniversalClient
	key   string
	ttl   time.Duration
	value string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBeacon connects to addrs (comma-separated for a cluster) and
// prepares a Beacon for key.
func NewBeacon(addrs string, key string, ttl time.Duration, value string) (*Beacon, error) {
	parts := strings.Split(addrs, ",")

	var rdb redis.UniversalClient
	if len(parts) > 1 {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        parts,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: parts[0]})
	}

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Beacon{rdb: rdb, key: key, ttl: ttl, value: value}, nil
}

// Start begins renewing the heartbeat key every ttl/3 until Stop is
// called. Call it from an OnWinningElection callback.
func (b *Beacon) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.ttl / 3)
		defer ticker.Stop()

		if err := b.renew(ctx); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", b.key).Msg("initial heartbeat renewal failed")
		}

		for {
			select {
			case <-ticker.C:
				if err := b.renew(ctx); err != nil {
					logger.Ctx(ctx).Warn().Err(err).Str("key", b.key).Msg("heartbeat renewal failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (b *Beacon) renew(ctx context.Context) error {
	return b.rdb.Set(ctx, b.key, b.value, b.ttl).Err()
}

// Stop cancels renewal and deletes the key immediately, so followers do
// not have to wait out the TTL to notice this instance stepped down.
// Call it from an OnLosingElection callback or on graceful shutdown.
func (b *Beacon) Stop(ctx context.Context) {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	if err := b.rdb.Del(ctx, b.key).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", b.key).Msg("heartbeat key deletion failed")
	}
}

// Alive reports whether key currently has a live TTL, for a follower
// checking liveness without going through Nacos or ZooKeeper.
func Alive(ctx context.Context, rdb redis.UniversalClient, key string) (bool, error) {
	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return ttl > 0, nil
}
