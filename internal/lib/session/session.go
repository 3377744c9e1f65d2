// Package session keeps at most one in-flight request per wallet and action.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/NebulaNode/nebula/internal/lib/misc"
	"github.com/NebulaNode/nebula/internal/lib/stake"
)

// DefaultTTL bounds how long a claim survives a process that died before releasing it.
const DefaultTTL = 5 * time.Minute

var ErrInFlight = errors.New("a request of this kind is already in flight for this wallet")

// Guard hands out exclusive claims on (wallet, action). A claim is released by calling the returned func.
type Guard interface {
	Acquire(ctx context.Context, wallet string, action stake.Action) (release func(), err error)
}

func claimKey(wallet string, action stake.Action) string {
	return fmt.Sprintf("%s:%s", wallet, action)
}

// NewMemoryGuard returns a process local guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{claims: map[string]bool{}}
}

type MemoryGuard struct {
	sync.Mutex
	claims map[string]bool
}

func (g *MemoryGuard) Acquire(_ context.Context, wallet string, action stake.Action) (func(), error) {
	key := claimKey(wallet, action)
	g.Lock()
	defer g.Unlock()
	if g.claims[key] {
		return nil, ErrInFlight
	}
	g.claims[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			g.Lock()
			delete(g.claims, key)
			g.Unlock()
		})
	}, nil
}

const redisPrefix = "nebula:inflight:v1:"

// only delete the claim if it's still ours - it may have expired and been re-claimed
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares claims across daemon instances through SETNX keys with a TTL.
type RedisGuard struct {
	logger *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(logger *slog.Logger, client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{logger: logger, client: client, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, wallet string, action stake.Action) (func(), error) {
	key := redisPrefix + claimKey(wallet, action)
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claiming %s: %w", key, err)
	}
	if !ok {
		return nil, ErrInFlight
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// best effort, the ttl covers failures
			if err := releaseScript.Run(ctx, g.client, []string{key}, token).Err(); err != nil {
				misc.Debugf(g.logger, "releasing %s failed, claim held until ttl expiry: %v", key, err)
			}
		})
	}, nil
}

// NewRedisClient parses url, connects and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
