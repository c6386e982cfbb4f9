// Copyright 2026 CarePilot
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter enforces a sliding one-minute window per client. With a
// Redis backend the window is shared across instances; without one an
// in-memory window applies. Redis errors fail open.
type RateLimiter struct {
	rdb   *redis.Client
	limit int

	mu      sync.Mutex
	windows map[string]*windowEntry
}

type windowEntry struct {
	count int
	reset time.Time
}

// NewRateLimiter creates a limiter allowing limitPerMinute requests per
// client. A nil Redis client selects the in-memory window.
func NewRateLimiter(rdb *redis.Client, limitPerMinute int) *RateLimiter {
	return &RateLimiter{
		rdb:     rdb,
		limit:   limitPerMinute,
		windows: make(map[string]*windowEntry),
	}
}

// Allow records one request for the client and reports an error when the
// client exceeds the per-minute limit.
func (rl *RateLimiter) Allow(ctx context.Context, clientID string) error {
	if rl.rdb == nil {
		return rl.allowInMemory(clientID)
	}

	now := time.Now()
	key := "ratelimit:" + clientID

	pipe := rl.rdb.Pipeline()

	// Remove timestamps older than 1 minute (sliding window)
	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))

	// Count requests in current window
	pipe.ZCard(ctx, key)

	// Add current request timestamp
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})

	// Set expiration (cleanup old keys)
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("Redis rate limit check failed for %s: %v (failing open)", clientID, err)
		return nil
	}

	// Get count from ZCARD result (index 1)
	count := cmds[1].(*redis.IntCmd).Val()

	if count > int64(rl.limit) {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", count, rl.limit)
	}

	return nil
}

func (rl *RateLimiter) allowInMemory(clientID string) error {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.windows[clientID]
	if !exists || now.After(entry.reset) {
		rl.windows[clientID] = &windowEntry{count: 1, reset: now.Add(time.Minute)}
		return nil
	}

	entry.count++
	if entry.count > rl.limit {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", entry.count, rl.limit)
	}

	return nil
}

// clientIP extracts the originating client address for rate-limit keys.
// Proxies and load balancers put the real client first in
// X-Forwarded-For.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i != -1 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
