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

package scribe

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// tokenKeyPrefix namespaces cached JWTs in Redis
	tokenKeyPrefix = "scribe:jwt:"

	// tokenSkew is shaved off the token lifetime so a cached token is
	// never handed out moments before it expires
	tokenSkew = 60 * time.Second

	// minTokenTTL is the floor for the cache TTL
	minTokenTTL = 30 * time.Second

	// fallbackTokenTTL applies when the token carries no exp claim
	fallbackTokenTTL = 10 * time.Minute
)

// FetchFunc obtains a fresh token from the scribe service.
type FetchFunc func(ctx context.Context) (string, error)

// TokenCache caches scribe JWTs in Redis, keyed per account. The cache
// fails open: when Redis is unavailable every call fetches a fresh
// token and the write-back is best effort.
type TokenCache struct {
	rdb   *redis.Client
	key   string
	fetch FetchFunc
}

// NewTokenCache creates a token cache for one scribe account. A nil
// Redis client disables caching entirely.
func NewTokenCache(rdb *redis.Client, email, internalID string, fetch FetchFunc) *TokenCache {
	return &TokenCache{
		rdb:   rdb,
		key:   tokenKeyPrefix + email + ":" + internalID,
		fetch: fetch,
	}
}

// Token returns a cached JWT when one is present, otherwise fetches a
// fresh one and caches it for the remaining token lifetime.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	if tc.rdb != nil {
		if token, err := tc.rdb.Get(ctx, tc.key).Result(); err == nil && token != "" {
			return token, nil
		}
	}

	token, err := tc.fetch(ctx)
	if err != nil {
		return "", err
	}

	if tc.rdb != nil {
		tc.rdb.Set(ctx, tc.key, token, tokenTTL(token, time.Now()))
	}

	return token, nil
}

// Invalidate drops the cached token so the next call fetches fresh.
func (tc *TokenCache) Invalidate(ctx context.Context) {
	if tc.rdb != nil {
		tc.rdb.Del(ctx, tc.key)
	}
}

// tokenTTL derives the cache TTL from the token's exp claim. The token
// is not verified here; the scribe service signed it and only the
// expiry matters for caching.
func tokenTTL(token string, now time.Time) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fallbackTokenTTL
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallbackTokenTTL
	}

	ttl := exp.Time.Sub(now) - tokenSkew
	if ttl < minTokenTTL {
		return minTokenTTL
	}
	return ttl
}
