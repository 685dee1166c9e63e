// Copyright (c) 2026 John Earle
//
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

// Package cursor checkpoints the last successful poll time in Redis so a
// restarted daemon resumes its window instead of re-scanning the full
// lookback. Best effort only: an expired or missing checkpoint falls back
// to the configured lookback, and the tracker makes no exactly-once
// promise across restarts.
package cursor

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a checkpoint stays valid. Beyond it the
	// configured lookback is a better starting point anyway.
	DefaultTTL = 7 * 24 * time.Hour

	key = "jobtrack:cursor:last_poll"
)

// Checkpoint stores the last poll time in Redis.
type Checkpoint struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a checkpoint backed by Redis.
func New(rdb *redis.Client) *Checkpoint {
	return &Checkpoint{rdb: rdb, ttl: DefaultTTL}
}

// Load returns the stored poll time. ok is false when no checkpoint
// exists or it cannot be parsed.
func (c *Checkpoint) Load(ctx context.Context) (t time.Time, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cursor GET: %w", err)
	}

	t, perr := time.Parse(time.RFC3339, raw)
	if perr != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// Save stores the poll time with the checkpoint TTL.
func (c *Checkpoint) Save(ctx context.Context, t time.Time) error {
	if err := c.rdb.Set(ctx, key, t.UTC().Format(time.RFC3339), c.ttl).Err(); err != nil {
		return fmt.Errorf("cursor SET: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (c *Checkpoint) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
