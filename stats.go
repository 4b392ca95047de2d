/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package labsync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// StatsKey holds the latest snapshot published by a worker engine.
	StatsKey = "labsync:pipeline:stats"

	StatsSourceLocal     = "local"
	StatsSourcePublished = "published"

	defaultStatsTTL = 10 * time.Minute
)

// StatsPublisher receives the engine counters after every cycle that ran.
type StatsPublisher interface {
	Publish(ctx context.Context, stats ProcessorStats) error
}

// StatsReader returns the most recently published counters, or nil when none are live.
type StatsReader interface {
	Latest(ctx context.Context) (*ProcessorStats, error)
}

// RedisStatsStore shares engine counters between the worker and API processes.
// A snapshot expires after ttl so a dead worker stops being reported.
type RedisStatsStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStatsStore(client redis.UniversalClient, ttl time.Duration) *RedisStatsStore {
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	return &RedisStatsStore{client: client, ttl: ttl}
}

func (s *RedisStatsStore) Publish(ctx context.Context, stats ProcessorStats) error {
	now := time.Now().UTC()
	stats.Source = StatsSourcePublished
	stats.ReportedAt = &now
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, StatsKey, data, s.ttl).Err()
}

func (s *RedisStatsStore) Latest(ctx context.Context) (*ProcessorStats, error) {
	data, err := s.client.Get(ctx, StatsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats ProcessorStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
