// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by a RedisStore.
const DefaultRedisPrefix = "docconv"

// RedisStore keeps each definition as a JSON value, indexes names in a
// sorted set scored by creation time, and appends runs to a list per
// workflow.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps client. An empty prefix selects DefaultRedisPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) indexKey() string { return s.prefix + ":workflows" }
func (s *RedisStore) defKey(name string) string { return s.prefix + ":workflow:" + name }
func (s *RedisStore) runsKey(name string) string { return s.prefix + ":runs:" + name }

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, name string) (*Definition, error) {
	data, err := s.client.Get(ctx, s.defKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get workflow %q: %w", name, err)
	}
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("redis: decode workflow %q: %w", name, err)
	}
	return &d, nil
}

func (s *RedisStore) Put(ctx context.Context, def *Definition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("redis: encode workflow %q: %w", def.Name, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.defKey(def.Name), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(def.CreatedAt.UnixMilli()), Member: def.Name})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: put workflow %q: %w", def.Name, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, s.defKey(name))
		pipe.Del(ctx, s.runsKey(name))
		pipe.ZRem(ctx, s.indexKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete workflow %q: %w", name, err)
	}
	if removed.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Definition, error) {
	names, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list workflows: %w", err)
	}
	if len(names) == 0 {
		return []*Definition{}, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = s.defKey(n)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load workflows: %w", err)
	}

	defs := make([]*Definition, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a definition; deleted concurrently.
			continue
		}
		var d Definition
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("redis: decode workflow %q: %w", names[i], err)
		}
		defs = append(defs, &d)
	}
	sortDefinitions(defs)
	return defs, nil
}

func (s *RedisStore) AppendRun(ctx context.Context, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("redis: encode run %s: %w", run.ID, err)
	}
	key := s.runsKey(run.Workflow)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -RunHistoryLimit, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: append run %s: %w", run.ID, err)
	}
	return nil
}

func (s *RedisStore) ListRuns(ctx context.Context, name string) ([]*Run, error) {
	values, err := s.client.LRange(ctx, s.runsKey(name), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list runs of %q: %w", name, err)
	}
	runs := make([]*Run, 0, len(values))
	for _, v := range values {
		var r Run
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("redis: decode run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
