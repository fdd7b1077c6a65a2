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
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RunHistoryLimit is the number of runs kept per workflow.
const RunHistoryLimit = 100

// Store persists workflow definitions and their run history. Get and
// Delete return ErrNotFound for unknown names. Implementations must be safe
// for concurrent use; the Scheduler serializes writes per name.
type Store interface {
	Get(ctx context.Context, name string) (*Definition, error)
	Put(ctx context.Context, def *Definition) error
	Delete(ctx context.Context, name string) error
	// List returns every definition ordered by creation time, then name.
	List(ctx context.Context) ([]*Definition, error)
	// AppendRun records a run, keeping at most RunHistoryLimit per workflow.
	AppendRun(ctx context.Context, run *Run) error
	// ListRuns returns the runs of a workflow, oldest first.
	ListRuns(ctx context.Context, name string) ([]*Run, error)
	Close() error
}

// StoreConfig selects and configures a Store for OpenStore.
type StoreConfig struct {
	// Driver is one of memory, file, sqlite or redis.
	Driver string
	// Source is the JSON file for file, the database path or DSN for
	// sqlite, and the address or redis:// URL for redis.
	Source   string
	Password string
	DB       int
}

// OpenStore opens the store described by cfg.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return NewMemoryStore(), nil
	case "", "file":
		return NewFileStore(cfg.Source)
	case "sqlite", "sqlite3":
		return NewSQLiteStore(ctx, cfg.Source)
	case "redis":
		opts := &redis.Options{Addr: cfg.Source, Password: cfg.Password, DB: cfg.DB}
		if strings.Contains(cfg.Source, "://") {
			parsed, err := redis.ParseURL(cfg.Source)
			if err != nil {
				return nil, fmt.Errorf("parse redis url: %w", err)
			}
			opts = parsed
		}
		s := NewRedisStore(redis.NewClient(opts), "")
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown workflow store driver %q", cfg.Driver)
}

// sortDefinitions orders definitions by creation time, then name.
func sortDefinitions(defs []*Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if !defs[i].CreatedAt.Equal(defs[j].CreatedAt) {
			return defs[i].CreatedAt.Before(defs[j].CreatedAt)
		}
		return defs[i].Name < defs[j].Name
	})
}

func trimRuns(runs []*Run) []*Run {
	if len(runs) > RunHistoryLimit {
		return append([]*Run(nil), runs[len(runs)-RunHistoryLimit:]...)
	}
	return runs
}

// MemoryStore keeps definitions in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]*Definition
	runs map[string][]*Run
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		defs: make(map[string]*Definition),
		runs: make(map[string][]*Run),
	}
}

func (s *MemoryStore) Get(_ context.Context, name string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Name] = def.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[name]; !ok {
		return ErrNotFound
	}
	delete(s.defs, name)
	delete(s.runs, name)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Definition, error) {
	s.mu.RLock()
	defs := make([]*Definition, 0, len(s.defs))
	for _, d := range s.defs {
		defs = append(defs, d.Clone())
	}
	s.mu.RUnlock()
	sortDefinitions(defs)
	return defs, nil
}

func (s *MemoryStore) AppendRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *run
	s.runs[run.Workflow] = trimRuns(append(s.runs[run.Workflow], &r))
	return nil
}

func (s *MemoryStore) ListRuns(_ context.Context, name string) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*Run, 0, len(s.runs[name]))
	for _, r := range s.runs[name] {
		c := *r
		runs = append(runs, &c)
	}
	return runs, nil
}

func (s *MemoryStore) Close() error { return nil }
