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
	"errors"
	"io/fs"
	"strings"
	"sync"

	"github.com/nicholasgasior/docconv-go/internal/fsutil"
)

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	Workflows map[string]*Definition `json:"workflows"`
	Runs      map[string][]*Run      `json:"runs,omitempty"`
}

// FileStore keeps definitions in a single JSON document. Every write
// replaces the file atomically. The file is re-read on each call, so edits
// made by other processes between calls are picked up.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the JSON file at path, which is
// created on first write.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("file store: path is empty")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) load() (*fileDocument, error) {
	doc := &fileDocument{}
	if err := fsutil.ReadJSON(s.path, doc); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if doc.Workflows == nil {
		doc.Workflows = make(map[string]*Definition)
	}
	if doc.Runs == nil {
		doc.Runs = make(map[string][]*Run)
	}
	return doc, nil
}

func (s *FileStore) update(fn func(*fileDocument) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return fsutil.WriteJSON(s.path, doc)
}

func (s *FileStore) Get(_ context.Context, name string) (*Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	d, ok := doc.Workflows[name]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *FileStore) Put(_ context.Context, def *Definition) error {
	return s.update(func(doc *fileDocument) error {
		doc.Workflows[def.Name] = def.Clone()
		return nil
	})
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	return s.update(func(doc *fileDocument) error {
		if _, ok := doc.Workflows[name]; !ok {
			return ErrNotFound
		}
		delete(doc.Workflows, name)
		delete(doc.Runs, name)
		return nil
	})
}

func (s *FileStore) List(_ context.Context) ([]*Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	defs := make([]*Definition, 0, len(doc.Workflows))
	for name, d := range doc.Workflows {
		d.Name = name
		defs = append(defs, d)
	}
	sortDefinitions(defs)
	return defs, nil
}

func (s *FileStore) AppendRun(_ context.Context, run *Run) error {
	return s.update(func(doc *fileDocument) error {
		r := *run
		doc.Runs[run.Workflow] = trimRuns(append(doc.Runs[run.Workflow], &r))
		return nil
	})
}

func (s *FileStore) ListRuns(_ context.Context, name string) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	runs := doc.Runs[name]
	if runs == nil {
		runs = []*Run{}
	}
	return runs, nil
}

func (s *FileStore) Close() error { return nil }
