// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package test

import (
	"context"
	"fmt"
	"sync"

	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
)

// MemoryRunStore keeps archived runs in memory. Err, when set, is returned
// by Put.
type MemoryRunStore struct {
	mu   sync.Mutex
	runs []*model.RunRecord
	Err  error
}

func (s *MemoryRunStore) Put(ctx context.Context, rec *model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.runs = append(s.runs, rec)
	return nil
}

// Recent returns the newest runs first.
func (s *MemoryRunStore) Recent(ctx context.Context, limit int) ([]*model.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.RunRecord, 0, limit)
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

func (s *MemoryRunStore) Get(ctx context.Context, runID string) (*model.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.RunID == runID {
			return r, nil
		}
	}
	return nil, &model.NotFoundError{Detail: fmt.Sprintf("run %q not found", runID)}
}

// Runs returns every stored record in insertion order.
func (s *MemoryRunStore) Runs() []*model.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.RunRecord(nil), s.runs...)
}
