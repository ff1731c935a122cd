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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"google.golang.org/api/iterator"
)

// DefaultRecentRuns is used when a caller does not ask for a specific count.
const DefaultRecentRuns = 20

// RunStore archives finished runs.
type RunStore interface {
	Put(ctx context.Context, rec *model.RunRecord) error
	Recent(ctx context.Context, limit int) ([]*model.RunRecord, error)
	Get(ctx context.Context, runID string) (*model.RunRecord, error)
}

// RunArchive stores run records in a BigQuery table.
type RunArchive struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewRunArchive returns nil when BigQuery is not configured.
func NewRunArchive(client *bigquery.Client, dataset string, table string) *RunArchive {
	if client == nil || dataset == "" || table == "" {
		return nil
	}
	return &RunArchive{client: client, dataset: dataset, table: table}
}

// GetFQN returns the table name in `project.dataset.table` form.
func (a *RunArchive) GetFQN() string {
	fqn := a.client.Dataset(a.dataset).Table(a.table).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// Put streams one record into the table.
func (a *RunArchive) Put(ctx context.Context, rec *model.RunRecord) error {
	if err := a.client.Dataset(a.dataset).Table(a.table).Inserter().Put(ctx, rec); err != nil {
		return fmt.Errorf("bigquery insert failed for run %s: %w", rec.RunID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (a *RunArchive) Recent(ctx context.Context, limit int) ([]*model.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentRuns
	}
	q := a.client.Query(fmt.Sprintf(QryRecentRuns, a.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.RunRecord, 0, limit)
	for {
		rec := &model.RunRecord{}
		err := itr.Next(rec)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns one record or *model.NotFoundError.
func (a *RunArchive) Get(ctx context.Context, runID string) (*model.RunRecord, error) {
	q := a.client.Query(fmt.Sprintf(QryFindRunByID, a.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "run_id", Value: runID}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	rec := &model.RunRecord{}
	err = itr.Next(rec)
	if errors.Is(err, iterator.Done) {
		return nil, &model.NotFoundError{Detail: fmt.Sprintf("run %q not found", runID)}
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
