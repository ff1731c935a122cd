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

// Package model defines the data structures that flow through an ad analysis
// run. This file holds the run state machine and the archived run record.
//
// A run moves strictly forward:
//
//	RESOLVING_BRANDS -> FETCHING_ADS -> ANALYZING -> AGGREGATING -> COMPOSING -> DONE
//
// FAILED can be entered from any non-terminal state. DONE and FAILED are
// absorbing: once reached, no further transition is accepted.
package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunState is a state of the run state machine.
type RunState string

const (
	StatePending         RunState = ""
	StateResolvingBrands RunState = "RESOLVING_BRANDS"
	StateFetchingAds     RunState = "FETCHING_ADS"
	StateAnalyzing       RunState = "ANALYZING"
	StateAggregating     RunState = "AGGREGATING"
	StateComposing       RunState = "COMPOSING"
	StateDone            RunState = "DONE"
	StateFailed          RunState = "FAILED"
)

var nextState = map[RunState]RunState{
	StatePending:         StateResolvingBrands,
	StateResolvingBrands: StateFetchingAds,
	StateFetchingAds:     StateAnalyzing,
	StateAnalyzing:       StateAggregating,
	StateAggregating:     StateComposing,
	StateComposing:       StateDone,
}

// Terminal reports whether the state is absorbing.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition is one recorded state change.
type Transition struct {
	From RunState  `json:"from"`
	To   RunState  `json:"to"`
	At   time.Time `json:"at"`
}

// RunTracker holds the mutable state of one run. It is safe for concurrent use.
type RunTracker struct {
	mu          sync.Mutex
	runID       string
	state       RunState
	transitions []Transition
	startedAt   time.Time
	deadline    time.Time
	degraded    bool
	warnings    []string
	failure     error
}

// NewRunTracker starts tracking a run. A zero deadline means no deadline.
func NewRunTracker(deadline time.Time) *RunTracker {
	return &RunTracker{
		runID:       uuid.New().String(),
		state:       StatePending,
		transitions: make([]Transition, 0, 8),
		startedAt:   time.Now(),
		deadline:    deadline,
		warnings:    make([]string, 0),
	}
}

// RunID returns the unique id of the run.
func (t *RunTracker) RunID() string { return t.runID }

// StartedAt returns when the tracker was created.
func (t *RunTracker) StartedAt() time.Time { return t.startedAt }

// Deadline returns the overall run deadline, if any.
func (t *RunTracker) Deadline() (time.Time, bool) {
	return t.deadline, !t.deadline.IsZero()
}

// State returns the current state.
func (t *RunTracker) State() RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transition moves the run to the given state. Only the next state in the
// sequence is accepted; FAILED must be entered through Fail.
func (t *RunTracker) Transition(to RunState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return fmt.Errorf("run %s is %s, cannot move to %s", t.runID, t.state, to)
	}
	if next, ok := nextState[t.state]; !ok || next != to {
		return fmt.Errorf("invalid run transition %q -> %q", t.state, to)
	}
	t.record(to)
	return nil
}

// Fail moves the run to FAILED. It is a no-op once the run is terminal.
func (t *RunTracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	t.failure = err
	t.record(StateFailed)
}

func (t *RunTracker) record(to RunState) {
	t.transitions = append(t.transitions, Transition{From: t.state, To: to, At: time.Now()})
	t.state = to
}

// Err returns the error that failed the run, if any.
func (t *RunTracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

// Transitions returns a copy of the state history.
func (t *RunTracker) Transitions() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Transition, len(t.transitions))
	copy(out, t.transitions)
	return out
}

// Warn records a non-fatal problem.
func (t *RunTracker) Warn(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings = append(t.warnings, msg)
}

// MarkDegraded flags the run as having produced a partial result.
func (t *RunTracker) MarkDegraded(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.degraded = true
	t.warnings = append(t.warnings, reason)
}

// Degraded reports whether the run produced a partial result.
func (t *RunTracker) Degraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.degraded
}

// Warnings returns a copy of the recorded warnings.
func (t *RunTracker) Warnings() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.warnings))
	copy(out, t.warnings)
	return out
}

// RunRecord is the archived summary of a run, stored in BigQuery.
type RunRecord struct {
	RunID            string    `json:"run_id" bigquery:"run_id"`
	State            string    `json:"state" bigquery:"state"`
	BrandNames       []string  `json:"brand_names" bigquery:"brand_names"`
	PlatformIDs      []string  `json:"platform_ids" bigquery:"platform_ids"`
	GeneratorType    string    `json:"generator_type" bigquery:"generator_type"`
	UserQuery        string    `json:"user_query" bigquery:"user_query"`
	ProductURL       string    `json:"product_url" bigquery:"product_url"`
	AdsFetched       int       `json:"ads_fetched" bigquery:"ads_fetched"`
	AdsAnalyzed      int       `json:"ads_analyzed" bigquery:"ads_analyzed"`
	AdsSkipped       int       `json:"ads_skipped" bigquery:"ads_skipped"`
	AdsFailed        int       `json:"ads_failed" bigquery:"ads_failed"`
	WebpageAnalyzed  bool      `json:"webpage_analyzed" bigquery:"webpage_analyzed"`
	Degraded         bool      `json:"degraded" bigquery:"degraded"`
	ErrorType        string    `json:"error_type,omitempty" bigquery:"error_type"`
	ErrorDetail      string    `json:"error_detail,omitempty" bigquery:"error_detail"`
	VideoDescription string    `json:"video_description,omitempty" bigquery:"video_description"`
	StartedAt        time.Time `json:"started_at" bigquery:"started_at"`
	CompletedAt      time.Time `json:"completed_at" bigquery:"completed_at"`
	DurationMillis   int64     `json:"duration_millis" bigquery:"duration_millis"`
}

// NewRunRecord summarizes a finished run. script may be nil for failed runs.
func NewRunRecord(tracker *RunTracker, req *ScriptRequest, script *GeneratedScript) *RunRecord {
	now := time.Now()
	rec := &RunRecord{
		RunID:       tracker.RunID(),
		State:       string(tracker.State()),
		Degraded:    tracker.Degraded(),
		StartedAt:   tracker.StartedAt(),
		CompletedAt: now,
		BrandNames:  []string{},
		PlatformIDs: []string{},
	}
	rec.DurationMillis = now.Sub(rec.StartedAt).Milliseconds()
	if req != nil {
		rec.BrandNames = append(rec.BrandNames, req.BrandNames...)
		rec.GeneratorType = req.GeneratorType
		rec.UserQuery = req.UserQuery
		rec.ProductURL = req.ProductURL
	}
	if script != nil {
		md := script.AnalysisMetadata
		rec.AdsFetched = md.AdsFetched
		rec.AdsAnalyzed = md.AdsAnalyzed
		rec.AdsSkipped = md.AdsSkipped
		rec.AdsFailed = md.AdsFailed
		rec.WebpageAnalyzed = md.WebpageAnalyzed
		rec.VideoDescription = script.VideoDescription
	}
	if err := tracker.Err(); err != nil {
		resp := NewErrorResponse(err)
		rec.ErrorType = string(resp.Type)
		rec.ErrorDetail = resp.Detail
	}
	return rec
}
