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

// Package services contains the business logic of an ad analysis run.
// This file, `queries.go`, centralizes the BigQuery SQL used by the run
// archive. The table name is injected with `fmt.Sprintf`; values are always
// bound as named query parameters.
package services

const (
	// QryRecentRuns lists the newest archived runs.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the runs table.
	// Parameters:
	// - `@limit`: The maximum number of rows to return.
	QryRecentRuns = "SELECT * FROM `%s` ORDER BY completed_at DESC LIMIT @limit"

	// QryFindRunByID looks up one archived run.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the runs table.
	// Parameters:
	// - `@run_id`: The id of the run.
	QryFindRunByID = "SELECT * FROM `%s` WHERE run_id = @run_id LIMIT 1"
)
