// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hectorflow/orchestrator/pkg/orcherr"
)

// SQLiteStore is the durable Store backend, persisting the full JSON-encoded
// WorkflowState in a single table keyed by workflow_id with a status column
// kept in sync for the ListByStatus/ListPendingApproval index scans. This is
// the direct descendant of a pending_executions keyed-map
// layout (pkg/checkpoint/storage.go), generalized from session-scoped
// storage to workflow-scoped storage and backed by sqlite instead of an
// in-memory session map.
type SQLiteStore struct {
	mu sync.Mutex // serializes writes; sqlite itself only allows one writer
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a sqlite-backed Store at
// path. Use ":memory:" for an ephemeral, test-only database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS workflow_state (
	workflow_id TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	payload     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflow_state_status ON workflow_state(status);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, ws *WorkflowState) error {
	if ws == nil || ws.WorkflowID == "" {
		return orcherr.New("state.SQLiteStore", "Save", "workflow id required", orcherr.ErrStoreUnavailable)
	}
	payload, err := ws.Serialize()
	if err != nil {
		return orcherr.New("state.SQLiteStore", "Save", "serialize", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
INSERT INTO workflow_state (workflow_id, status, payload) VALUES (?, ?, ?)
ON CONFLICT(workflow_id) DO UPDATE SET status = excluded.status, payload = excluded.payload
`, ws.WorkflowID, string(ws.Status), payload)
	if err != nil {
		return orcherr.New("state.SQLiteStore", "Save", "exec", fmt.Errorf("%w: %v", orcherr.ErrStoreUnavailable, err))
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, workflowID string) (*WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT payload FROM workflow_state WHERE workflow_id = ?`, workflowID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, orcherr.New("state.SQLiteStore", "Load", fmt.Sprintf("no state for %q", workflowID), orcherr.ErrNotFound)
		}
		return nil, orcherr.New("state.SQLiteStore", "Load", "query", fmt.Errorf("%w: %v", orcherr.ErrStoreUnavailable, err))
	}
	ws, err := Deserialize(payload)
	if err != nil {
		// Includes schema_version mismatches: an incompatible record is
		// indistinguishable from an unavailable store to the caller.
		return nil, orcherr.New("state.SQLiteStore", "Load", "decode", fmt.Errorf("%w: %v", orcherr.ErrStoreUnavailable, err))
	}
	return ws, nil
}

func (s *SQLiteStore) ListByStatus(ctx context.Context, status Status) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT workflow_id FROM workflow_state WHERE status = ?`, string(status))
	if err != nil {
		return nil, orcherr.New("state.SQLiteStore", "ListByStatus", "query", fmt.Errorf("%w: %v", orcherr.ErrStoreUnavailable, err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, orcherr.New("state.SQLiteStore", "ListByStatus", "scan", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListPendingApproval(ctx context.Context) ([]string, error) {
	return s.ListByStatus(ctx, StatusWaitingApproval)
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
