// Package sqlitestore is a durable orchestrator.Store backed by SQLite,
// giving task status a projection that outlives the process that started
// the task (spec.md §5) — an alternative to orchestrator.MemStore for
// deployments where callers may poll GET /task_status/{id} well after the
// submitting process has cycled. Modeled on the teacher's JobStore
// (internal/api/jobs.go), swapping the in-memory map for a SQLite table
// while keeping the same mutex-guarded cancel-func bookkeeping for the
// one thing a database row can't hold: a live goroutine's
// context.CancelFunc.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptoria/weaver/core/sqlite"
	"github.com/scriptoria/weaver/internal/model"
	"github.com/scriptoria/weaver/internal/orchestrator"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	state        TEXT NOT NULL,
	requests     TEXT NOT NULL,
	config       TEXT NOT NULL,
	document_key TEXT NOT NULL DEFAULT '',
	unfound      TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
`

// Store is a SQLite-backed orchestrator.Store. It satisfies the same
// interface as orchestrator.MemStore so the orchestrator never needs to
// know which one it was handed.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Open creates (or reuses) a SQLite database at path and ensures the
// tasks table exists.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}
	return &Store{db: db, cancels: make(map[string]context.CancelFunc)}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(reqs []model.ResourceRequest, cfg model.AssemblyConfig) *orchestrator.Task {
	reqsJSON, err := json.Marshal(reqs)
	if err != nil {
		reqsJSON = []byte("[]")
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		cfgJSON = []byte("{}")
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := orchestrator.NewTask(uuid.New().String(), reqs, cfg, ctx, cancel)

	_, err = s.db.Exec(
		`INSERT INTO tasks (id, state, requests, config, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID, string(task.State), string(reqsJSON), string(cfgJSON),
		task.CreatedAt.Format(time.RFC3339Nano), task.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		// The row failed to persist. orchestrator.Submit has no error
		// return to propagate this through, and nothing logs it: the
		// returned task still runs in-process, but Get reports it as
		// missing and Update and Cancel return "task not found".
	}

	s.mu.Lock()
	s.cancels[task.ID] = cancel
	s.mu.Unlock()

	return task
}

func (s *Store) Get(id string) (*orchestrator.Task, bool) {
	row := s.db.QueryRow(
		`SELECT id, state, requests, config, document_key, unfound, error, created_at, updated_at FROM tasks WHERE id = ?`,
		id,
	)
	task, err := scanTask(row)
	if err != nil {
		return nil, false
	}
	return task, true
}

func (s *Store) Update(id string, state orchestrator.TaskState, documentKey string, unfound []model.FailedRequest, errMsg string) error {
	res, err := s.existingRow(id)
	if err != nil {
		return err
	}

	if documentKey != "" {
		res.DocumentKey = documentKey
	}
	if unfound != nil {
		res.Unfound = unfound
	}
	if errMsg != "" {
		res.Error = errMsg
	}
	res.State = state
	res.UpdatedAt = time.Now().UTC()

	return s.save(res)
}

func (s *Store) Cancel(id string) error {
	res, err := s.existingRow(id)
	if err != nil {
		return err
	}
	if res.State != orchestrator.StatePending && res.State != orchestrator.StateStarted {
		return fmt.Errorf("task cannot be cancelled (state: %s)", res.State)
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	res.State = orchestrator.StateFailure
	res.Error = "cancelled by caller"
	res.UpdatedAt = time.Now().UTC()
	return s.save(res)
}

func (s *Store) existingRow(id string) (*orchestrator.Task, error) {
	task, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	return task, nil
}

func (s *Store) save(task *orchestrator.Task) error {
	unfoundJSON, err := json.Marshal(task.Unfound)
	if err != nil {
		unfoundJSON = []byte("[]")
	}
	_, err = s.db.Exec(
		`UPDATE tasks SET state = ?, document_key = ?, unfound = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(task.State), task.DocumentKey, string(unfoundJSON), task.Error,
		task.UpdatedAt.Format(time.RFC3339Nano), task.ID,
	)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*orchestrator.Task, error) {
	var (
		id, state, reqsJSON, cfgJSON, documentKey, unfoundJSON, errMsg string
		createdAt, updatedAt                                           string
	)
	if err := row.Scan(&id, &state, &reqsJSON, &cfgJSON, &documentKey, &unfoundJSON, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	task := &orchestrator.Task{
		ID:          id,
		State:       orchestrator.TaskState(state),
		DocumentKey: documentKey,
		Error:       errMsg,
	}
	if err := json.Unmarshal([]byte(reqsJSON), &task.Requests); err != nil {
		return nil, fmt.Errorf("sqlitestore: decode requests: %w", err)
	}
	if err := json.Unmarshal([]byte(cfgJSON), &task.Config); err != nil {
		return nil, fmt.Errorf("sqlitestore: decode config: %w", err)
	}
	if unfoundJSON != "" {
		if err := json.Unmarshal([]byte(unfoundJSON), &task.Unfound); err != nil {
			return nil, fmt.Errorf("sqlitestore: decode unfound: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		task.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		task.UpdatedAt = t
	}
	return task, nil
}
