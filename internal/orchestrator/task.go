package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptoria/weaver/internal/model"
)

// TaskState is one of the four states spec.md §6's GET /task_status/{id}
// contract names.
type TaskState string

const (
	StatePending TaskState = "PENDING"
	StateStarted TaskState = "STARTED"
	StateSuccess TaskState = "SUCCESS"
	StateFailure TaskState = "FAILURE"
)

// Task is one in-flight or finished document request — the orchestrator's
// analogue of the teacher's Job, carrying a ResourceRequest list and
// AssemblyConfig instead of a single-format ConvertRequest.
type Task struct {
	ID          string
	State       TaskState
	Requests    []model.ResourceRequest
	Config      model.AssemblyConfig
	DocumentKey string
	Unfound     []model.FailedRequest
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTask builds a Task in StatePending carrying ctx/cancel — exported so
// a Store implementation outside this package (e.g. a durable
// sqlite-backed Store) can hand runTask a Task it can still cancel,
// without this package needing to know how that Store persists it.
func NewTask(id string, reqs []model.ResourceRequest, cfg model.AssemblyConfig, ctx context.Context, cancel context.CancelFunc) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        id,
		State:     StatePending,
		Requests:  reqs,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Store manages Task lifecycle. MemStore (below) is the in-process
// implementation; a sqlite-backed implementation satisfying the same
// interface gives task state a durable projection per spec.md §5's "task
// status must outlive a single goroutine" requirement.
type Store interface {
	Create(reqs []model.ResourceRequest, cfg model.AssemblyConfig) *Task
	Get(id string) (*Task, bool)
	Update(id string, state TaskState, documentKey string, unfound []model.FailedRequest, errMsg string) error
	Cancel(id string) error
}

// MemStore is a plain in-memory Store, modeled directly on the teacher's
// JobStore: a mutex-guarded map, uuid ids, and a cancel func stashed
// alongside each entry for Cancel to invoke.
type MemStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemStore creates an empty in-memory task store.
func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]*Task)}
}

func (s *MemStore) Create(reqs []model.ResourceRequest, cfg model.AssemblyConfig) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New().String(),
		State:     StatePending,
		Requests:  reqs,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.tasks[task.ID] = task
	return task
}

func (s *MemStore) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	return task, ok
}

func (s *MemStore) Update(id string, state TaskState, documentKey string, unfound []model.FailedRequest, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	task.State = state
	task.UpdatedAt = time.Now().UTC()
	if documentKey != "" {
		task.DocumentKey = documentKey
	}
	if unfound != nil {
		task.Unfound = unfound
	}
	if errMsg != "" {
		task.Error = errMsg
	}
	return nil
}

func (s *MemStore) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	if task.State != StatePending && task.State != StateStarted {
		return fmt.Errorf("task cannot be cancelled (state: %s)", task.State)
	}
	task.cancel()
	task.State = StateFailure
	task.Error = "cancelled by caller"
	task.UpdatedAt = time.Now().UTC()
	return nil
}
