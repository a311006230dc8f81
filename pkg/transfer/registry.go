package transfer

import (
	"sync"

	"github.com/sshbroker/engine/pkg/brokererr"
)

// Registry maps taskId to Task, the home of C10's per-task bookkeeping.
// Generalizes the teacher's single-Engine-per-sync model (one cancelChan,
// one Status) to many concurrently live tasks addressed by id.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register adds task under its id, replacing (and cancelling) any prior
// task registered under the same id.
func (r *Registry) Register(task *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tasks[task.ID]; ok {
		existing.Cancel()
	}

	r.tasks[task.ID] = task
}

// Lookup returns the task registered under id, or an Internal-kind error
// if none exists.
func (r *Registry) Lookup(id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, brokererr.New(brokererr.KindInternal, "unknown transfer task id", id)
	}

	return task, nil
}

// Cancel fires id's cancellation token; idempotent, and a no-op if id is
// unknown (double-cancel, or cancel after cleanup, is never an error).
func (r *Registry) Cancel(id string) {
	r.mu.RLock()
	task, ok := r.tasks[id]
	r.mu.RUnlock()

	if ok {
		task.Cancel()
	}
}

// Forget removes id from the registry once its terminal cleanup (temp file
// removal, final event publish) has completed.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
}

// Snapshot returns every currently registered task id and status, for
// diagnostics.
func (r *Registry) Snapshot() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Status, len(r.tasks))
	for id, task := range r.tasks {
		out[id] = task.Status()
	}

	return out
}
