// Package memory provides an in-process task dispatcher. Tasks run on
// goroutines; tasks sharing a reservation key are serialized behind a
// per-key lock. It is intended for tests and single-node deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// Handler executes a dispatched task.
type Handler func(ctx context.Context, task cookbook.TaskDescriptor) error

// TaskStates records task state transitions as a task moves through
// its lifecycle.
type TaskStates interface {
	GetTask(ctx context.Context, id uuid.UUID) (*cookbook.Task, error)
	UpdateTask(ctx context.Context, task *cookbook.Task) error
}

// Dispatcher runs tasks on goroutines with per-key serialization.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string]Handler
	locks    map[string]*sync.Mutex
	wg       sync.WaitGroup

	tasks  TaskStates
	logger *slog.Logger
}

// New creates an in-process dispatcher. Task state transitions are
// recorded through tasks.
func New(tasks TaskStates) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		locks:    make(map[string]*sync.Mutex),
		tasks:    tasks,
		logger:   slog.Default(),
	}
}

// Register binds a handler to a task name. Enqueue rejects tasks with
// no registered handler.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Enqueue schedules a task for execution. The task starts on its own
// goroutine once every reservation key it names is free.
func (d *Dispatcher) Enqueue(ctx context.Context, task cookbook.TaskDescriptor) error {
	d.mu.Lock()
	handler, ok := d.handlers[task.Name]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("no handler registered for task %q", task.Name)
	}
	locks := d.keyLocks(task.Keys)
	d.mu.Unlock()

	// The task must outlive the request that enqueued it.
	runCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		for _, l := range locks {
			l.Lock()
		}
		defer func() {
			for i := len(locks) - 1; i >= 0; i-- {
				locks[i].Unlock()
			}
		}()

		d.run(runCtx, handler, task)
	}()

	return nil
}

// keyLocks returns the per-key mutexes for a task's reservation keys in
// a stable order. Consistent ordering prevents deadlock between tasks
// holding overlapping key sets.
func (d *Dispatcher) keyLocks(keys []cookbook.ReservationKey) []*sync.Mutex {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.String())
	}
	sort.Strings(names)

	locks := make([]*sync.Mutex, 0, len(names))
	for _, name := range names {
		l, ok := d.locks[name]
		if !ok {
			l = &sync.Mutex{}
			d.locks[name] = l
		}
		locks = append(locks, l)
	}
	return locks
}

func (d *Dispatcher) run(ctx context.Context, handler Handler, task cookbook.TaskDescriptor) {
	if err := d.transition(ctx, task.TaskID, cookbook.TaskStateRunning, ""); err != nil {
		d.logger.Error("failed to mark task running", "task_id", task.TaskID, "error", err)
		return
	}

	if err := handler(ctx, task); err != nil {
		d.logger.Error("task failed", "task", task.Name, "task_id", task.TaskID, "error", err)
		if uerr := d.transition(ctx, task.TaskID, cookbook.TaskStateFailed, err.Error()); uerr != nil {
			d.logger.Error("failed to mark task failed", "task_id", task.TaskID, "error", uerr)
		}
		return
	}

	if err := d.transition(ctx, task.TaskID, cookbook.TaskStateCompleted, ""); err != nil {
		d.logger.Error("failed to mark task completed", "task_id", task.TaskID, "error", err)
	}
}

func (d *Dispatcher) transition(ctx context.Context, taskID uuid.UUID, state cookbook.TaskState, taskErr string) error {
	task, err := d.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task.State = state
	task.Error = taskErr
	switch state {
	case cookbook.TaskStateRunning:
		task.StartedAt = &now
	case cookbook.TaskStateCompleted, cookbook.TaskStateFailed:
		task.FinishedAt = &now
	}

	return d.tasks.UpdateTask(ctx, task)
}

// Wait blocks until every enqueued task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
