package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
	"github.com/tendant/simple-cookbook/pkg/cookbook/dispatch/memory"
	memoryrepo "github.com/tendant/simple-cookbook/pkg/cookbook/repo/memory"
)

func newTask(t *testing.T, store cookbook.Store, name string) *cookbook.Task {
	t.Helper()
	task := &cookbook.Task{
		ID:        uuid.New(),
		Name:      name,
		State:     cookbook.TaskStateWaiting,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateTask(context.Background(), task))
	return task
}

func TestDispatcherRunsTask(t *testing.T) {
	ctx := context.Background()
	store := memoryrepo.New()
	dispatcher := memory.New(store)

	done := make(chan cookbook.TaskDescriptor, 1)
	dispatcher.Register("test.echo", func(ctx context.Context, task cookbook.TaskDescriptor) error {
		done <- task
		return nil
	})

	task := newTask(t, store, "test.echo")
	err := dispatcher.Enqueue(ctx, cookbook.TaskDescriptor{
		TaskID: task.ID,
		Name:   "test.echo",
		Args:   map[string]string{"key": "value"},
	})
	require.NoError(t, err)
	dispatcher.Wait()

	got := <-done
	assert.Equal(t, task.ID, got.TaskID)
	assert.Equal(t, "value", got.Args["key"])

	updated, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, cookbook.TaskStateCompleted, updated.State)
	assert.NotNil(t, updated.StartedAt)
	assert.NotNil(t, updated.FinishedAt)
	assert.Empty(t, updated.Error)
}

func TestDispatcherRecordsFailure(t *testing.T) {
	ctx := context.Background()
	store := memoryrepo.New()
	dispatcher := memory.New(store)

	dispatcher.Register("test.fail", func(ctx context.Context, task cookbook.TaskDescriptor) error {
		return errors.New("boom")
	})

	task := newTask(t, store, "test.fail")
	err := dispatcher.Enqueue(ctx, cookbook.TaskDescriptor{TaskID: task.ID, Name: "test.fail"})
	require.NoError(t, err)
	dispatcher.Wait()

	updated, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, cookbook.TaskStateFailed, updated.State)
	assert.Equal(t, "boom", updated.Error)
}

func TestDispatcherRejectsUnknownTask(t *testing.T) {
	store := memoryrepo.New()
	dispatcher := memory.New(store)

	err := dispatcher.Enqueue(context.Background(), cookbook.TaskDescriptor{
		TaskID: uuid.New(),
		Name:   "test.unregistered",
	})
	assert.Error(t, err)
}

func TestDispatcherSerializesSharedKeys(t *testing.T) {
	ctx := context.Background()
	store := memoryrepo.New()
	dispatcher := memory.New(store)

	var mu sync.Mutex
	var running int
	var maxRunning int

	dispatcher.Register("test.slow", func(ctx context.Context, task cookbook.TaskDescriptor) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	})

	shared := cookbook.ReservationKey{Kind: "repository", ID: uuid.New()}
	for i := 0; i < 5; i++ {
		task := newTask(t, store, "test.slow")
		err := dispatcher.Enqueue(ctx, cookbook.TaskDescriptor{
			TaskID: task.ID,
			Name:   "test.slow",
			Keys:   []cookbook.ReservationKey{shared, {Kind: "publisher", ID: uuid.New()}},
		})
		require.NoError(t, err)
	}
	dispatcher.Wait()

	assert.Equal(t, 1, maxRunning, "tasks sharing a reservation key must not overlap")
}

func TestDispatcherAllowsDisjointKeys(t *testing.T) {
	ctx := context.Background()
	store := memoryrepo.New()
	dispatcher := memory.New(store)

	release := make(chan struct{})
	started := make(chan struct{}, 2)

	dispatcher.Register("test.block", func(ctx context.Context, task cookbook.TaskDescriptor) error {
		started <- struct{}{}
		<-release
		return nil
	})

	for i := 0; i < 2; i++ {
		task := newTask(t, store, "test.block")
		err := dispatcher.Enqueue(ctx, cookbook.TaskDescriptor{
			TaskID: task.ID,
			Name:   "test.block",
			Keys:   []cookbook.ReservationKey{{Kind: "repository", ID: uuid.New()}},
		})
		require.NoError(t, err)
	}

	// Both tasks should start; neither holds a key the other needs.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("tasks with disjoint keys should run concurrently")
		}
	}
	close(release)
	dispatcher.Wait()
}
