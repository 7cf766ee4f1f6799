// Package nats provides a task dispatcher backed by NATS JetStream.
// Tasks are published as JSON messages; a worker subscribes with a
// durable consumer limited to one in-flight message, so tasks drain in
// order and two tasks sharing a reservation key never run concurrently.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

const defaultSubjectPrefix = "cookbook.tasks"

// Handler executes a dispatched task.
type Handler func(ctx context.Context, task cookbook.TaskDescriptor) error

// TaskStates records task state transitions.
type TaskStates interface {
	GetTask(ctx context.Context, id uuid.UUID) (*cookbook.Task, error)
	UpdateTask(ctx context.Context, task *cookbook.Task) error
}

// Config options for the JetStream dispatcher.
type Config struct {
	URL           string // NATS server URL
	StreamName    string // JetStream stream name (default: COOKBOOK_TASKS)
	SubjectPrefix string // Subject prefix for task messages (default: cookbook.tasks)
	Durable       string // Durable consumer name (default: cookbook-worker)
}

// Dispatcher publishes tasks to JetStream and runs a durable worker
// that consumes them one at a time.
type Dispatcher struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	subjectPrefix string
	streamName    string
	durable       string

	mu       sync.Mutex
	handlers map[string]Handler
	subs     []*nats.Subscription

	tasks  TaskStates
	logger *slog.Logger
}

// New connects to NATS and ensures the task stream exists.
func New(config Config, tasks TaskStates, opts ...nats.Option) (*Dispatcher, error) {
	if config.URL == "" {
		config.URL = nats.DefaultURL
	}
	if config.StreamName == "" {
		config.StreamName = "COOKBOOK_TASKS"
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = defaultSubjectPrefix
	}
	if config.Durable == "" {
		config.Durable = "cookbook-worker"
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      config.StreamName,
		Subjects:  []string{config.SubjectPrefix + ".>"},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("failed to create task stream: %w", err)
	}

	return &Dispatcher{
		conn:          nc,
		js:            js,
		subjectPrefix: config.SubjectPrefix,
		streamName:    config.StreamName,
		durable:       config.Durable,
		handlers:      make(map[string]Handler),
		tasks:         tasks,
		logger:        slog.Default(),
	}, nil
}

// Register binds a handler to a task name and starts a durable consumer
// for it. MaxAckPending is held at one so tasks for the same name are
// delivered strictly in enqueue order, one at a time; reservation key
// exclusivity follows from that ordering.
func (d *Dispatcher) Register(ctx context.Context, name string, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[name]; exists {
		return fmt.Errorf("handler already registered for task %q", name)
	}
	d.handlers[name] = h

	subject := d.subjectPrefix + "." + name
	sub, err := d.js.Subscribe(subject, func(msg *nats.Msg) {
		d.handle(ctx, h, msg)
	},
		nats.Durable(d.durable+"-"+name),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxAckPending(1),
	)
	if err != nil {
		delete(d.handlers, name)
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	d.subs = append(d.subs, sub)
	return nil
}

// Enqueue publishes a task to JetStream. The task identifier doubles as
// the message deduplication id.
func (d *Dispatcher) Enqueue(ctx context.Context, task cookbook.TaskDescriptor) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	subject := d.subjectPrefix + "." + task.Name
	_, err = d.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(task.TaskID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, h Handler, msg *nats.Msg) {
	var task cookbook.TaskDescriptor
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		d.logger.Error("dropping undecodable task message", "subject", msg.Subject, "error", err)
		_ = msg.Term()
		return
	}

	if err := d.transition(ctx, task.TaskID, cookbook.TaskStateRunning, ""); err != nil {
		d.logger.Error("failed to mark task running", "task_id", task.TaskID, "error", err)
		_ = msg.Nak()
		return
	}

	if err := h(ctx, task); err != nil {
		d.logger.Error("task failed", "task", task.Name, "task_id", task.TaskID, "error", err)
		if uerr := d.transition(ctx, task.TaskID, cookbook.TaskStateFailed, err.Error()); uerr != nil {
			d.logger.Error("failed to mark task failed", "task_id", task.TaskID, "error", uerr)
		}
		_ = msg.Ack()
		return
	}

	if err := d.transition(ctx, task.TaskID, cookbook.TaskStateCompleted, ""); err != nil {
		d.logger.Error("failed to mark task completed", "task_id", task.TaskID, "error", err)
	}
	_ = msg.Ack()
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

// Close drains the consumers and shuts down the connection.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, sub := range d.subs {
		if err := sub.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	d.subs = nil

	if err := d.conn.Drain(); err != nil {
		d.conn.Close()
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ io.Closer = (*Dispatcher)(nil)
var _ cookbook.Dispatcher = (*Dispatcher)(nil)
