// Package jobqueue wraps asynq/redis: a thin Queue type around a
// client/server/mux/inspector quartet, unique-task dedup via a
// deterministic TaskID, and a RegisterHandler/Start/Stop lifecycle the
// daemon's main wires up.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"
)

// Task type names this daemon enqueues.
const (
	TaskUpstreamSync = "sync:upstream"
	TaskReindexStore = "store:reindex"
)

// Queue wraps the asynq client/server pair used to enqueue and run catalog
// maintenance tasks.
type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

// NewQueue connects to redisAddr with a single-queue, low-concurrency
// worker pool: this daemon's jobs are long-running batch operations, not a
// high-throughput task mill.
func NewQueue(redisAddr string) *Queue {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	inspector := asynq.NewInspector(redisOpt)
	return &Queue{client: client, server: server, mux: mux, inspector: inspector}
}

// isTaskConflict reports whether err indicates a task ID already exists,
// matching sentinel errors first and falling back to the error text asynq
// uses for the same condition in older releases.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// EnqueueUnique enqueues a task under a deterministic id so a second
// request for the same operation (e.g. a second "run sync now" click)
// while one is already queued or running is a silent no-op rather than a
// pile-up of redundant syncs.
func (q *Queue) EnqueueUnique(taskType string, payload interface{}, uniqueID string, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jobqueue: marshal payload: %w", err)
	}
	opts = append(opts, asynq.TaskID(uniqueID))
	task := asynq.NewTask(taskType, data, opts...)
	info, err := q.client.Enqueue(task)
	if err == nil {
		return info.ID, nil
	}
	if !isTaskConflict(err) {
		return "", fmt.Errorf("jobqueue: enqueue: %w", err)
	}

	if delErr := q.inspector.DeleteTask("default", uniqueID); delErr == nil {
		log.Printf("jobqueue: cleared completed/archived task %s", uniqueID)
		if info, err = q.client.Enqueue(task); err == nil {
			return info.ID, nil
		}
	}

	if isTaskConflict(err) {
		log.Printf("jobqueue: task %s (%s) already queued or running, skipping", taskType, uniqueID)
		return uniqueID, nil
	}
	return "", fmt.Errorf("jobqueue: enqueue: %w", err)
}

// RegisterHandler wires a task type to the handler that processes it.
func (q *Queue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.mux.Handle(taskType, handler)
}

// Start runs the worker loop; it blocks until Stop is called or the server
// hits a fatal error.
func (q *Queue) Start(ctx context.Context) error {
	log.Println("jobqueue: worker starting")
	return q.server.Run(q.mux)
}

// Stop shuts down the worker, client and inspector in that order.
func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}
