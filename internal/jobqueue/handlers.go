package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/wsuscatalog/wsuscatalog/internal/downstream"
	"github.com/wsuscatalog/wsuscatalog/internal/progress"
	"github.com/wsuscatalog/wsuscatalog/internal/sources"
	"github.com/wsuscatalog/wsuscatalog/internal/store"
	"github.com/wsuscatalog/wsuscatalog/internal/synchistory"
)

// UpstreamSyncPayload is the body of a sync:upstream task.
type UpstreamSyncPayload struct {
	Trigger string `json:"trigger"` // "manual" or "scheduled"
}

// ReindexStorePayload is the body of a store:reindex task. It carries no
// fields today; it exists so the handler has a typed payload to unmarshal
// like every other task in this queue.
type ReindexStorePayload struct{}

// UpstreamSyncHandler runs CategoriesSource and UpdatesSource against the
// live package store, recording each attempt in synchistory and refreshing
// the downstream server's served state once new packages have landed.
type UpstreamSyncHandler struct {
	Categories *sources.CategoriesSource
	Updates    *sources.UpdatesSource
	Store      *store.Store
	Downstream *downstream.Server
	History    *synchistory.Repository
	Hub        *progress.Hub
}

// ProcessTask implements asynq.Handler.
func (h *UpstreamSyncHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload UpstreamSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("jobqueue: unmarshal sync payload: %w", err)
	}

	run, err := h.History.Start(payload.Trigger)
	if err != nil {
		return fmt.Errorf("jobqueue: record sync start: %w", err)
	}

	before := h.Store.Count()
	listener := progressListener(h.Hub, run.ID, "sync")

	if err := h.Categories.Sync(ctx, h.Store, listener); err != nil {
		_ = h.History.Fail(run.ID, err)
		return fmt.Errorf("jobqueue: sync categories: %w", err)
	}
	if err := h.Updates.Sync(ctx, h.Store, listener); err != nil {
		_ = h.History.Fail(run.ID, err)
		return fmt.Errorf("jobqueue: sync updates: %w", err)
	}
	if err := h.Store.Flush(); err != nil {
		_ = h.History.Fail(run.ID, err)
		return fmt.Errorf("jobqueue: flush store: %w", err)
	}

	after := h.Store.Count()
	if h.Downstream != nil {
		if err := h.Downstream.SetPackageStore(h.Store); err != nil {
			_ = h.History.Fail(run.ID, err)
			return fmt.Errorf("jobqueue: refresh served state: %w", err)
		}
	}

	if err := h.History.Complete(run.ID, after-before, after); err != nil {
		return fmt.Errorf("jobqueue: record sync completion: %w", err)
	}
	return nil
}

// ReindexStoreHandler rebuilds the store's secondary-index container via
// Store.ReIndex, for recovery when IsReindexingRequired is true.
type ReindexStoreHandler struct {
	Store      *store.Store
	Downstream *downstream.Server
	History    *synchistory.Repository
	Hub        *progress.Hub
}

// ProcessTask implements asynq.Handler.
func (h *ReindexStoreHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	run, err := h.History.Start("reindex")
	if err != nil {
		return fmt.Errorf("jobqueue: record reindex start: %w", err)
	}

	listener := progressListener(h.Hub, run.ID, "reindex")
	if err := h.Store.ReIndex(func(done int) {
		listener(progress.Event{Current: done, Stage: "reindex"})
	}); err != nil {
		_ = h.History.Fail(run.ID, err)
		return fmt.Errorf("jobqueue: reindex store: %w", err)
	}

	total := h.Store.Count()
	if h.Downstream != nil {
		if err := h.Downstream.SetPackageStore(h.Store); err != nil {
			_ = h.History.Fail(run.ID, err)
			return fmt.Errorf("jobqueue: refresh served state: %w", err)
		}
	}

	if err := h.History.Complete(run.ID, 0, total); err != nil {
		return fmt.Errorf("jobqueue: record reindex completion: %w", err)
	}
	return nil
}

func progressListener(hub *progress.Hub, runID uuid.UUID, stage string) progress.Func {
	if hub == nil {
		return nil
	}
	listener := hub.Listener(runID.String())
	return func(ev progress.Event) {
		if ev.Stage == "" {
			ev.Stage = stage
		}
		listener(ev)
	}
}

// RegisterHandlers wires both task types onto q.
func RegisterHandlers(q *Queue, sync *UpstreamSyncHandler, reindex *ReindexStoreHandler) {
	q.RegisterHandler(TaskUpstreamSync, sync)
	q.RegisterHandler(TaskReindexStore, reindex)
}

// EnqueueUpstreamSync enqueues a sync:upstream task under one fixed unique
// ID whatever the trigger, so a scheduled tick never piles up behind a
// still-running manual sync.
func (q *Queue) EnqueueUpstreamSync(trigger string) (string, error) {
	return q.EnqueueUnique(TaskUpstreamSync, UpstreamSyncPayload{Trigger: trigger}, "sync:upstream:singleton")
}

// EnqueueReindexStore enqueues a store:reindex task, deduped the same way.
func (q *Queue) EnqueueReindexStore() (string, error) {
	return q.EnqueueUnique(TaskReindexStore, ReindexStorePayload{}, "store:reindex:singleton")
}
