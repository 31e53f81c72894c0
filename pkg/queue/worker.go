package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ravenwood/storyteller/pkg/logger"
	"github.com/ravenwood/storyteller/pkg/types"
)

// TaskSource yields queued tasks. A (nil, nil) return means no task was
// available within the source's poll window.
type TaskSource interface {
	Next(ctx context.Context) (*types.AsyncEventTask, error)
}

// EventProcessor executes one dequeued event. Satisfied by
// storyteller.Storyteller.
type EventProcessor interface {
	ProcessQueuedEvent(ctx context.Context, ev types.Event) error
}

// Worker drains a task source and routes tasks to per-room processors.
type Worker struct {
	source  TaskSource
	log     *slog.Logger
	backoff time.Duration

	mu         sync.RWMutex
	processors map[string]EventProcessor
}

// NewWorker builds a worker over one task source.
func NewWorker(source TaskSource, log *slog.Logger) *Worker {
	if log == nil {
		log = logger.Get()
	}
	return &Worker{
		source:     source,
		log:        log,
		backoff:    time.Second,
		processors: make(map[string]EventProcessor),
	}
}

// RegisterRoom routes tasks for roomID to the given processor.
func (w *Worker) RegisterRoom(roomID string, p EventProcessor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processors[roomID] = p
}

// UnregisterRoom removes the route for roomID. In-flight tasks finish.
func (w *Worker) UnregisterRoom(roomID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.processors, roomID)
}

// Run drains the source until the context is cancelled. Source errors back
// off instead of terminating the loop; a bad task is logged and dropped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		task, err := w.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn("task dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.backoff):
			}
			continue
		}
		if task == nil {
			continue
		}

		w.dispatch(ctx, *task)
	}
}

func (w *Worker) dispatch(ctx context.Context, task types.AsyncEventTask) {
	w.mu.RLock()
	processor, ok := w.processors[task.RoomID]
	w.mu.RUnlock()
	if !ok {
		w.log.Warn("no processor registered for room, dropping task",
			"room_id", task.RoomID, "event_type", task.Event.EventType)
		return
	}

	if err := processor.ProcessQueuedEvent(ctx, task.Event); err != nil {
		w.log.Error("queued event processing failed",
			"room_id", task.RoomID,
			"event_type", task.Event.EventType,
			"error", err)
	}
}
