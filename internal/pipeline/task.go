package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"bili-archiver/generic"
	"bili-archiver/internal/pubsub"
	"bili-archiver/internal/sync_"
)

type TaskID string

func NewTaskID() TaskID {
	return TaskID(generic.Unwrap(uuid.NewRandom()).String())
}

type TaskStatus string

const (
	TaskStatusUndefined           TaskStatus = ""
	TaskStatusInit                TaskStatus = "init"
	TaskStatusInfoFetched         TaskStatus = "info_fetched"
	TaskStatusMediaDownloaded     TaskStatus = "media_downloaded"
	TaskStatusMuxed               TaskStatus = "muxed"
	TaskStatusItemMetadataWritten TaskStatus = "item_metadata_written"
	TaskStatusCastProcessed       TaskStatus = "cast_processed"
	TaskStatusRelocated           TaskStatus = "relocated"
	TaskStatusNotified            TaskStatus = "notified"
	TaskStatusDone                TaskStatus = "done"
	TaskStatusAborted             TaskStatus = "aborted"
)

// IsTerminal returns true once a task can no longer change state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusAborted
}

// TaskState is a point-in-time snapshot of one task's progress through the
// pipeline.
type TaskState struct {
	ID         TaskID
	VideoID    string
	Title      string
	Status     TaskStatus
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Task is one video's journey through the pipeline. Stages run sequentially
// on a single goroutine; state snapshots may be read from any goroutine.
type Task struct {
	state  *sync_.Mutexed[TaskState]
	events pubsub.Sender[Event]
}

func newTask(videoID string, events pubsub.Sender[Event]) *Task {
	return &Task{
		state: sync_.NewMutexed(TaskState{
			ID:        NewTaskID(),
			VideoID:   videoID,
			Status:    TaskStatusInit,
			StartedAt: time.Now().UTC(),
		}),
		events: events,
	}
}

// State returns a snapshot of the current task state.
func (t *Task) State() TaskState {
	return t.state.Get()
}

func (t *Task) String() string {
	state := t.State()
	return fmt.Sprintf("Task{ID:%q, VideoID:%q, Status:%q}", state.ID, state.VideoID, state.Status)
}

// update applies f to the state, emitting a TaskUpdated event if anything
// changed.
func (t *Task) update(f func(*TaskState)) {
	old := t.state.Get()
	updated := old
	f(&updated)
	t.state.Set(updated)
	if updated != old {
		t.events.Send(TaskUpdated{taskEvent{t}, old, updated})
	}
}

func (t *Task) setStatus(status TaskStatus) {
	t.update(func(s *TaskState) {
		s.Status = status
		if status.IsTerminal() {
			s.FinishedAt = time.Now().UTC()
		}
	})
}

func (t *Task) abort(err error) {
	t.update(func(s *TaskState) {
		s.Status = TaskStatusAborted
		s.Error = err.Error()
		s.FinishedAt = time.Now().UTC()
	})
}
