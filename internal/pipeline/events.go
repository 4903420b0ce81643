package pipeline

type Event interface {
	// The Task this event relates to.
	Task() *Task
}

type taskEvent struct {
	task *Task
}

func (e taskEvent) Task() *Task {
	return e.task
}

type TaskAdded struct {
	taskEvent
}
type TaskUpdated struct {
	taskEvent
	OldState TaskState
	NewState TaskState
}
type TaskCompleted struct {
	taskEvent
	LibraryPath string
}
type TaskFailed struct {
	taskEvent
	Err error
}
