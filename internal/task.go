// Task: one scheduled unit of work.
//
// TaskBody carries both the action and its state: a closure captures
// whatever the action needs, so there are no opaque parameter pointers to
// thread through the scheduler.

package wdinternal

import (
	"os"
	"time"
)

// OpStatus is the outcome of a TaskBody's Execute call.
type OpStatus int

const (
	Complete OpStatus = iota
	Reschedule
	Failed
)

func (s OpStatus) String() string {
	switch s {
	case Complete:
		return "Complete"
	case Reschedule:
		return "Reschedule"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// TaskBody is the action + cleanup pair a Task wraps. Execute runs the unit
// of work and reports whether it should be retired, rescheduled or treated
// as a failure; Cleanup releases whatever Execute's closures captured. Every
// Task accepted by a Scheduler has its Cleanup invoked exactly once.
type TaskBody interface {
	Execute() OpStatus
	Cleanup()
}

// FuncTaskBody adapts two closures into a TaskBody. CleanupFunc may be nil,
// in which case Cleanup is a no-op.
type FuncTaskBody struct {
	ActionFunc  func() OpStatus
	CleanupFunc func()
}

func (f FuncTaskBody) Execute() OpStatus {
	return f.ActionFunc()
}

func (f FuncTaskBody) Cleanup() {
	if f.CleanupFunc != nil {
		f.CleanupFunc()
	}
}

// Task wraps one scheduled unit of work: identity, body, interval and next
// fire time. Ownership: a Task is owned either by a
// Scheduler's priority queue or by its `current` slot, never both at once.
type Task struct {
	id            TaskID
	body          TaskBody
	interval      time.Duration
	executionTime time.Time
	// seq disambiguates FIFO order among tasks with an identical
	// executionTime in the priority queue (pqueue.go).
	seq uint64
}

// NewTask allocates a task, assigns a fresh TaskID and computes
// executionTime = now + interval. Returns an error if id creation fails.
func NewTask(body TaskBody, interval time.Duration) (*Task, error) {
	id, err := NewTaskID(os.Getpid())
	if err != nil {
		return nil, err
	}
	return &Task{
		id:            id,
		body:          body,
		interval:      interval,
		executionTime: time.Now().Add(interval),
	}, nil
}

// Destroy invokes the task's cleanup exactly once. Safe to call only once
// per task.
func (t *Task) Destroy() {
	t.body.Cleanup()
}

// Execute runs the task's action and returns its status unchanged.
func (t *Task) Execute() OpStatus {
	return t.body.Execute()
}

// Compare orders tasks by "how imminent": a task firing later compares as
// lower priority than one firing sooner, so a max-heap on priority is a
// min-heap on absolute fire time.
func (t *Task) Compare(other *Task) int {
	switch {
	case t.executionTime.After(other.executionTime):
		return -1
	case t.executionTime.Before(other.executionTime):
		return 1
	default:
		return 0
	}
}

// IsSame reports whether the task's id equals id.
func (t *Task) IsSame(id TaskID) bool {
	return t.id.Equal(id)
}

// ID returns the task's identity.
func (t *Task) ID() TaskID {
	return t.id
}

// ExecutionTime returns the task's scheduled next-fire time.
func (t *Task) ExecutionTime() time.Time {
	return t.executionTime
}

// UpdateExecutionTime sets the task's next-fire time to now + interval.
func (t *Task) UpdateExecutionTime() {
	t.executionTime = time.Now().Add(t.interval)
}
