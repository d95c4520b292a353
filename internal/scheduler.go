// Scheduler: a single-threaded cooperative run loop over a priority queue
// of tasks.
//
// Dispatch and execution both run on the single goroutine that calls Run:
// at most one task's action is ever in progress, and tasks run to
// completion without preemption.

package wdinternal

import (
	"sync"
	"sync/atomic"
	"time"
)

// Result is Run's return code.
type Result int

const (
	Success Result = iota
	Failure
	Stopped
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// SchedulerConfig holds the scheduler's tunables. The scheduling model is
// single-second granularity; PollInterval exists only to round sub-second
// residual waits.
type SchedulerConfig struct {
	// PollInterval is the unit wait durations are rounded to. Defaults to
	// one second.
	PollInterval time.Duration `yaml:"poll_interval"`
}

func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval: time.Second,
	}
}

var schedulerLog = NewCompLogger("scheduler")

// Scheduler executes a set of periodic and one-shot tasks on a single
// cooperative goroutine.
type Scheduler struct {
	queue *PQueue

	mu                     sync.Mutex
	current                *Task
	removeCurrentAfterExec bool

	running atomic.Bool

	pollInterval time.Duration

	statsMu sync.Mutex
	stats   map[TaskID]*TaskStats
}

// TaskStats tracks per-task scheduling counters. A snapshot is available
// via Stats and a per-task summary is logged when Run exits.
type TaskStats struct {
	ExecutedCount   uint64
	RescheduleCount uint64
	FailedCount     uint64
}

// NewScheduler returns an empty, not-yet-running scheduler.
func NewScheduler(cfg *SchedulerConfig) *Scheduler {
	if cfg == nil {
		cfg = DefaultSchedulerConfig()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Scheduler{
		queue:        NewPQueue(),
		pollInterval: pollInterval,
		stats:        make(map[TaskID]*TaskStats),
	}
}

// AddTask constructs a task from body and interval, enqueues it and returns
// its ID. Returns the null ID and an error if task construction fails.
func (s *Scheduler) AddTask(body TaskBody, interval time.Duration) (TaskID, error) {
	task, err := NewTask(body, interval)
	if err != nil {
		return NullTaskID, err
	}
	s.mu.Lock()
	s.queue.Enqueue(task)
	s.mu.Unlock()

	s.statsMu.Lock()
	s.stats[task.ID()] = &TaskStats{}
	s.statsMu.Unlock()

	schedulerLog.Infof("task %v: added, interval=%s", task.ID(), interval)
	return task.ID(), nil
}

// RemoveTask removes the task with the given id. Removing the
// currently-running task never succeeds synchronously: it returns false,
// but the task's destruction is guaranteed once its action returns.
func (s *Scheduler) RemoveTask(id TaskID) bool {
	s.mu.Lock()
	if s.current != nil && s.current.IsSame(id) {
		s.removeCurrentAfterExec = true
		s.mu.Unlock()
		return false
	}
	task := s.queue.EraseIf(func(t *Task) bool { return t.IsSame(id) })
	s.mu.Unlock()

	if task == nil {
		return false
	}
	task.Destroy()
	s.statsMu.Lock()
	delete(s.stats, id)
	s.statsMu.Unlock()
	return true
}

// Stop requests that Run exit at the top of its next iteration. Safe to
// call from any goroutine, including a signal handler, and idempotent.
func (s *Scheduler) Stop() {
	s.running.Store(false)
}

// Size returns the number of tasks currently queued (the running task, if
// any, is not counted; it is logically removed from the queue for the
// duration of its action).
func (s *Scheduler) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Size()
}

// IsEmpty reports whether the queue holds no tasks.
func (s *Scheduler) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.IsEmpty()
}

// Clear destroys and removes every queued task. Not safe to call while Run
// is active.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Clear()
	s.statsMu.Lock()
	s.stats = make(map[TaskID]*TaskStats)
	s.statsMu.Unlock()
}

// Destroy clears all tasks then releases the scheduler's resources. Safe
// only when Run is not active.
func (s *Scheduler) Destroy() {
	s.Clear()
}

// Run executes tasks until the queue drains (Success), a task fails
// (Failure), or Stop is observed after a successful iteration (Stopped).
// Each iteration dequeues the soonest task, sleeps until its fire time,
// executes it inline, then dispatches on the outcome. At most one task's
// action is ever in progress.
func (s *Scheduler) Run() Result {
	s.running.Store(true)
	schedulerLog.Info("scheduler starting")
	defer s.logStats()

	for s.running.Load() {
		s.mu.Lock()
		if s.queue.IsEmpty() {
			s.mu.Unlock()
			break
		}
		task := s.queue.Dequeue()
		s.current = task
		s.mu.Unlock()

		wait := task.ExecutionTime().Sub(time.Now())
		if wait < 0 {
			wait = 0
		} else {
			wait = wait.Round(s.pollInterval)
			if wait < 0 {
				wait = 0
			}
		}
		time.Sleep(wait)

		status := task.Execute()

		s.statsMu.Lock()
		if st := s.stats[task.ID()]; st != nil {
			st.ExecutedCount++
		}
		s.statsMu.Unlock()

		s.mu.Lock()
		removeAfterExec := s.removeCurrentAfterExec
		s.removeCurrentAfterExec = false
		s.mu.Unlock()

		switch {
		case status == Failed:
			schedulerLog.Errorf("task %v: failed", task.ID())
			s.failTask(task)
			return Failure

		case status == Complete || removeAfterExec:
			s.completeTask(task)

		case status == Reschedule:
			task.UpdateExecutionTime()
			s.mu.Lock()
			s.queue.Enqueue(task)
			s.current = nil
			s.mu.Unlock()
			s.statsMu.Lock()
			if st := s.stats[task.ID()]; st != nil {
				st.RescheduleCount++
			}
			s.statsMu.Unlock()

		default:
			schedulerLog.Errorf("task %v: unknown status %v", task.ID(), status)
			s.failTask(task)
			return Failure
		}

		if !s.running.Load() {
			schedulerLog.Info("scheduler stopped")
			return Stopped
		}
	}

	schedulerLog.Info("scheduler drained")
	return Success
}

// Stats returns a snapshot of the per-task counters accumulated so far.
func (s *Scheduler) Stats() map[TaskID]TaskStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	snapshot := make(map[TaskID]TaskStats, len(s.stats))
	for id, st := range s.stats {
		snapshot[id] = *st
	}
	return snapshot
}

// logStats emits one summary line per task when Run exits.
func (s *Scheduler) logStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	for id, st := range s.stats {
		schedulerLog.Infof("task seq=%d: executed=%d, rescheduled=%d, failed=%d",
			id.Seq, st.ExecutedCount, st.RescheduleCount, st.FailedCount)
	}
}

func (s *Scheduler) failTask(task *Task) {
	s.statsMu.Lock()
	if st := s.stats[task.ID()]; st != nil {
		st.FailedCount++
	}
	s.statsMu.Unlock()
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	task.Destroy()
	s.running.Store(false)
}

func (s *Scheduler) completeTask(task *Task) {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	task.Destroy()
}
