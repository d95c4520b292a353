package wdinternal

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestTask(t *testing.T, interval time.Duration, exec func() OpStatus) *Task {
	t.Helper()
	task, err := NewTask(FuncTaskBody{ActionFunc: exec}, interval)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	return task
}

func TestTaskExecute(t *testing.T) {
	calls := 0
	task := newTestTask(t, time.Second, func() OpStatus {
		calls++
		return Complete
	})
	if status := task.Execute(); status != Complete {
		t.Fatalf("got status %v, want Complete", status)
	}
	if calls != 1 {
		t.Fatalf("got %d calls, want 1", calls)
	}
}

func TestTaskDestroyInvokesCleanupOnce(t *testing.T) {
	cleanups := 0
	task, err := NewTask(FuncTaskBody{
		ActionFunc:  func() OpStatus { return Complete },
		CleanupFunc: func() { cleanups++ },
	}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	task.Destroy()
	if cleanups != 1 {
		t.Fatalf("got %d cleanup calls, want 1", cleanups)
	}
}

func TestTaskDestroyNilCleanup(t *testing.T) {
	task := newTestTask(t, time.Second, func() OpStatus { return Complete })
	task.Destroy() // must not panic when CleanupFunc is nil
}

func TestTaskIsSame(t *testing.T) {
	task := newTestTask(t, time.Second, func() OpStatus { return Complete })
	if !task.IsSame(task.ID()) {
		t.Fatalf("task should be same as its own id")
	}
	other := newTestTask(t, time.Second, func() OpStatus { return Complete })
	if task.IsSame(other.ID()) {
		t.Fatalf("distinct tasks should not share an id")
	}
}

func TestTaskCompareOrdersBySoonerFirst(t *testing.T) {
	soon := newTestTask(t, time.Millisecond, func() OpStatus { return Complete })
	later := newTestTask(t, time.Hour, func() OpStatus { return Complete })

	if soon.Compare(later) <= 0 {
		t.Fatalf("task firing sooner must compare higher priority than one firing later")
	}
	if later.Compare(soon) >= 0 {
		t.Fatalf("task firing later must compare lower priority than one firing sooner")
	}
	if soon.Compare(soon) != 0 {
		t.Fatalf("a task must compare equal to itself")
	}
}

func TestTaskUpdateExecutionTimeAdvances(t *testing.T) {
	task := newTestTask(t, 10*time.Millisecond, func() OpStatus { return Reschedule })
	before := task.ExecutionTime()
	time.Sleep(5 * time.Millisecond)
	task.UpdateExecutionTime()
	after := task.ExecutionTime()
	if !after.After(before) {
		t.Fatalf("UpdateExecutionTime did not advance: before=%v after=%v", before, after)
	}
}

func TestTaskIDsFromSameProcessShareHostAndPID(t *testing.T) {
	first := newTestTask(t, time.Second, func() OpStatus { return Complete })
	second := newTestTask(t, time.Second, func() OpStatus { return Complete })

	// TaskID has an Equal method, which cmp.Diff uses in preference to any
	// field-level option, so the fields expected to differ are zeroed here.
	a, b := first.ID(), second.ID()
	a.Seq, a.Created = 0, time.Time{}
	b.Seq, b.Created = 0, time.Time{}
	diff := cmp.Diff(a, b)
	if diff != "" {
		t.Fatalf("two TaskIDs minted in the same process must agree on PID/HostIface (-first +second):\n%s", diff)
	}
	if first.ID().Seq == second.ID().Seq {
		t.Fatalf("distinct tasks must not share a sequence number")
	}
}

func TestOpStatusString(t *testing.T) {
	cases := map[OpStatus]string{
		Complete:     "Complete",
		Reschedule:   "Reschedule",
		Failed:       "Failed",
		OpStatus(99): "Unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("OpStatus(%d).String() = %q, want %q", int(status), got, want)
		}
	}
}
