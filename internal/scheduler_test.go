package wdinternal

import (
	"testing"
	"time"
)

func TestSchedulerOrderedFiring(t *testing.T) {
	s := NewScheduler(nil)
	var order []string

	_, err := s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus {
		order = append(order, "A")
		return Complete
	}}, 60*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus {
		order = append(order, "B")
		return Complete
	}}, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	result := s.Run()
	if result != Success {
		t.Fatalf("got %v, want Success", result)
	}
	if len(order) != 2 || order[0] != "B" || order[1] != "A" {
		t.Fatalf("got order %v, want [B A]", order)
	}
	if s.Size() != 0 {
		t.Fatalf("got size %d, want 0", s.Size())
	}
}

func TestSchedulerRescheduleThenStop(t *testing.T) {
	s := NewScheduler(nil)
	counter := 0

	_, err := s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus {
		counter++
		return Reschedule
	}}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus {
		if counter >= 5 {
			s.Stop()
		}
		return Reschedule
	}}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	result := s.Run()
	if result != Stopped {
		t.Fatalf("got %v, want Stopped", result)
	}
	if counter < 5 {
		t.Fatalf("got counter %d, want >= 5", counter)
	}
}

func TestSchedulerStatsSnapshot(t *testing.T) {
	s := NewScheduler(nil)
	runs := 0

	id, err := s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus {
		runs++
		if runs < 3 {
			return Reschedule
		}
		return Complete
	}}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	if result := s.Run(); result != Success {
		t.Fatalf("got %v, want Success", result)
	}

	stats := s.Stats()
	st, ok := stats[id]
	if !ok {
		t.Fatalf("no stats recorded for task %v", id)
	}
	if st.ExecutedCount != 3 {
		t.Fatalf("got ExecutedCount %d, want 3", st.ExecutedCount)
	}
	if st.RescheduleCount != 2 {
		t.Fatalf("got RescheduleCount %d, want 2", st.RescheduleCount)
	}
	if st.FailedCount != 0 {
		t.Fatalf("got FailedCount %d, want 0", st.FailedCount)
	}
}

func TestSchedulerFailurePropagation(t *testing.T) {
	s := NewScheduler(nil)
	secondRan := false

	_, err := s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus {
		return Failed
	}}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus {
		secondRan = true
		return Complete
	}}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	result := s.Run()
	if result != Failure {
		t.Fatalf("got %v, want Failure", result)
	}
	if secondRan {
		t.Fatalf("second task must not run after the first fails")
	}
	if s.Size() != 1 {
		t.Fatalf("got size %d, want 1 (surviving task remains queued)", s.Size())
	}
}

func TestSchedulerSelfRemove(t *testing.T) {
	s := NewScheduler(nil)
	var id TaskID
	var removeResult bool
	cleaned := false

	id, err := s.AddTask(FuncTaskBody{
		ActionFunc: func() OpStatus {
			removeResult = s.RemoveTask(id)
			return Reschedule
		},
		CleanupFunc: func() { cleaned = true },
	}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus {
		s.Stop()
		return Complete
	}}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	s.Run()

	if removeResult {
		t.Fatalf("RemoveTask on the running task must return false synchronously")
	}
	if !cleaned {
		t.Fatalf("self-removed task must be destroyed once its action returns")
	}
	if s.RemoveTask(id) {
		t.Fatalf("the self-removed task must not still be in the queue")
	}
}

func TestSchedulerRemoveTaskNotFound(t *testing.T) {
	s := NewScheduler(nil)
	if s.RemoveTask(NullTaskID) {
		t.Fatalf("RemoveTask on an unknown id must return false")
	}
}

func TestSchedulerRemoveTaskQueued(t *testing.T) {
	s := NewScheduler(nil)
	id, err := s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus { return Complete }}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !s.RemoveTask(id) {
		t.Fatalf("RemoveTask on a queued (non-running) task should succeed")
	}
	if s.Size() != 0 {
		t.Fatalf("got size %d, want 0", s.Size())
	}
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s := NewScheduler(nil)
	s.Stop()
	s.Stop()
}

func TestSchedulerClearEmptyIsNoop(t *testing.T) {
	s := NewScheduler(nil)
	s.Clear()
	if !s.IsEmpty() {
		t.Fatalf("scheduler should remain empty")
	}
}

func TestSchedulerAddThenRemoveLeavesSizeUnchanged(t *testing.T) {
	s := NewScheduler(nil)
	before := s.Size()
	id, err := s.AddTask(FuncTaskBody{ActionFunc: func() OpStatus { return Complete }}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	s.RemoveTask(id)
	if s.Size() != before {
		t.Fatalf("got size %d, want %d", s.Size(), before)
	}
}
