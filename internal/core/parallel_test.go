package core

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestParallelForStopVisitsEveryIndexOnce(t *testing.T) {
	const n = 257
	visits := make([]int32, n)

	stopped := parallelForStop(n, func(i int) bool {
		atomic.AddInt32(&visits[i], 1)
		return false
	})
	if stopped {
		t.Fatal("expected no early stop")
	}
	for i, v := range visits {
		if v != 1 {
			t.Errorf("index %d visited %d times", i, v)
		}
	}
}

func TestParallelForStopStopsEarly(t *testing.T) {
	var calls atomic.Int32

	stopped := parallelForStop(1000, func(i int) bool {
		calls.Add(1)
		return true
	})
	if !stopped {
		t.Fatal("expected the early stop to be reported")
	}
	// Every worker may be mid-call when the stop flag is raised, but no
	// worker starts another iteration afterwards.
	if c := int(calls.Load()); c > runtime.GOMAXPROCS(0) {
		t.Errorf("expected at most one call per worker, got %d", c)
	}
}

func TestParallelForStopEmptyRange(t *testing.T) {
	var calls atomic.Int32

	if parallelForStop(0, func(i int) bool {
		calls.Add(1)
		return false
	}) {
		t.Error("empty range must not report a stop")
	}
	if calls.Load() != 0 {
		t.Error("fn must not run for an empty range")
	}
}
