package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_RunsJob(t *testing.T) {
	r := New(nil, context.Background())

	var runs atomic.Int32
	if _, err := r.Add("* * * * * *", func(context.Context) { runs.Add(1) }); err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.Start()
	defer r.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("expected job to run")
	}
}

func TestRunner_InvalidSpec(t *testing.T) {
	r := New(nil, context.Background())
	if _, err := r.Add("not a spec", func(context.Context) {}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestRunner_SkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(nil, ctx)

	var runs atomic.Int32
	if _, err := r.Add("* * * * * *", func(context.Context) { runs.Add(1) }); err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.Start()
	time.Sleep(1500 * time.Millisecond)
	r.Stop()

	if runs.Load() != 0 {
		t.Errorf("expected no runs after cancel, got %d", runs.Load())
	}
}
