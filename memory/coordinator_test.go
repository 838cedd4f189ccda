package memory_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/becomeliminal/recall/memory"
)

func TestCoordinator_DrainWaitsForAllJobs(t *testing.T) {
	var completed int32
	coord := memory.NewCoordinator(func(ctx context.Context, userID int, transcript []memory.Turn) (string, error) {
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&completed, 1)
		return "done", nil
	})

	for i := 0; i < 5; i++ {
		coord.Schedule(1, userTurn("turn"))
	}
	if n := coord.InFlight(); n != 5 {
		t.Errorf("Expected 5 jobs in flight, got %d", n)
	}

	results := coord.DrainAll(context.Background())
	if len(results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(results))
	}
	if got := atomic.LoadInt32(&completed); got != 5 {
		t.Errorf("Expected all 5 jobs completed before drain returned, got %d", got)
	}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("Unexpected job error: %v", res.Err)
		}
		if res.Summary != "done" {
			t.Errorf("Expected summary \"done\", got %q", res.Summary)
		}
	}
	if n := coord.InFlight(); n != 0 {
		t.Errorf("Expected no jobs after drain, got %d", n)
	}
}

func TestCoordinator_FailureReportedNotRaised(t *testing.T) {
	coord := memory.NewCoordinator(func(ctx context.Context, userID int, transcript []memory.Turn) (string, error) {
		return "", fmt.Errorf("store unavailable")
	})
	coord.Schedule(7, userTurn("turn"))

	results := coord.DrainAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Err == nil {
		t.Fatal("Expected the job failure in the result")
	}
	if results[0].UserID != 7 {
		t.Errorf("Expected user 7 in result, got %d", results[0].UserID)
	}
}

func TestCoordinator_PanicRecovered(t *testing.T) {
	coord := memory.NewCoordinator(func(ctx context.Context, userID int, transcript []memory.Turn) (string, error) {
		panic("boom")
	})
	coord.Schedule(1, userTurn("turn"))

	results := coord.DrainAll(context.Background())
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("Expected the panic surfaced as a job error, got %+v", results)
	}
}

func TestCoordinator_ScheduleCopiesTranscript(t *testing.T) {
	seen := make(chan string, 1)
	coord := memory.NewCoordinator(func(ctx context.Context, userID int, transcript []memory.Turn) (string, error) {
		seen <- transcript[0].Content
		return "", nil
	})

	transcript := userTurn("original")
	coord.Schedule(1, transcript)
	transcript[0].Content = "mutated after schedule"

	coord.DrainAll(context.Background())
	if got := <-seen; got != "original" {
		t.Errorf("Job observed caller mutation: %q", got)
	}
}

func TestCoordinator_DrainTimeoutKeepsJobTracked(t *testing.T) {
	release := make(chan struct{})
	coord := memory.NewCoordinator(func(ctx context.Context, userID int, transcript []memory.Turn) (string, error) {
		<-release
		return "finally", nil
	})
	coord.Schedule(1, userTurn("turn"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	results := coord.DrainAll(ctx)
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("Expected an interrupted-drain result, got %+v", results)
	}

	// The job was not cancelled: it stays tracked and a later drain
	// collects it once it finishes.
	if n := coord.InFlight(); n != 1 {
		t.Fatalf("Expected the unfinished job to stay tracked, got %d", n)
	}
	close(release)
	results = coord.DrainAll(context.Background())
	if len(results) != 1 || results[0].Err != nil || results[0].Summary != "finally" {
		t.Fatalf("Expected the job to complete on the second drain, got %+v", results)
	}
}

func TestCoordinator_SameUserJobsMayOverlap(t *testing.T) {
	var concurrent, peak int32
	coord := memory.NewCoordinator(func(ctx context.Context, userID int, transcript []memory.Turn) (string, error) {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return "", nil
	})

	coord.Schedule(1, userTurn("first"))
	coord.Schedule(1, userTurn("second"))
	coord.DrainAll(context.Background())

	if atomic.LoadInt32(&peak) < 2 {
		t.Errorf("Expected same-user jobs to run concurrently, peak was %d", peak)
	}
}
