package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// ReconcileFunc is the unit of background work the Coordinator schedules.
// In production this is (*Reconciler).ReconcileTurn.
type ReconcileFunc func(ctx context.Context, userID int, transcript []Turn) (string, error)

// JobResult reports the outcome of one background reconciliation job.
type JobResult struct {
	UserID   int
	Summary  string
	Err      error
	Started  time.Time
	Finished time.Time
}

type job struct {
	userID  int
	started time.Time
	done    chan struct{}
	result  JobResult
}

// Coordinator decouples "this turn produced memory-worthy content" from
// "the reconciliation batch finished writing": Schedule returns
// immediately and the write runs as an independent background job.
//
// Jobs for the same user may overlap; both can read the same snapshot
// before either writes, so a duplicate replacement record is possible.
// That race is accepted: invalidation is idempotent, so nothing breaks,
// and serializing per user would add latency the design does not want.
//
// Memory writes are irreversible user data, so scheduled jobs are never
// cancelled mid-flight. They run on their own background context and
// DrainAll is the shutdown barrier that keeps them from being lost.
type Coordinator struct {
	reconcile ReconcileFunc

	mu      sync.Mutex
	pending []*job
}

// NewCoordinator creates a Coordinator driving the given reconcile
// function.
func NewCoordinator(reconcile ReconcileFunc) *Coordinator {
	return &Coordinator{reconcile: reconcile}
}

// Schedule launches reconciliation of the transcript as a background job
// and returns immediately. The transcript is copied so the caller may keep
// appending turns.
func (c *Coordinator) Schedule(userID int, transcript []Turn) {
	turns := make([]Turn, len(transcript))
	copy(turns, transcript)

	j := &job{
		userID:  userID,
		started: time.Now(),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	c.pending = append(c.pending, j)
	n := len(c.pending)
	c.mu.Unlock()

	log.Printf("[COORDINATOR] Scheduled reconciliation for user %d (%d in flight)", userID, n)

	go func() {
		defer close(j.done)
		defer func() {
			if r := recover(); r != nil {
				j.result = JobResult{
					UserID: userID, Started: j.started, Finished: time.Now(),
					Err: fmt.Errorf("reconciliation panicked: %v", r),
				}
			}
		}()

		summary, err := c.reconcile(context.Background(), userID, turns)
		j.result = JobResult{
			UserID:   userID,
			Summary:  summary,
			Err:      err,
			Started:  j.started,
			Finished: time.Now(),
		}
		if err != nil {
			log.Printf("[COORDINATOR] Background reconciliation for user %d failed: %v", userID, err)
		} else {
			log.Printf("[COORDINATOR] Background reconciliation for user %d done: %s", userID, summary)
		}
	}()
}

// InFlight returns the number of jobs not yet observed by a drain.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// DrainAll waits for every currently tracked job to finish and returns
// their results, failures included — a failed background write is reported,
// never raised. The context bounds only how long the drain waits: jobs it
// gives up on keep running and stay tracked for the next drain.
func (c *Coordinator) DrainAll(ctx context.Context) []JobResult {
	c.mu.Lock()
	jobs := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(jobs) == 0 {
		return nil
	}
	log.Printf("[COORDINATOR] Draining %d background job(s)", len(jobs))

	results := make([]JobResult, 0, len(jobs))
	for i, j := range jobs {
		select {
		case <-j.done:
			results = append(results, j.result)
		case <-ctx.Done():
			// Put the unfinished remainder back for a later drain and
			// report each as still running.
			c.mu.Lock()
			c.pending = append(append([]*job{}, jobs[i:]...), c.pending...)
			c.mu.Unlock()
			for _, rest := range jobs[i:] {
				results = append(results, JobResult{
					UserID:  rest.userID,
					Started: rest.started,
					Err:     fmt.Errorf("drain interrupted, job still running: %w", ctx.Err()),
				})
			}
			return results
		}
	}
	return results
}
