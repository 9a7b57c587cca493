package jobs

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartIdempotent(t *testing.T) {
	q := NewQueue(testConfig())

	var executions atomic.Int64
	q.RegisterHandler(HandlerFunc{
		TypeName: "count",
		Fn: func(context.Context, json.RawMessage, Reporter) (json.RawMessage, error) {
			executions.Add(1)
			return nil, nil
		},
	})

	q.Start()
	q.Start() // no-op, must not double the worker pool
	defer q.Stop()

	for i := 0; i < 5; i++ {
		_, err := q.Submit("count", nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return executions.Load() == 5
	}, 3*time.Second, 5*time.Millisecond)

	// Every job ran exactly once
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(5), executions.Load())
}

func TestStopRetainsPendingJobs(t *testing.T) {
	q := NewQueue(testConfig())
	q.RegisterHandler(echoHandler())

	q.Start()
	q.Stop()

	// Submit after Stop: accepted, stays Pending
	id, err := q.Submit("echo", nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	job, err := q.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)

	// Start again picks the retained job up
	q.Start()
	defer q.Stop()
	waitForStatus(t, q, id, StatusCompleted)
}

func TestStopIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.StopTimeout = 100 * time.Millisecond
	q := NewQueue(cfg)

	release := make(chan struct{})
	defer close(release)
	q.RegisterHandler(HandlerFunc{
		TypeName: "stuck",
		Fn: func(context.Context, json.RawMessage, Reporter) (json.RawMessage, error) {
			<-release
			return nil, nil
		},
	})

	q.Start()
	_, err := q.Submit("stuck", nil)
	require.NoError(t, err)

	// Wait for the worker to pick the job up
	require.Eventually(t, func() bool {
		_, running := q.Counts()
		return running == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Stop must return despite the stuck handler
	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not honor its timeout")
	}
}

func TestParallelWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2
	q := NewQueue(cfg)

	// Two jobs that each wait for the other to start prove the pool
	// does not serialize independent jobs behind one another.
	first := make(chan struct{})
	second := make(chan struct{})
	q.RegisterHandler(HandlerFunc{
		TypeName: "a",
		Fn: func(ctx context.Context, _ json.RawMessage, _ Reporter) (json.RawMessage, error) {
			close(first)
			select {
			case <-second:
				return nil, nil
			case <-time.After(2 * time.Second):
				return nil, context.DeadlineExceeded
			}
		},
	})
	q.RegisterHandler(HandlerFunc{
		TypeName: "b",
		Fn: func(ctx context.Context, _ json.RawMessage, _ Reporter) (json.RawMessage, error) {
			close(second)
			select {
			case <-first:
				return nil, nil
			case <-time.After(2 * time.Second):
				return nil, context.DeadlineExceeded
			}
		},
	})

	q.Start()
	defer q.Stop()

	idA, err := q.Submit("a", nil)
	require.NoError(t, err)
	idB, err := q.Submit("b", nil)
	require.NoError(t, err)

	waitForStatus(t, q, idA, StatusCompleted)
	waitForStatus(t, q, idB, StatusCompleted)
}
