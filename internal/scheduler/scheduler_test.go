package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incuhub/roadmap-sync/internal/scheduler"
)

type loadRecorder struct {
	mu      sync.Mutex
	targets []string
	calls   chan string
	block   chan struct{}
}

func newLoadRecorder() *loadRecorder {
	return &loadRecorder{calls: make(chan string, 64)}
}

func (r *loadRecorder) load(ctx context.Context, target string) error {
	r.mu.Lock()
	r.targets = append(r.targets, target)
	block := r.block
	r.mu.Unlock()
	r.calls <- target
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	return nil
}

func (r *loadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

func waitForCall(t *testing.T, r *loadRecorder) string {
	t.Helper()
	select {
	case target := <-r.calls:
		return target
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduled load")
		return ""
	}
}

func TestStartLoadsImmediately(t *testing.T) {
	rec := newLoadRecorder()
	sched := scheduler.New(time.Hour, rec.load, nil)
	defer sched.Stop()

	sched.Start(context.Background(), "idea-7")
	assert.Equal(t, "idea-7", waitForCall(t, rec))
	assert.True(t, sched.Running())
	assert.Equal(t, "idea-7", sched.Target())
}

func TestPeriodicTicks(t *testing.T) {
	rec := newLoadRecorder()
	sched := scheduler.New(10*time.Millisecond, rec.load, nil)
	defer sched.Stop()

	sched.Start(context.Background(), "")
	for i := 0; i < 3; i++ {
		assert.Equal(t, "", waitForCall(t, rec))
	}
}

func TestStopHaltsLoopAndIsIdempotent(t *testing.T) {
	rec := newLoadRecorder()
	sched := scheduler.New(10*time.Millisecond, rec.load, nil)

	sched.Start(context.Background(), "idea-7")
	waitForCall(t, rec)
	sched.Stop()
	require.False(t, sched.Running())
	assert.Equal(t, "", sched.Target())

	// Drain anything already in flight, then confirm silence.
	for {
		select {
		case <-rec.calls:
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}
	before := rec.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, rec.count())

	sched.Stop()
}

func TestRestartReplacesTarget(t *testing.T) {
	rec := newLoadRecorder()
	sched := scheduler.New(time.Hour, rec.load, nil)
	defer sched.Stop()

	sched.Start(context.Background(), "idea-a")
	assert.Equal(t, "idea-a", waitForCall(t, rec))

	sched.Start(context.Background(), "idea-b")
	assert.Equal(t, "idea-b", waitForCall(t, rec))
	assert.Equal(t, "idea-b", sched.Target())
}

func TestSlowLoadSkipsTicksInsteadOfQueueing(t *testing.T) {
	rec := newLoadRecorder()
	rec.block = make(chan struct{})
	sched := scheduler.New(5*time.Millisecond, rec.load, nil)
	defer sched.Stop()

	sched.Start(context.Background(), "idea-7")
	waitForCall(t, rec)

	// Several intervals pass while the first load is still blocked; no
	// second load may start.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())

	close(rec.block)
	waitForCall(t, rec)
}

func TestContextCancelStopsLoop(t *testing.T) {
	rec := newLoadRecorder()
	sched := scheduler.New(10*time.Millisecond, rec.load, nil)
	defer sched.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx, "idea-7")
	waitForCall(t, rec)
	cancel()

	for {
		select {
		case <-rec.calls:
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}
	before := rec.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, rec.count())
}
