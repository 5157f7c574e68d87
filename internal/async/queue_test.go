package async

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingProc parks every job until release is closed.
type blockingProc struct {
	started chan uuid.UUID
	release chan struct{}

	mu   sync.Mutex
	done []uuid.UUID
}

func newBlockingProc() *blockingProc {
	return &blockingProc{
		started: make(chan uuid.UUID, 8),
		release: make(chan struct{}),
	}
}

func (p *blockingProc) Process(_ context.Context, id uuid.UUID) {
	p.started <- id
	<-p.release
	p.mu.Lock()
	p.done = append(p.done, id)
	p.mu.Unlock()
}

func (p *blockingProc) doneCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.done)
}

func TestJobQueue_BackpressureDoesNotWedgeWorkersOrCancel(t *testing.T) {
	proc := newBlockingProc()
	q := NewJobQueue(proc, slog.Default(), WithWorkers(1), WithQueueSize(1))

	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()

	// id1 occupies the only worker, id2 fills the buffer, id3 backpressures.
	require.NoError(t, q.Enqueue(context.Background(), id1))
	select {
	case <-proc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first job")
	}
	require.NoError(t, q.Enqueue(context.Background(), id2))

	enqueued := make(chan struct{})
	go func() {
		require.NoError(t, q.Enqueue(context.Background(), id3))
		close(enqueued)
	}()

	// Cancel must answer while an Enqueue is parked on the full channel.
	cancelled := make(chan bool, 1)
	go func() { cancelled <- q.Cancel(id1) }()
	select {
	case ok := <-cancelled:
		assert.True(t, ok, "the running job should be cancellable")
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel blocked behind a backpressured Enqueue")
	}

	// Once jobs can finish, the worker must keep draining the channel and
	// the parked Enqueue must return.
	close(proc.release)
	select {
	case <-enqueued:
	case <-time.After(5 * time.Second):
		t.Fatal("Enqueue never unblocked after the worker freed up")
	}
	require.Eventually(t, func() bool { return proc.doneCount() == 3 },
		5*time.Second, 10*time.Millisecond, "all queued jobs should run")

	q.Shutdown(context.Background())
}

func TestJobQueue_EnqueueAfterShutdown(t *testing.T) {
	proc := newBlockingProc()
	close(proc.release)
	q := NewJobQueue(proc, slog.Default(), WithWorkers(1), WithQueueSize(4))

	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestJobQueue_CancelUnknownJob(t *testing.T) {
	proc := newBlockingProc()
	close(proc.release)
	q := NewJobQueue(proc, slog.Default(), WithWorkers(1))
	defer q.Shutdown(context.Background())

	assert.False(t, q.Cancel(uuid.New()))
}
