//go:build !integration

package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-group-subscription/internal/infra/worker"
)

func silent() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := worker.NewPool(2, silent())
	p.Start(context.Background())

	var wg sync.WaitGroup
	var n int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt32(&n, 1)
			return nil
		}))
	}
	wg.Wait()
	p.Stop()

	assert.Equal(t, int32(5), atomic.LoadInt32(&n))
}

func TestPool_SurvivesFailingAndPanickingTasks(t *testing.T) {
	p := worker.NewPool(1, silent())
	p.Start(context.Background())

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) error { return errors.New("boom") }))
	require.NoError(t, p.Submit(func(ctx context.Context) error { panic("bad task") }))
	require.NoError(t, p.Submit(func(ctx context.Context) error { close(done); return nil }))

	<-done
	p.Stop()
}

func TestPool_RejectsWhenFullOrStopped(t *testing.T) {
	p := worker.NewPool(1, silent())
	// not started: the queue holds workers*4 tasks
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))
	}
	assert.ErrorIs(t, p.Submit(func(ctx context.Context) error { return nil }), worker.ErrQueueFull)
	assert.Equal(t, 4, p.Pending())

	p.Start(context.Background())
	p.Stop()
	assert.Equal(t, 0, p.Pending(), "queued tasks are drained on stop")
	assert.ErrorIs(t, p.Submit(func(ctx context.Context) error { return nil }), worker.ErrStopped)
	assert.Error(t, p.Submit(nil))
}
