package server

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RunsSubmittedJobs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := newWorkerPool(2, logger)
	defer pool.Close()

	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		pool.Submit(func() { wg.Done() })
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted jobs did not complete in time")
	}
	assert.Equal(t, int64(0), pool.DroppedCount())
}

func TestWorkerPool_DropsJobsWhenQueueFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := newWorkerPool(1, logger)
	defer pool.Close()

	block := make(chan struct{})
	pool.Submit(func() { <-block }) // occupies the single worker

	for i := 0; i < queueDepth+10; i++ {
		pool.Submit(func() {})
	}

	assert.Greater(t, pool.DroppedCount(), int64(0), "queue overflow should drop jobs rather than block Submit")
	close(block)
}
