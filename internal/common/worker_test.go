package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerProcessesTasks(t *testing.T) {
	received := make(chan int, 4)
	w := StartWorker(WorkerConfig[int]{
		ChannelSize: 4,
		Timeout:     time.Second,
		OnTimeout:   func() {},
		OnTask:      func(v int) { received <- v },
	})
	defer w.Stop()

	assert.NoError(t, w.Send(1))
	assert.NoError(t, w.Send(2))

	assert.Equal(t, 1, <-received)
	assert.Equal(t, 2, <-received)
}

func TestWorkerTooBusy(t *testing.T) {
	block := make(chan struct{})
	w := StartWorker(WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     time.Second,
		OnTimeout:   func() {},
		OnTask:      func(int) { <-block },
	})
	defer func() {
		close(block)
		w.Stop()
	}()

	assert.NoError(t, w.Send(1)) // picked up immediately, blocks OnTask
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, w.Send(2)) // fills the channel buffer
	err := w.Send(3)
	assert.ErrorIs(t, err, ErrWorkerTooBusy)
}

func TestWorkerStopRejectsFurtherSends(t *testing.T) {
	w := StartWorker(WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     time.Second,
		OnTimeout:   func() {},
		OnTask:      func(int) {},
	})
	w.Stop()
	w.Stop() // idempotent

	assert.ErrorIs(t, w.Send(1), ErrWorkerClosed)
}

func TestWorkerCallsOnTimeout(t *testing.T) {
	fired := make(chan struct{}, 1)
	w := StartWorker(WorkerConfig[int]{
		ChannelSize: 1,
		Timeout:     10 * time.Millisecond,
		OnTimeout:   func() { fired <- struct{}{} },
		OnTask:      func(int) {},
	})
	defer w.Stop()

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("OnTimeout was not called")
	}
}
