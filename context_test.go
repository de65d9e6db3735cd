package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopContextRunsTasksInOrder(t *testing.T) {
	ctx := NewLoopContext(8, nil)
	defer ctx.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		ctx.Run(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLoopContextRecoversPanickingTask(t *testing.T) {
	ctx := NewLoopContext(2, nil)
	defer ctx.Close()

	done := make(chan struct{})
	ctx.Run(func() { panic("boom") })
	ctx.Run(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("context stopped processing tasks after a panic")
	}
}

func TestLoopContextRunAfterCloseDoesNotPanic(t *testing.T) {
	ctx := NewLoopContext(4, nil)
	ctx.Close()

	assert.NotPanics(t, func() { ctx.Run(func() {}) })
}

func TestLoopContextRunDropsTaskWhenBufferFull(t *testing.T) {
	var dropped atomic.Int32
	ctx := newLoopContext(1, nil, func() { dropped.Add(1) })
	defer ctx.Close()

	started := make(chan struct{})
	unblock := make(chan struct{})
	ctx.Run(func() {
		close(started)
		<-unblock
	})
	<-started

	ctx.Run(func() {}) // fills the one-deep buffer while the first task is still running
	ctx.Run(func() {}) // buffer already full: dropped without blocking this call

	close(unblock)
	assert.EqualValues(t, 1, dropped.Load())
}

func TestLoopContextRunDropsTaskAfterClose(t *testing.T) {
	var dropped atomic.Int32
	ctx := newLoopContext(4, nil, func() { dropped.Add(1) })
	ctx.Close()

	ctx.Run(func() {})

	assert.EqualValues(t, 1, dropped.Load())
}

func TestLoopPoolPicksEveryLaneOverTime(t *testing.T) {
	pool := newLoopPool(4, 4, nil, nil)
	defer pool.Close()

	seen := map[ExecutionContext]bool{}
	for i := 0; i < 16; i++ {
		seen[pool.pick()] = true
	}
	assert.Equal(t, 4, len(seen))
}

func TestInlineContextRunsSynchronously(t *testing.T) {
	var ran bool
	inlineContext{}.Run(func() { ran = true })
	require.True(t, ran)
}
