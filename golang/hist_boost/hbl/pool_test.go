package hbl

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingTask struct {
	counter *int64
}

func (t *countingTask) Run() {
	atomic.AddInt64(t.counter, 1)
}

func TestPoolRunsEveryTask(t *testing.T) {
	var counter int64

	pool := NewPool(4)
	for i := 0; i < 100; i++ {
		pool.AddTask(&countingTask{&counter})
	}
	pool.Close()
	pool.WaitAll()

	require.Equal(t, int64(100), atomic.LoadInt64(&counter))
}

func TestPoolSupportsWaitBetweenPhases(t *testing.T) {
	var counter int64

	// two-phase use, as in the parallel partitioner: a join between the
	// counting and scatter phases without closing the pool
	pool := NewPool(3)
	for i := 0; i < 10; i++ {
		pool.AddTask(&countingTask{&counter})
	}
	pool.WaitAll()
	require.Equal(t, int64(10), atomic.LoadInt64(&counter))

	for i := 0; i < 7; i++ {
		pool.AddTask(&countingTask{&counter})
	}
	pool.Close()
	pool.WaitAll()
	require.Equal(t, int64(17), atomic.LoadInt64(&counter))
}
