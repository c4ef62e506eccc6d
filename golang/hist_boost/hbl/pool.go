package hbl

import "sync"

//Task is one unit of work executed by a Pool worker.
type Task interface {
	Run()
}

//Pool is a bounded worker pool for the CPU-bound loops of the engine:
//per-feature histogram scans inside a node and chunk classification in
//the parallel partitioner. There is no cancellation surface, the
//computation is deterministic and bounded by construction.
type Pool struct {
	tasks chan Task
	done  sync.WaitGroup
}

//NewPool starts the given number of workers.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	pool := &Pool{tasks: make(chan Task, workers)}
	for w := 0; w < workers; w++ {
		go func() {
			for task := range pool.tasks {
				task.Run()
				pool.done.Done()
			}
		}()
	}
	return pool
}

//AddTask queues one task for execution.
func (p *Pool) AddTask(task Task) {
	p.done.Add(1)
	p.tasks <- task
}

//Close stops accepting tasks; the workers drain the queue and exit.
func (p *Pool) Close() {
	close(p.tasks)
}

//WaitAll blocks until every queued task has finished.
func (p *Pool) WaitAll() {
	p.done.Wait()
}
