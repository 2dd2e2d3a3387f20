// Package parallel provides the worker pool used to decode the streams of
// one blob concurrently.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Job is a unit of work. It receives the index of the worker running it,
// in [0, Workers()), so jobs can use per-worker state such as scratch
// buffers without locking.
type Job func(worker int)

// WorkerPool is a fixed set of goroutines with per-worker queues.
//
// Jobs are distributed round-robin. A worker whose queue is empty steals
// from the others, which balances load when streams differ in length.
//
// WorkerPool is safe for concurrent use, but two ExecuteAll calls running
// at once may hand the same worker index to jobs of both calls. Callers
// that index per-worker state must serialize their batches.
type WorkerPool struct {
	workers    int
	workQueues []chan Job
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan Job, workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan Job, queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(id, own)
			return
		case job := <-own:
			job(id)
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen(id)
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(id, own)
				return
			case job := <-own:
				job(id)
			}
		}
	}
}

// drainQueue runs whatever is left in a queue on shutdown.
func (p *WorkerPool) drainQueue(id int, queue chan Job) {
	for {
		select {
		case job := <-queue:
			job(id)
		default:
			return
		}
	}
}

// steal takes one job from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) Job {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case job := <-p.workQueues[i]:
			return job
		default:
		}
	}
	return nil
}

// ExecuteAll runs every job and waits for all of them. On a closed pool
// the jobs run on the calling goroutine as worker 0.
func (p *WorkerPool) ExecuteAll(jobs []Job) {
	if len(jobs) == 0 {
		return
	}
	if !p.running.Load() {
		for _, job := range jobs {
			job(0)
		}
		return
	}

	var pending sync.WaitGroup
	pending.Add(len(jobs))
	for i, job := range jobs {
		wrapped := func(worker int) {
			defer pending.Done()
			job(worker)
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			pending.Done()
		}
	}
	pending.Wait()
}

// Close stops the workers after their queues drain. Close is idempotent.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
