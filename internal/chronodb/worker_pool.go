package chronodb

import (
	"context"
	"runtime"
	"sync"

	"github.com/kartikbazzad/chronodb/internal/config"
	"github.com/kartikbazzad/chronodb/internal/logger"
	"github.com/kartikbazzad/chronodb/internal/types"
)

// WorkerPool manages the workers that execute write tasks.
//
// Workers are not bound to collections. They pull tasks from a shared queue,
// lock the task's collection, execute, unlock and deliver the result.
type WorkerPool interface {
	// Submit enqueues a task. A full queue fails the task with ErrQueueFull
	// instead of blocking.
	Submit(task *Task)

	// Start starts the workers.
	Start()

	// Stop stops the pool and waits for in-flight tasks to finish.
	Stop()

	// WorkerCount returns the number of workers.
	WorkerCount() int
}

type workerPoolImpl struct {
	mu          sync.Mutex
	taskQueue   chan *Task
	workers     []*worker
	workerCount int
	stopped     bool
	wg          sync.WaitGroup
	logger      *logger.Logger
	db          *DB
}

type worker struct {
	id        int
	taskQueue chan *Task
	db        *DB
	logger    *logger.Logger
	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewWorkerPool creates a worker pool for the engine.
func NewWorkerPool(db *DB, cfg *config.EngineConfig, log *logger.Logger) WorkerPool {
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}

	return &workerPoolImpl{
		taskQueue:   make(chan *Task, queueSize),
		workerCount: workerCount,
		logger:      log,
		db:          db,
	}
}

func (wp *workerPoolImpl) Submit(task *Task) {
	wp.mu.Lock()
	stopped := wp.stopped
	wp.mu.Unlock()

	if stopped {
		task.ResultCh <- &Result{Status: types.StatusError, Error: ErrPoolStopped}
		return
	}

	select {
	case wp.taskQueue <- task:
	default:
		task.ResultCh <- &Result{Status: types.StatusError, Error: ErrQueueFull}
	}
}

func (wp *workerPoolImpl) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped || len(wp.workers) > 0 {
		return
	}

	wp.workers = make([]*worker, wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		w := &worker{
			id:        i,
			taskQueue: wp.taskQueue,
			db:        wp.db,
			logger:    wp.logger,
			wg:        &wp.wg,
			ctx:       ctx,
			cancel:    cancel,
		}
		wp.workers[i] = w
		wp.wg.Add(1)
		go w.run()
	}

	wp.logger.Info("Worker pool started: %d workers", wp.workerCount)
}

func (wp *workerPoolImpl) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	workers := wp.workers
	wp.workers = nil
	close(wp.taskQueue)
	wp.mu.Unlock()

	for _, w := range workers {
		w.cancel()
	}
	wp.wg.Wait()

	wp.logger.Info("Worker pool stopped")
}

func (wp *workerPoolImpl) WorkerCount() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.workerCount
}

func (w *worker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			// Stop closes the queue before cancelling, and Submit rejects
			// once the pool is marked stopped, so the drain terminates.
			// Every accepted task must deliver a result; abandoning the
			// queue here would leave submitters blocked on ResultCh.
			for task := range w.taskQueue {
				w.executeTask(task)
			}
			return
		case task, ok := <-w.taskQueue:
			if !ok {
				return
			}
			w.executeTask(task)
		}
	}
}

func (w *worker) executeTask(task *Task) {
	switch task.Op {
	case types.OpCreateCollection, types.OpDropCollection:
		task.ResultCh <- w.db.executeAdmin(task)
		return
	}

	col, err := w.db.getCollection(task.Collection)
	if err != nil {
		task.ResultCh <- &Result{Status: types.StatusNotFound, Error: err}
		return
	}

	// Exactly one writer per collection at a time.
	col.mu.Lock()
	checkSingleWriter(col, task.Op)
	result := w.db.executeOnCollection(col, task)
	col.mu.Unlock()

	task.ResultCh <- result
}
