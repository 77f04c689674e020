package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Worker struct {
	ID         int
	WorkerPool chan chan *Entry
	JobChannel chan *Entry
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan *Entry, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan *Entry),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(*Entry)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("audit worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case entry := <-w.JobChannel:
				processFunc(entry)
			case <-ctx.Done():
				w.Logger.Debug("audit worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type RecorderConfig struct {
	MaxWorkers   int
	JobQueueSize int
	WriteTimeout time.Duration
}

// Recorder writes confirmation log entries off the request path. Entries
// that cannot be queued, or arrive after Shutdown, are written inline.
type Recorder struct {
	store        Store
	logger       *slog.Logger
	writeTimeout time.Duration

	jobQueue   chan *Entry
	workerPool chan chan *Entry
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(store Store, config RecorderConfig, logger *slog.Logger) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	writeTimeout := config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	r := &Recorder{
		store:        store,
		logger:       logger,
		writeTimeout: writeTimeout,
		maxWorkers:   maxWorkers,
		jobQueue:     make(chan *Entry, jobQueueSize),
		workerPool:   make(chan chan *Entry, maxWorkers),
		ctx:          ctx,
		cancel:       cancel,
	}

	r.start()
	return r
}

func (r *Recorder) start() {
	r.once.Do(func() {
		for i := 0; i < r.maxWorkers; i++ {
			worker := NewWorker(i, r.workerPool, r.logger)
			worker.Start(r.ctx, &r.wg, r.write)
		}

		r.wg.Add(1)
		go r.dispatch()

		r.logger.Info("audit recorder started",
			"max_workers", r.maxWorkers,
			"queue_size", cap(r.jobQueue))
	})
}

func (r *Recorder) dispatch() {
	defer r.wg.Done()

	for {
		select {
		case entry := <-r.jobQueue:
			select {
			case jobChannel := <-r.workerPool:
				select {
				case jobChannel <- entry:
				case <-r.ctx.Done():
					r.write(entry)
					r.drain()
					return
				}
			case <-r.ctx.Done():
				r.write(entry)
				r.drain()
				return
			}
		case <-r.ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case entry := <-r.jobQueue:
			r.write(entry)
		default:
			return
		}
	}
}

// Record queues the entry. It never fails the caller.
func (r *Recorder) Record(entry *Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.write(entry)
		return
	}

	select {
	case r.jobQueue <- entry:
	default:
		r.logger.Warn("audit queue full, writing inline",
			"user_id", entry.UserID,
			"queue_capacity", cap(r.jobQueue))
		r.write(entry)
	}
}

func (r *Recorder) write(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.Error("failed to write confirmation log entry",
			"error", err,
			"user_id", entry.UserID,
			"external_payment_id", entry.ExternalPaymentID,
			"result", entry.Result)
	}
}

// Shutdown stops the workers after every queued entry has been written.
func (r *Recorder) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.logger.Info("shutting down audit recorder")
	r.cancel()
	r.wg.Wait()
	r.logger.Info("audit recorder shutdown complete")
}
