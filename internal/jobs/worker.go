package jobs

import (
	"context"
	"log"
	"time"
)

// Reconciler defines a unit of periodic background work
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// Worker drives a Reconciler on a fixed polling interval
type Worker struct {
	reconciler   Reconciler
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(reconciler Reconciler, pollInterval time.Duration) *Worker {
	return &Worker{
		reconciler:   reconciler,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins the worker's polling loop
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("worker started with poll interval: %v", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("worker stopped: stop signal received")
			return
		case <-ticker.C:
			if err := w.reconciler.Reconcile(ctx); err != nil {
				log.Printf("reconcile error: %v", err)
			}
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("worker shutdown complete")
}
