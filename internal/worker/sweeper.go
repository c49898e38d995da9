package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PendingProcessor is the unit of work the sweeper repeats.
type PendingProcessor interface {
	ProcessPendingReceipts(ctx context.Context) (int, error)
}

// Sweeper runs a PendingProcessor on a fixed interval until stopped.
type Sweeper struct {
	processor PendingProcessor
	interval  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweeper(processor PendingProcessor, interval time.Duration) *Sweeper {
	return &Sweeper{
		processor: processor,
		interval:  interval,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Pending receipt sweeper started", "interval", s.interval)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Pending receipt sweeper stopped")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Pending receipt sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.processor.ProcessPendingReceipts(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending receipt sweep failed", "error", err)
			}
		}
	}
}
