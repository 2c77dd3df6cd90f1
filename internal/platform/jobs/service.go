package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrQueueFull = errors.New("job queue full")

// Service runs queued jobs on a fixed set of worker goroutines.
type Service struct {
	queue chan job
	wg    sync.WaitGroup
}

type job struct {
	ID   string
	Type string
	Key  string
	Run  func(context.Context) error
}

func New(queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Service{queue: make(chan job, queueSize)}
}

// Start launches workers that stop when ctx is cancelled. Jobs still queued at
// that point are dropped.
func (s *Service) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker(ctx)
		}()
	}
}

// Wait blocks until every worker has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Enqueue never blocks. It returns the job id, or ErrQueueFull.
func (s *Service) Enqueue(jobType, key string, run func(context.Context) error) (string, error) {
	j := job{ID: uuid.NewString(), Type: jobType, Key: key, Run: run}
	select {
	case s.queue <- j:
		return j.ID, nil
	default:
		slog.Warn("job queue full", "jobType", jobType, "key", key)
		return "", ErrQueueFull
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, key string, run func(context.Context) error) error {
	return s.runJob(ctx, job{ID: uuid.NewString(), Type: jobType, Key: key, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobId", j.ID, "jobType", j.Type, "key", j.Key, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "jobId", j.ID, "jobType", j.Type, "panic", r)
			err = errors.New("job panicked")
		}
	}()
	err = j.Run(ctx)
	slog.Debug("job finished", "jobId", j.ID, "jobType", j.Type, "durationMs", time.Since(started).Milliseconds(), "ok", err == nil)
	return err
}
