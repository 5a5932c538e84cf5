// Package scheduler runs periodic maintenance jobs in the background.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

// Job is one periodic task. Run errors are logged and the job keeps its schedule.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	nextRun  time.Time
}

type Scheduler struct {
	jobs   []*Job
	mu     sync.Mutex
	logger logger.Logger
	tick   time.Duration
	now    func() time.Time
	stop   chan struct{}
	done   chan struct{}
}

func NewScheduler(log logger.Logger) *Scheduler {
	return &Scheduler{
		logger: log,
		tick:   time.Second,
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (s *Scheduler) Schedule(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.nextRun = s.now().Add(job.Interval)
	s.jobs = append(s.jobs, job)
	s.logger.Info("Scheduled job", map[string]interface{}{
		"job":      job.Name,
		"interval": job.Interval.String(),
	})
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runDue(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("Scheduler started", map[string]interface{}{"jobs": len(s.jobs)})
}

// Stop waits for the running job, if any, to return.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// runDue runs jobs sequentially so one job never overlaps itself.
func (s *Scheduler) runDue(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, job := range s.jobs {
		if now.Before(job.nextRun) {
			continue
		}
		if err := job.Run(ctx); err != nil {
			s.logger.Error("Scheduled job failed", map[string]interface{}{
				"job":   job.Name,
				"error": err,
			})
		}
		job.nextRun = now.Add(job.Interval)
	}
}
