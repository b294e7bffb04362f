package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Schedule is a named function run on a fixed interval.
type Schedule struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives repeatable background jobs like token refresh and the
// orphaned-task sweep.
type Scheduler struct {
	logger    *zerolog.Logger
	mu        sync.Mutex
	schedules []Schedule
}

func NewScheduler(logger *zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

func (s *Scheduler) Add(schedule Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = append(s.schedules, schedule)
}

// Start runs every schedule on its own ticker and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	schedules := append([]Schedule(nil), s.schedules...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, schedule := range schedules {
		wg.Add(1)
		go func(sc Schedule) {
			defer wg.Done()
			s.runSchedule(ctx, sc)
		}(schedule)
	}
	wg.Wait()
}

func (s *Scheduler) runSchedule(ctx context.Context, sc Schedule) {
	s.logger.Info().Str("schedule", sc.Name).Dur("interval", sc.Interval).Msg("schedule started")

	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := sc.Run(ctx); err != nil {
				s.logger.Error().Err(err).Str("schedule", sc.Name).Msg("schedule run failed")
				continue
			}
			s.logger.Debug().Str("schedule", sc.Name).Dur("duration", time.Since(start)).Msg("schedule run completed")
		}
	}
}
