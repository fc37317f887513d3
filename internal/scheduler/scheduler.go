package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/sunshine-watchface/internal/weather"
)

// Job is one run of a periodic task.
type Job func(ctx context.Context)

// Scheduler runs the periodic jobs of a process.
type Scheduler struct {
	scheduler *gocron.Scheduler
	timeout   time.Duration
}

// New creates a Scheduler whose job runs are bounded by timeout.
func New(loc *time.Location, timeout time.Duration) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		timeout:   timeout,
	}
}

// Every runs job now and then every interval.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	_, err := s.scheduler.Every(interval).Do(s.wrap(name, job))
	return err
}

// EveryMinute runs job at the start of every wall-clock minute.
func (s *Scheduler) EveryMinute(name string, job Job) error {
	_, err := s.scheduler.Cron("* * * * *").Do(s.wrap(name, job))
	return err
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		ctx := context.Background()
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		job(ctx)
		log.Printf("DEBUG: scheduler: completed %s", name)
	}
}

// Start starts the underlying scheduler.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Fetcher is the part of weather.Service a refresh needs.
type Fetcher interface {
	FetchAndStore(ctx context.Context, loc weather.Location) error
}

// RefreshJob fetches every location concurrently, then calls after once.
func RefreshJob(locations []weather.Location, fetcher Fetcher, after func()) Job {
	return func(ctx context.Context) {
		if len(locations) == 0 {
			log.Println("scheduler: no locations configured; nothing to fetch")
			return
		}

		log.Println("scheduler: running weather fetch job")

		var wg sync.WaitGroup
		for _, loc := range locations {
			loc := loc
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := fetcher.FetchAndStore(ctx, loc); err != nil {
					log.Printf("scheduler: fetch failed for %s: %v", loc.Key(), err)
				}
			}()
		}
		wg.Wait()

		if after != nil {
			after()
		}
	}
}
