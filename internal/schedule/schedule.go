// Package schedule drives the periodic work of the module: the minute
// aligned self update, fetch re-requests and PNG snapshots.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"mirrorcal/internal/config"
	appLog "mirrorcal/internal/log"
)

// Updater recomputes the view.
type Updater interface {
	SelfUpdate()
}

// Fetcher asks the external fetcher to refresh a source.
type Fetcher interface {
	RequestFetch(ctx context.Context, url string) error
}

// Options configure the scheduler.
type Options struct {
	// RefreshSpec is a standard cron spec; "* * * * *" runs at the start of
	// every minute.
	RefreshSpec string
	Sources     []config.Source
	Updater     Updater
	Fetcher     Fetcher
	// Snapshot, if set, runs after every self update.
	Snapshot func(ctx context.Context) error
}

// Job is one scheduled task.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

// Jobs returns the jobs for opts: one refresh job plus one fetch job per
// distinct fetch interval.
func Jobs(opts Options) []Job {
	jobs := []Job{{
		Name: "self-update",
		Spec: opts.RefreshSpec,
		Run: func(ctx context.Context) {
			opts.Updater.SelfUpdate()
			if opts.Snapshot == nil {
				return
			}
			if err := opts.Snapshot(ctx); err != nil {
				appLog.Error("snapshot failed", err)
			}
		},
	}}

	if opts.Fetcher == nil {
		return jobs
	}

	byInterval := make(map[time.Duration][]string)
	for _, src := range opts.Sources {
		if src.FetchInterval <= 0 {
			continue
		}
		byInterval[src.FetchInterval] = append(byInterval[src.FetchInterval], src.URL)
	}
	intervals := make([]time.Duration, 0, len(byInterval))
	for d := range byInterval {
		intervals = append(intervals, d)
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })

	for _, d := range intervals {
		urls := byInterval[d]
		jobs = append(jobs, Job{
			Name: "fetch-" + d.String(),
			Spec: "@every " + d.String(),
			Run: func(ctx context.Context) {
				for _, u := range urls {
					if err := opts.Fetcher.RequestFetch(ctx, u); err != nil {
						appLog.Error("fetch request failed", err, "url", config.RedactURL(u))
					}
				}
			},
		})
	}
	return jobs
}

// Scheduler runs Jobs on a cron.
type Scheduler struct {
	cron *cron.Cron
	jobs []Job
	ctx  context.Context
}

// New validates every cron spec and registers the jobs. Nothing runs until Run.
func New(opts Options) (*Scheduler, error) {
	if opts.Updater == nil {
		return nil, fmt.Errorf("schedule: updater is required")
	}
	if opts.RefreshSpec == "" {
		opts.RefreshSpec = "* * * * *"
	}

	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		jobs: Jobs(opts),
		ctx:  context.Background(),
	}

	for _, j := range s.jobs {
		job := j
		if _, err := s.cron.AddFunc(job.Spec, func() { job.Run(s.ctx) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job.Name, job.Spec, err)
		}
		appLog.Debug("job scheduled", "job", job.Name, "spec", job.Spec)
	}
	return s, nil
}

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Run starts the cron and blocks until ctx is done, then waits for running
// jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	appLog.Info("scheduler started", "jobs", len(s.jobs))

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	appLog.Info("scheduler stopped")
}

// cronLogger routes cron's logging through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
