package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "classcal/internal/log"
)

// Scheduler runs a job once at start and then on a cron schedule. Runs
// never overlap; a tick that arrives while the job is busy is skipped.
type Scheduler struct {
	cron *cron.Cron
	job  func(context.Context)
	// run is job wrapped once in the recover and skip chain; the first run
	// and every tick share it.
	run cron.Job

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewScheduler parses spec (standard five-field cron syntax or a
// descriptor such as "@daily") evaluated in loc.
func NewScheduler(spec string, loc *time.Location, job func(context.Context)) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
	)

	s := &Scheduler{cron: c, job: job, done: make(chan struct{})}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.run = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { s.job(s.ctx) }))

	if _, err := c.AddJob(spec, s.run); err != nil {
		s.cancel()
		return nil, fmt.Errorf("schedule: bad cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the job in the background and then starts the cron loop.
func (s *Scheduler) Start() {
	s.started = true
	go func() {
		defer close(s.done)
		s.run.Run()
	}()
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		appLog.Info("schedule: next run", "at", e.Next.Format(time.RFC3339))
	}
}

// Stop cancels the running job and waits for it and any cron run to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	if s.started {
		<-s.done
	}
}

// cronLogger adapts cron's logger to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
