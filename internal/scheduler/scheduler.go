// Package scheduler runs the four recurring sweeps (domain expiry,
// certificates, reachability and alert matching) on fixed UTC cadences.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cadences are fixed and evaluated in UTC.
var Cadences = map[Job]string{
	JobExpiry:       "@daily",
	JobCertificates: "@every 6h",
	JobReachability: "@every 30m",
	JobAlerts:       "@hourly",
}

var ErrJobRunning = errors.New("job is already running")

type State string

const (
	StateStopped   State = "stopped"
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
)

// JobStatus is a snapshot of one job for the operator API.
type JobStatus struct {
	Job       Job        `json:"job"`
	Spec      string     `json:"spec"`
	State     State      `json:"state"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Last      *Summary   `json:"last_summary,omitempty"`
}

// Runner executes one sweep. *Sweeper implements it.
type Runner interface {
	Run(ctx context.Context, job Job) (Summary, error)
}

type jobState struct {
	run   sync.Mutex // held while the sweep body executes
	state State
	entry cron.EntryID
	last  *Summary
	lastT *time.Time
	err   string
}

// Scheduler owns the cron engine and the state of each job. Jobs run on
// separate goroutines so a slow sweep never delays another job's timer.
type Scheduler struct {
	logger     *zap.Logger
	runner     Runner
	cron       *cron.Cron
	runOnStart bool

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	started  bool
	jobs     map[Job]*jobState
	ctx      context.Context
	cancel   context.CancelFunc
}

type Option func(*Scheduler)

// WithRunOnStart runs every sweep once right after Start.
func WithRunOnStart(on bool) Option {
	return func(s *Scheduler) { s.runOnStart = on }
}

func New(logger *zap.Logger, runner Runner, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Named("cron").Sugar()}
	s := &Scheduler{
		logger: logger,
		runner: runner,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs: make(map[Job]*jobState, len(Jobs)),
	}
	s.idle = sync.NewCond(&s.mu)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, o := range opts {
		o(s)
	}

	for _, job := range Jobs {
		job := job
		id, err := s.cron.AddFunc(Cadences[job], func() {
			_, _ = s.runJob(s.baseContext(), job)
		})
		if err != nil {
			return nil, err
		}
		s.jobs[job] = &jobState{state: StateStopped, entry: id}
	}
	return s, nil
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Start arms all four timers. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	for _, js := range s.jobs {
		if js.state == StateStopped {
			js.state = StateScheduled
		}
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler_started")

	if s.runOnStart {
		for _, job := range Jobs {
			go func(job Job) { _, _ = s.runJob(ctx, job) }(job)
		}
	}
}

// Stop disarms all timers. In-flight sweeps are left to finish; the returned
// context is done once they have.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.started = false
	for _, js := range s.jobs {
		if js.state == StateScheduled {
			js.state = StateStopped
		}
	}
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		<-cronDone.Done()
		s.mu.Lock()
		for s.inflight > 0 {
			s.idle.Wait()
		}
		s.mu.Unlock()
		s.logger.Info("scheduler_stopped")
	}()
	return ctx
}

// Shutdown stops the timers and asks in-flight sweeps to stop at the next
// target boundary. It returns ctx.Err() if they have not finished in time.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := s.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs job synchronously, outside its cadence. It fails with
// ErrJobRunning if the same job is already executing.
func (s *Scheduler) RunNow(ctx context.Context, job Job) (Summary, error) {
	if _, ok := s.jobs[job]; !ok {
		_, err := ParseJob(string(job))
		return Summary{Job: job}, err
	}
	return s.runJob(ctx, job)
}

func (s *Scheduler) runJob(ctx context.Context, job Job) (Summary, error) {
	js := s.jobs[job]
	if !js.run.TryLock() {
		s.logger.Info("sweep_skipped", zap.String("job", string(job)), zap.String("reason", "still running"))
		return Summary{Job: job}, ErrJobRunning
	}
	defer js.run.Unlock()

	s.mu.Lock()
	js.state = StateRunning
	s.inflight++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight--
		if s.started {
			js.state = StateScheduled
		} else {
			js.state = StateStopped
		}
		s.idle.Broadcast()
		s.mu.Unlock()
	}()

	sum, err := s.runner.Run(ctx, job)

	now := time.Now().UTC()
	s.mu.Lock()
	js.lastT = &now
	js.last = &sum
	js.err = ""
	if err != nil {
		js.err = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("sweep_failed", zap.String("job", string(job)), zap.Error(err))
	}
	return sum, err
}

// States returns one status per job in Jobs order.
func (s *Scheduler) States() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(Jobs))
	for _, job := range Jobs {
		js := s.jobs[job]
		st := JobStatus{
			Job:       job,
			Spec:      Cadences[job],
			State:     js.state,
			LastRun:   js.lastT,
			LastError: js.err,
			Last:      js.last,
		}
		if s.started {
			if next := s.cron.Entry(js.entry).Next; !next.IsZero() {
				st.NextRun = &next
			}
		}
		out = append(out, st)
	}
	return out
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
