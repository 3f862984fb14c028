package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    map[Job]int
	block   chan struct{}
	started chan Job
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{runs: map[Job]int{}, started: make(chan Job, 16)}
}

func (f *fakeRunner) Run(ctx context.Context, job Job) (Summary, error) {
	f.mu.Lock()
	f.runs[job]++
	block := f.block
	f.mu.Unlock()
	f.started <- job
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Summary{Job: job}, ctx.Err()
		}
	}
	return Summary{Job: job, Targets: 3}, f.err
}

func (f *fakeRunner) count(job Job) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[job]
}

func statesByJob(s *Scheduler) map[Job]JobStatus {
	out := map[Job]JobStatus{}
	for _, st := range s.States() {
		out[st.Job] = st
	}
	return out
}

func TestScheduler_StartStopStates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := New(zap.NewNop(), newFakeRunner())
	require.NoError(t, err)

	for _, st := range s.States() {
		assert.Equal(t, StateStopped, st.State)
		assert.Nil(t, st.NextRun)
	}

	s.Start()
	states := statesByJob(s)
	require.Len(t, states, 4)
	for _, job := range Jobs {
		st := states[job]
		assert.Equal(t, StateScheduled, st.State, job)
		assert.Equal(t, Cadences[job], st.Spec)
		require.NotNil(t, st.NextRun, job)
		assert.Equal(t, time.UTC, st.NextRun.Location())
	}
	reach := states[JobReachability].NextRun
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), *reach, time.Minute)

	<-s.Stop().Done()
	for _, st := range s.States() {
		assert.Equal(t, StateStopped, st.State)
	}
}

func TestScheduler_RunNowRecordsLastRun(t *testing.T) {
	r := newFakeRunner()
	s, err := New(zap.NewNop(), r)
	require.NoError(t, err)

	sum, err := s.RunNow(context.Background(), JobCertificates)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Targets)
	assert.Equal(t, 1, r.count(JobCertificates))

	st := statesByJob(s)[JobCertificates]
	require.NotNil(t, st.LastRun)
	require.NotNil(t, st.Last)
	assert.Equal(t, StateStopped, st.State)
	assert.Empty(t, st.LastError)

	_, err = s.RunNow(context.Background(), Job("dns"))
	assert.Error(t, err)
}

func TestScheduler_SameJobDoesNotOverlap(t *testing.T) {
	r := newFakeRunner()
	block := make(chan struct{})
	r.block = block
	s, err := New(zap.NewNop(), r)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunNow(context.Background(), JobExpiry)
	}()
	<-r.started
	assert.Equal(t, StateRunning, statesByJob(s)[JobExpiry].State)

	_, err = s.RunNow(context.Background(), JobExpiry)
	assert.ErrorIs(t, err, ErrJobRunning)

	// Other jobs are independent of the parked one.
	r.mu.Lock()
	r.block = nil
	r.mu.Unlock()
	_, err = s.RunNow(context.Background(), JobAlerts)
	require.NoError(t, err)

	close(block)
	<-done
	assert.Equal(t, 1, r.count(JobExpiry))
	assert.Equal(t, StateStopped, statesByJob(s)[JobExpiry].State)
}

func TestScheduler_StopWaitsForInFlightSweep(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newFakeRunner()
	block := make(chan struct{})
	r.block = block
	s, err := New(zap.NewNop(), r, WithRunOnStart(true))
	require.NoError(t, err)

	s.Start()
	for i := 0; i < len(Jobs); i++ {
		<-r.started
	}

	stopped := s.Stop()
	select {
	case <-stopped.Done():
		t.Fatal("Stop finished while sweeps were still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-stopped.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not finish after sweeps completed")
	}
	for _, job := range Jobs {
		assert.Equal(t, 1, r.count(job))
	}
}

func TestScheduler_ShutdownCancelsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newFakeRunner()
	r.block = make(chan struct{}) // never closed
	s, err := New(zap.NewNop(), r, WithRunOnStart(true))
	require.NoError(t, err)

	s.Start()
	for i := 0; i < len(Jobs); i++ {
		<-r.started
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	for _, st := range s.States() {
		assert.Equal(t, StateStopped, st.State)
		assert.Equal(t, context.Canceled.Error(), st.LastError)
	}
}

func TestScheduler_RestartAfterShutdown(t *testing.T) {
	r := newFakeRunner()
	s, err := New(zap.NewNop(), r)
	require.NoError(t, err)

	s.Start()
	require.NoError(t, s.Shutdown(context.Background()))
	s.Start()
	defer func() { <-s.Stop().Done() }()

	// The base context is fresh again after a restart.
	assert.NoError(t, s.baseContext().Err())
	assert.Equal(t, StateScheduled, statesByJob(s)[JobAlerts].State)
}
