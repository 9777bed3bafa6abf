package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-assistant-go/internal/config"
)

func counting(n *atomic.Int32, err error) Job {
	return func(ctx context.Context) error {
		n.Add(1)
		return err
	}
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{IngestionInterval: time.Hour, ProcessingInterval: time.Hour}
}

func TestStartRunsBothJobsOnce(t *testing.T) {
	var ingested, processed atomic.Int32
	s := NewScheduler(testConfig(), counting(&ingested, nil), counting(&processed, nil))

	h, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		return ingested.Load() == 1 && processed.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.NextRun(JobProcessing).IsZero())

	_, err = s.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	h.Stop()
	h.Wait()
	assert.False(t, s.IsRunning())
	assert.True(t, s.NextRun(JobProcessing).IsZero())

	h2, err := s.Start(context.Background())
	require.NoError(t, err)
	s.Stop()
	h2.Wait()
	assert.False(t, s.IsRunning())
}

func TestCancelledContextStopsScheduler(t *testing.T) {
	var n atomic.Int32
	s := NewScheduler(testConfig(), counting(&n, nil), counting(&n, nil))

	ctx, cancel := context.WithCancel(context.Background())
	h, err := s.Start(ctx)
	require.NoError(t, err)

	cancel()
	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.False(t, s.IsRunning())
}

func TestRunOnceReportsErrors(t *testing.T) {
	var ingested, processed atomic.Int32
	at := time.Date(2025, 11, 23, 10, 0, 0, 0, time.UTC)
	s := NewScheduler(testConfig(), counting(&ingested, errors.New("imap down")), counting(&processed, nil),
		WithClock(func() time.Time { return at }))

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingestion: imap down")
	assert.Equal(t, int32(1), ingested.Load())
	assert.Equal(t, int32(1), processed.Load())

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "imap down", st.Jobs[JobIngestion].LastError)
	assert.Empty(t, st.Jobs[JobProcessing].LastError)
	assert.Equal(t, at, s.LastRun(JobProcessing))
	assert.Equal(t, "1h0m0s", st.Jobs[JobIngestion].Interval)
}

func TestStopWaitsForInitialRun(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	var finished atomic.Bool
	slow := func(ctx context.Context) error {
		close(started)
		<-unblock
		finished.Store(true)
		return nil
	}
	s := NewScheduler(testConfig(), slow, nil)

	h, err := s.Start(context.Background())
	require.NoError(t, err)
	<-started

	stopped := make(chan struct{})
	go func() {
		h.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while the initial run was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(unblock)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the initial run finished")
	}
	assert.True(t, finished.Load())
	assert.False(t, s.IsRunning())
}
