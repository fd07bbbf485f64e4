package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voicebox/internal/placetel"
	"voicebox/internal/settings"
	"voicebox/internal/summarize"
	"voicebox/internal/transcribe"
	"voicebox/internal/voicemail"
)

// emptyStore backs a pipeline with nothing to do, so ticks only touch the
// gateway listing call.
type emptyStore struct{}

func (emptyStore) Create(_ context.Context, _ *voicemail.VoicemailRecord) error { return nil }
func (emptyStore) Save(_ context.Context, _ *voicemail.VoicemailRecord) error   { return nil }

func (emptyStore) GetByID(_ context.Context, _ uint) (*voicemail.VoicemailRecord, error) {
	return nil, voicemail.ErrRecordNotFound
}

func (emptyStore) GetByExternalID(_ context.Context, _, _ string) (*voicemail.VoicemailRecord, error) {
	return nil, voicemail.ErrRecordNotFound
}

func (emptyStore) PendingDownloads(_ context.Context, _ int) ([]voicemail.VoicemailRecord, error) {
	return nil, nil
}

func (emptyStore) PendingTranscriptions(_ context.Context, _ int) ([]voicemail.VoicemailRecord, error) {
	return nil, nil
}

func (emptyStore) PendingSummaries(_ context.Context, _ int) ([]voicemail.VoicemailRecord, error) {
	return nil, nil
}

func (emptyStore) PendingNotifications(_ context.Context, _ time.Time, _ int) ([]voicemail.VoicemailRecord, error) {
	return nil, nil
}

func (emptyStore) MarkPendingNotificationsSkipped(_ context.Context) (int64, error) { return 0, nil }

type mapSettings map[string]string

func (store mapSettings) Get(_ context.Context, key, fallback string) string {
	value, ok := store[key]
	if !ok || value == "" {
		return fallback
	}

	return value
}

func (store mapSettings) Set(_ context.Context, key, value string) error {
	store[key] = value
	return nil
}

func (store mapSettings) All(_ context.Context) (map[string]string, error) {
	return store, nil
}

type countingGateway struct {
	fetches atomic.Int32
}

func (gateway *countingGateway) FetchVoicemails(_ context.Context, _ int) ([]placetel.Voicemail, error) {
	gateway.fetches.Add(1)
	return nil, nil
}

func (gateway *countingGateway) FetchVoicemailByID(_ context.Context, _ string) (*placetel.Voicemail, error) {
	return nil, nil
}

func (gateway *countingGateway) Download(_ context.Context, _, _ string) (string, error) {
	return "", nil
}

type noopTranscriber struct{}

func (noopTranscriber) Transcribe(_ context.Context, _, _ string) (*transcribe.Result, error) {
	return &transcribe.Result{}, nil
}

type noopSummarizer struct{}

func (noopSummarizer) Summarize(_ context.Context, _, _ string) (*summarize.Result, error) {
	return &summarize.Result{}, nil
}

type noopMailer struct{}

func (noopMailer) SendVoicemail(_ context.Context, _ *voicemail.VoicemailRecord, _ string) (string, error) {
	return "", nil
}

func newTestScheduler(settingStore settings.Store) (*Scheduler, *countingGateway) {
	gateway := &countingGateway{}

	pipeline := voicemail.NewPipelineService(
		emptyStore{},
		settingStore,
		gateway,
		noopTranscriber{},
		noopSummarizer{},
		noopMailer{},
	)

	return New(pipeline, settingStore), gateway
}

func TestSchedulerStartStop(t *testing.T) {
	sched, _ := newTestScheduler(mapSettings{})

	require.False(t, sched.Running())

	sched.Start(context.Background())
	require.True(t, sched.Running())

	// starting again is a no-op
	sched.Start(context.Background())
	require.True(t, sched.Running())

	sched.Stop()
	require.False(t, sched.Running())

	// stopping again is a no-op
	sched.Stop()
	require.False(t, sched.Running())
}

func TestSchedulerManualTrigger(t *testing.T) {
	sched, gateway := newTestScheduler(mapSettings{
		settings.KeySyncIntervalMinutes: "60",
	})

	sched.Start(context.Background())
	defer sched.Stop()

	require.Equal(t, int32(0), gateway.fetches.Load())

	sched.TriggerNow()

	require.Eventually(t, func() bool {
		return gateway.fetches.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSchedulerStopsWhenContextCanceled(t *testing.T) {
	sched, _ := newTestScheduler(mapSettings{})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	cancel()

	// Stop must not hang after the parent context already ended the loop.
	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestSchedulerRescheduleDoesNotBlock(t *testing.T) {
	sched, _ := newTestScheduler(mapSettings{})

	// superseding a pending reschedule must not deadlock, running or not
	sched.Reschedule(10)
	sched.Reschedule(0)
	sched.Reschedule(3)
}

func TestSchedulerRescheduleTakesEffectOnFollowingCycle(t *testing.T) {
	sched, gateway := newTestScheduler(mapSettings{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Drive the loop directly so the replacement interval can be shorter
	// than Reschedule's one-minute floor.
	sched.done = make(chan struct{})
	go sched.run(ctx, time.Hour)

	sched.queueReschedule(10 * time.Millisecond)

	// With the hour-long initial interval still in force, only the new
	// cadence can produce interval ticks this quickly.
	require.Eventually(t, func() bool {
		return gateway.fetches.Load() >= 2
	}, 5*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-sched.done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit after context cancellation")
	}
}
