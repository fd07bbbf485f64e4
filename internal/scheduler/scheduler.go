package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"voicebox/internal/logging"
	metrics "voicebox/internal/prometheus"
	"voicebox/internal/settings"
	"voicebox/internal/voicemail"
)

// DefaultIntervalMinutes is the tick cadence when no interval setting is
// stored. It is kept short so voicemails are picked up before their signed
// URLs expire.
const DefaultIntervalMinutes = 5

// Scheduler drives the full pipeline at a recurring interval. It is an
// explicit owned handle with stopped and running states, a single periodic
// job for the process's lifetime. Ticks run the stage sequence to
// completion; a slow tick may overlap the next trigger, which the pipeline's
// status-field idempotence tolerates.
type Scheduler struct {
	Pipeline *voicemail.PipelineService
	Settings settings.Store

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	reschedule chan time.Duration
	trigger    chan struct{}
}

func New(pipeline *voicemail.PipelineService, settingStore settings.Store) *Scheduler {
	return &Scheduler{
		Pipeline:   pipeline,
		Settings:   settingStore,
		reschedule: make(chan time.Duration, 1),
		trigger:    make(chan struct{}, 1),
	}
}

// Start transitions the scheduler to running and launches the ticker loop.
// Starting an already-running scheduler is a no-op.
func (scheduler *Scheduler) Start(ctx context.Context) {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()

	if scheduler.running {
		return
	}

	interval := scheduler.intervalFromSettings(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	scheduler.done = make(chan struct{})
	scheduler.running = true

	go scheduler.run(runCtx, interval)

	logging.Logger.Info("Scheduler started",
		zap.Duration("interval", interval),
	)
}

// Stop transitions the scheduler back to stopped and waits for the loop to
// exit. Stopping a stopped scheduler is a no-op.
func (scheduler *Scheduler) Stop() {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()

	if !scheduler.running {
		return
	}

	scheduler.cancel()
	<-scheduler.done
	scheduler.running = false

	logging.Logger.Info("Scheduler stopped")
}

// Running reports the scheduler state.
func (scheduler *Scheduler) Running() bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()

	return scheduler.running
}

// Reschedule replaces the periodic interval. It takes effect on the
// following cycle, not retroactively.
func (scheduler *Scheduler) Reschedule(minutes int) {
	if minutes < 1 {
		minutes = 1
	}

	scheduler.queueReschedule(time.Duration(minutes) * time.Minute)

	logging.Logger.Info("Scheduler rescheduled",
		zap.Int("interval_minutes", minutes),
	)
}

func (scheduler *Scheduler) queueReschedule(interval time.Duration) {
	select {
	case scheduler.reschedule <- interval:
	default:
		// A pending reschedule is superseded; drain and replace it.
		select {
		case <-scheduler.reschedule:
		default:
		}
		scheduler.reschedule <- interval
	}
}

// TriggerNow queues one immediate tick outside the periodic cadence. A tick
// already queued absorbs the request.
func (scheduler *Scheduler) TriggerNow() {
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

func (scheduler *Scheduler) run(ctx context.Context, interval time.Duration) {
	defer close(scheduler.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case newInterval := <-scheduler.reschedule:
			ticker.Reset(newInterval)
		case <-scheduler.trigger:
			scheduler.tick(ctx, "manual")
		case <-ticker.C:
			scheduler.tick(ctx, "interval")
		}
	}
}

func (scheduler *Scheduler) tick(ctx context.Context, trigger string) {
	defer scheduler.handlePanic()

	metrics.TicksTotal.WithLabelValues(trigger).Inc()

	start := time.Now()
	scheduler.Pipeline.RunAll(ctx)

	logging.Logger.Info("Pipeline tick complete",
		zap.String("trigger", trigger),
		zap.Duration("duration", time.Since(start)),
	)
}

func (scheduler *Scheduler) intervalFromSettings(ctx context.Context) time.Duration {
	raw := scheduler.Settings.Get(ctx, settings.KeySyncIntervalMinutes, strconv.Itoa(DefaultIntervalMinutes))

	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 1 {
		minutes = DefaultIntervalMinutes
	}

	return time.Duration(minutes) * time.Minute
}

func (scheduler *Scheduler) handlePanic() {
	if r := recover(); r != nil {
		logging.Logger.Error("panic in pipeline tick",
			zap.Any("recover", r),
		)
	}
}
