package voicemail

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"voicebox/internal/logging"
	"voicebox/internal/settings"
)

// TickOutcome collects the per-stage outcomes of one full pipeline pass.
type TickOutcome struct {
	Sync       *SyncOutcome     `json:"sync,omitempty"`
	Downloads  *DownloadOutcome `json:"downloads,omitempty"`
	Transcribe *StageOutcome    `json:"transcribe,omitempty"`
	Summarize  *StageOutcome    `json:"summarize,omitempty"`
	Notify     *NotifyOutcome   `json:"notify,omitempty"`
}

// RunAll executes the full stage sequence in fixed order. A stage failure is
// logged and never prevents the later stages from running.
func (pipelineService *PipelineService) RunAll(ctx context.Context) *TickOutcome {
	outcome := &TickOutcome{}

	var err error

	outcome.Sync, err = pipelineService.RunSync(ctx)
	if err != nil {
		logging.Logger.Error("Sync stage failed", zap.String("error", err.Error()))
	}

	outcome.Downloads, err = pipelineService.RunRetryDownloads(ctx)
	if err != nil {
		logging.Logger.Error("Retry downloads stage failed", zap.String("error", err.Error()))
	}

	outcome.Transcribe, err = pipelineService.RunTranscribe(ctx)
	if err != nil {
		logging.Logger.Error("Transcribe stage failed", zap.String("error", err.Error()))
	}

	outcome.Summarize, err = pipelineService.RunSummarize(ctx)
	if err != nil {
		logging.Logger.Error("Summarize stage failed", zap.String("error", err.Error()))
	}

	outcome.Notify, err = pipelineService.RunNotify(ctx)
	if err != nil {
		logging.Logger.Error("Notify stage failed", zap.String("error", err.Error()))
	}

	return outcome
}

// ProcessWebhookVoicemail is the event-triggered fast path. Signed audio
// URLs expire faster than any sane poll interval, so a voicemail-completed
// event fetches and downloads that single record immediately, then runs the
// processing stages for the whole pending backlog. Duplicate deliveries are
// idempotent: a record with local audio is skipped outright.
func (pipelineService *PipelineService) ProcessWebhookVoicemail(ctx context.Context, externalID string) error {
	existing, err := pipelineService.Records.GetByExternalID(ctx, ProviderPlacetel, externalID)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return err
	}

	if existing != nil && existing.LocalFilePath != "" {
		logging.Logger.Info("Webhook voicemail already downloaded, skipping",
			zap.String("external_id", externalID),
		)

		return nil
	}

	fresh, err := pipelineService.Gateway.FetchVoicemailByID(ctx, externalID)
	if err != nil {
		return err
	}

	if fresh == nil {
		logging.Logger.Warn("Webhook voicemail unknown to provider",
			zap.String("external_id", externalID),
		)

		return nil
	}

	record := existing
	if record == nil {
		cutoff := settings.GetTime(ctx, pipelineService.Settings, settings.KeyEmailOnlyAfter)

		record, err = pipelineService.createFromItem(ctx, fresh, cutoff)
		if err != nil {
			return err
		}
	} else {
		pipelineService.refreshRemoteURL(ctx, record, fresh)
	}

	if record.TranscriptionStatus == TranscriptionPending && record.FileURL != "" {
		pipelineService.downloadForRecord(ctx, record)
	}

	pipelineService.runBacklog(ctx)

	return nil
}

// runBacklog runs the processing stages once so an urgent voicemail is
// classified immediately and any other backlog is caught up with it.
func (pipelineService *PipelineService) runBacklog(ctx context.Context) {
	_, err := pipelineService.RunTranscribe(ctx)
	if err != nil {
		logging.Logger.Error("Backlog transcribe failed", zap.String("error", err.Error()))
	}

	_, err = pipelineService.RunSummarize(ctx)
	if err != nil {
		logging.Logger.Error("Backlog summarize failed", zap.String("error", err.Error()))
	}

	_, err = pipelineService.RunNotify(ctx)
	if err != nil {
		logging.Logger.Error("Backlog notify failed", zap.String("error", err.Error()))
	}
}
