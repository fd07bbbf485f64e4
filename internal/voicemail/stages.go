package voicemail

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"voicebox/internal/config"
	"voicebox/internal/logging"
	metrics "voicebox/internal/prometheus"
	"voicebox/internal/settings"
)

// RunRetryDownloads re-attempts audio downloads for records sync could not
// fetch. A record with no stored URL gets one fetch-by-id to resolve a
// fresh one; expired stored URLs are refreshed inside the gateway.
func (pipelineService *PipelineService) RunRetryDownloads(ctx context.Context) (*DownloadOutcome, error) {
	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues("retry_download"))
	defer timer.ObserveDuration()

	pending, err := pipelineService.Records.PendingDownloads(ctx, DefaultBatchLimit)
	if err != nil {
		return nil, err
	}

	outcome := &DownloadOutcome{Retried: len(pending)}
	if len(pending) == 0 {
		return outcome, nil
	}

	for i := range pending {
		record := &pending[i]

		if record.FileURL == "" {
			fresh, err := pipelineService.Gateway.FetchVoicemailByID(ctx, record.ExternalID)
			if err != nil || fresh == nil || fresh.FileURL == "" {
				logging.Logger.Warn("No remote URL available for record",
					zap.Uint("record_id", record.ID),
					zap.String("external_id", record.ExternalID),
				)

				outcome.Failed++

				continue
			}

			record.FileURL = fresh.FileURL
		}

		if pipelineService.downloadForRecord(ctx, record) {
			outcome.Succeeded++
		} else {
			outcome.Failed++
		}
	}

	metrics.RecordsProcessed.WithLabelValues("retry_download", "succeeded").Add(float64(outcome.Succeeded))
	metrics.RecordsProcessed.WithLabelValues("retry_download", "failed").Add(float64(outcome.Failed))

	logging.Logger.Info("Retry downloads complete",
		zap.Int("retried", outcome.Retried),
		zap.Int("succeeded", outcome.Succeeded),
		zap.Int("failed", outcome.Failed),
	)

	return outcome, nil
}

// RunTranscribe advances pending records with local audio through the
// transcription service. Failures are marked failed and are not retried
// automatically; an explicit reprocess must re-trigger them.
func (pipelineService *PipelineService) RunTranscribe(ctx context.Context) (*StageOutcome, error) {
	if !settings.GetBool(ctx, pipelineService.Settings, settings.KeyAutoTranscribe, "true") {
		return &StageOutcome{Disabled: "auto_transcribe disabled"}, nil
	}

	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues("transcribe"))
	defer timer.ObserveDuration()

	pending, err := pipelineService.Records.PendingTranscriptions(ctx, DefaultBatchLimit)
	if err != nil {
		return nil, err
	}

	outcome := &StageOutcome{}

	for i := range pending {
		record := &pending[i]

		err := pipelineService.TranscribeRecord(ctx, record)
		if err != nil {
			outcome.Failed++
		} else {
			outcome.Processed++
		}
	}

	metrics.RecordsProcessed.WithLabelValues("transcribe", "processed").Add(float64(outcome.Processed))
	metrics.RecordsProcessed.WithLabelValues("transcribe", "failed").Add(float64(outcome.Failed))

	logging.Logger.Info("Transcribe stage complete",
		zap.Int("processed", outcome.Processed),
		zap.Int("failed", outcome.Failed),
	)

	return outcome, nil
}

// TranscribeRecord runs the transcription service for one record. The
// processing marker is persisted before the remote call, so a crash mid-call
// is visible as "processing" rather than silently reverting to "pending".
func (pipelineService *PipelineService) TranscribeRecord(ctx context.Context, record *VoicemailRecord) error {
	record.TranscriptionStatus = TranscriptionProcessing

	err := pipelineService.Records.Save(ctx, record)
	if err != nil {
		return err
	}

	result, err := pipelineService.Transcriber.Transcribe(ctx, record.LocalFilePath, record.ExternalID)
	if err != nil {
		logging.Logger.Error("Failed to transcribe voicemail",
			zap.Uint("record_id", record.ID),
			zap.String("error", err.Error()),
		)

		record.TranscriptionStatus = TranscriptionFailed

		saveErr := pipelineService.Records.Save(ctx, record)
		if saveErr != nil {
			logging.Logger.Error("Failed to persist transcription failure",
				zap.Uint("record_id", record.ID),
				zap.String("error", saveErr.Error()),
			)
		}

		return err
	}

	now := pipelineService.now()
	record.TranscriptionText = &result.Text
	record.TranscriptionLanguage = result.Language
	record.TranscriptionConfidence = result.Confidence
	record.TranscriptionModel = result.Model
	record.TranscriptionStatus = TranscriptionCompleted
	record.TranscribedAt = &now

	return pipelineService.Records.Save(ctx, record)
}

// RunSummarize advances completed transcriptions through the summarization
// service. Failures leave the summary null so the record stays eligible,
// bounded by the per-record attempt cap.
func (pipelineService *PipelineService) RunSummarize(ctx context.Context) (*StageOutcome, error) {
	if !settings.GetBool(ctx, pipelineService.Settings, settings.KeyAutoSummarize, "true") {
		return &StageOutcome{Disabled: "auto_summarize disabled"}, nil
	}

	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues("summarize"))
	defer timer.ObserveDuration()

	pending, err := pipelineService.Records.PendingSummaries(ctx, DefaultBatchLimit)
	if err != nil {
		return nil, err
	}

	outcome := &StageOutcome{}

	for i := range pending {
		record := &pending[i]

		skipped, err := pipelineService.SummarizeRecord(ctx, record)
		switch {
		case err != nil:
			outcome.Failed++
		case skipped:
			outcome.Skipped++
		default:
			outcome.Processed++
		}
	}

	metrics.RecordsProcessed.WithLabelValues("summarize", "processed").Add(float64(outcome.Processed))
	metrics.RecordsProcessed.WithLabelValues("summarize", "failed").Add(float64(outcome.Failed))
	metrics.RecordsProcessed.WithLabelValues("summarize", "skipped").Add(float64(outcome.Skipped))

	logging.Logger.Info("Summarize stage complete",
		zap.Int("processed", outcome.Processed),
		zap.Int("failed", outcome.Failed),
		zap.Int("skipped", outcome.Skipped),
	)

	return outcome, nil
}

// SummarizeRecord runs the summarization service for one record. Transcripts
// too short to carry meaning are stamped with a placeholder summary without
// a remote call; the returned flag reports that skip.
func (pipelineService *PipelineService) SummarizeRecord(ctx context.Context, record *VoicemailRecord) (bool, error) {
	now := pipelineService.now()

	if !record.HasMeaningfulTranscript() {
		summary := PlaceholderNoMeaningfulContent
		record.Summary = &summary
		record.SummarizedAt = &now

		return true, pipelineService.Records.Save(ctx, record)
	}

	result, err := pipelineService.Summarizer.Summarize(ctx, *record.TranscriptionText, record.TranscriptionLanguage)
	if err != nil {
		logging.Logger.Error("Failed to summarize voicemail",
			zap.Uint("record_id", record.ID),
			zap.Int("attempt", record.SummaryAttempts+1),
			zap.String("error", err.Error()),
		)

		record.SummaryAttempts++

		if record.SummaryAttempts >= MaxSummaryAttempts {
			logging.Logger.Warn("Summary attempts exhausted, stamping degraded summary",
				zap.Uint("record_id", record.ID),
			)

			summary := PlaceholderSummaryUnavailable
			record.Summary = &summary
			record.SummarizedAt = &now
		}

		saveErr := pipelineService.Records.Save(ctx, record)
		if saveErr != nil {
			logging.Logger.Error("Failed to persist summarization failure",
				zap.Uint("record_id", record.ID),
				zap.String("error", saveErr.Error()),
			)
		}

		return false, err
	}

	record.CorrectedText = &result.CorrectedText
	record.Summary = &result.Summary
	record.SummaryTranslated = &result.SummaryTranslated
	record.SummaryModel = result.Model
	record.SummarizedAt = &now
	record.Sentiment = result.Sentiment
	record.Emotion = result.Emotion
	record.Category = result.Category
	record.Priority = result.Priority
	record.EmailSubject = result.EmailSubject

	return false, pipelineService.Records.Save(ctx, record)
}

// RunNotify emails summarized records. The stage is a documented no-op when
// the toggle is off, no destination is configured, or sender credentials are
// missing. Records received before the configured cutoff are excluded.
func (pipelineService *PipelineService) RunNotify(ctx context.Context) (*NotifyOutcome, error) {
	if !settings.GetBool(ctx, pipelineService.Settings, settings.KeyAutoEmail, "false") {
		return &NotifyOutcome{Disabled: "auto_email disabled"}, nil
	}

	to := pipelineService.Settings.Get(ctx, settings.KeyNotificationEmail, "")
	if to == "" {
		return &NotifyOutcome{Disabled: "notification_email not configured"}, nil
	}

	if config.Conf.MailAPIKey == "" || config.Conf.MailFrom == "" {
		return &NotifyOutcome{Disabled: "mail sender not configured"}, nil
	}

	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues("notify"))
	defer timer.ObserveDuration()

	cutoff := settings.GetTime(ctx, pipelineService.Settings, settings.KeyEmailOnlyAfter)

	pending, err := pipelineService.Records.PendingNotifications(ctx, cutoff, DefaultBatchLimit)
	if err != nil {
		return nil, err
	}

	outcome := &NotifyOutcome{}

	for i := range pending {
		record := &pending[i]

		err := pipelineService.NotifyRecord(ctx, record, to)
		if err != nil {
			outcome.Failed++
		} else {
			outcome.Sent++
		}
	}

	metrics.RecordsProcessed.WithLabelValues("notify", "sent").Add(float64(outcome.Sent))
	metrics.RecordsProcessed.WithLabelValues("notify", "failed").Add(float64(outcome.Failed))

	logging.Logger.Info("Notify stage complete",
		zap.Int("sent", outcome.Sent),
		zap.Int("failed", outcome.Failed),
	)

	return outcome, nil
}

// NotifyRecord sends one record's notification. A delivery failure is marked
// failed and is not retried automatically.
func (pipelineService *PipelineService) NotifyRecord(ctx context.Context, record *VoicemailRecord, to string) error {
	messageID, err := pipelineService.Mailer.SendVoicemail(ctx, record, to)
	if err != nil {
		record.NotificationStatus = NotificationFailed

		saveErr := pipelineService.Records.Save(ctx, record)
		if saveErr != nil {
			logging.Logger.Error("Failed to persist notification failure",
				zap.Uint("record_id", record.ID),
				zap.String("error", saveErr.Error()),
			)
		}

		return err
	}

	now := pipelineService.now()
	record.NotificationStatus = NotificationSent
	record.NotifiedAt = &now
	record.NotificationMsgID = messageID

	return pipelineService.Records.Save(ctx, record)
}
