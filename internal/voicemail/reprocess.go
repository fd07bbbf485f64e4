package voicemail

import (
	"context"
	"time"

	"go.uber.org/zap"

	"voicebox/internal/config"
	"voicebox/internal/logging"
	"voicebox/internal/settings"
)

const (
	stepDownload   = "download"
	stepTranscribe = "transcribe"
	stepSummarize  = "summarize"
	stepNotify     = "notify"

	stepOK      = "ok"
	stepFailed  = "failed"
	stepSkipped = "skipped"
)

// Reprocess resets every downstream field of one record to its initial
// state, then runs download, transcribe, summarize, and notify synchronously
// for that record. Each step appends to the returned trail; the first
// failure stops the run with later steps unexecuted.
func (pipelineService *PipelineService) Reprocess(ctx context.Context, id uint) ([]ReprocessStep, error) {
	record, err := pipelineService.Records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = pipelineService.resetDownstream(ctx, record)
	if err != nil {
		return nil, err
	}

	var trail []ReprocessStep

	if record.TranscriptionStatus == TranscriptionSkipped {
		trail = append(trail, ReprocessStep{
			Step:   stepTranscribe,
			Status: stepSkipped,
			Detail: "duration below minimum threshold",
		})

		return trail, nil
	}

	if record.LocalFilePath == "" {
		step := pipelineService.reprocessDownload(ctx, record)

		trail = append(trail, step)
		if step.Status == stepFailed {
			return trail, nil
		}
	}

	err = pipelineService.TranscribeRecord(ctx, record)
	if err != nil {
		trail = append(trail, ReprocessStep{Step: stepTranscribe, Status: stepFailed, Detail: err.Error()})

		return trail, nil
	}

	trail = append(trail, ReprocessStep{Step: stepTranscribe, Status: stepOK})

	skipped, err := pipelineService.SummarizeRecord(ctx, record)
	if err != nil {
		trail = append(trail, ReprocessStep{Step: stepSummarize, Status: stepFailed, Detail: err.Error()})

		return trail, nil
	}

	if skipped {
		trail = append(trail, ReprocessStep{Step: stepSummarize, Status: stepSkipped, Detail: "transcript below meaningful length"})
	} else {
		trail = append(trail, ReprocessStep{Step: stepSummarize, Status: stepOK})
	}

	trail = append(trail, pipelineService.reprocessNotify(ctx, record))

	return trail, nil
}

func (pipelineService *PipelineService) resetDownstream(ctx context.Context, record *VoicemailRecord) error {
	record.TranscriptionStatus = TranscriptionPending
	record.TranscriptionText = nil
	record.TranscriptionLanguage = ""
	record.TranscriptionConfidence = 0
	record.TranscriptionModel = ""
	record.TranscribedAt = nil

	record.CorrectedText = nil
	record.Summary = nil
	record.SummaryTranslated = nil
	record.SummaryModel = ""
	record.SummarizedAt = nil
	record.SummaryAttempts = 0
	record.Sentiment = ""
	record.Emotion = ""
	record.Category = ""
	record.Priority = ""
	record.EmailSubject = ""

	record.NotificationStatus = NotificationPending
	record.NotifiedAt = nil
	record.NotificationMsgID = ""

	if record.Duration < MinDurationSeconds {
		record.TranscriptionStatus = TranscriptionSkipped
		record.NotificationStatus = NotificationSkipped

		text := PlaceholderNoAudio
		if record.Duration > 0 {
			text = PlaceholderTooShort
		}

		record.TranscriptionText = &text
	}

	return pipelineService.Records.Save(ctx, record)
}

func (pipelineService *PipelineService) reprocessDownload(ctx context.Context, record *VoicemailRecord) ReprocessStep {
	if record.FileURL == "" {
		fresh, err := pipelineService.Gateway.FetchVoicemailByID(ctx, record.ExternalID)
		if err != nil {
			return ReprocessStep{Step: stepDownload, Status: stepFailed, Detail: err.Error()}
		}

		if fresh == nil || fresh.FileURL == "" {
			return ReprocessStep{Step: stepDownload, Status: stepFailed, Detail: "no remote audio URL available"}
		}

		record.FileURL = fresh.FileURL
	}

	if !pipelineService.downloadForRecord(ctx, record) {
		return ReprocessStep{Step: stepDownload, Status: stepFailed, Detail: "audio download failed"}
	}

	return ReprocessStep{Step: stepDownload, Status: stepOK}
}

func (pipelineService *PipelineService) reprocessNotify(ctx context.Context, record *VoicemailRecord) ReprocessStep {
	to := pipelineService.Settings.Get(ctx, settings.KeyNotificationEmail, "")
	if to == "" {
		return ReprocessStep{Step: stepNotify, Status: stepSkipped, Detail: "notification_email not configured"}
	}

	if config.Conf.MailAPIKey == "" || config.Conf.MailFrom == "" {
		return ReprocessStep{Step: stepNotify, Status: stepSkipped, Detail: "mail sender not configured"}
	}

	err := pipelineService.NotifyRecord(ctx, record, to)
	if err != nil {
		return ReprocessStep{Step: stepNotify, Status: stepFailed, Detail: err.Error()}
	}

	return ReprocessStep{Step: stepNotify, Status: stepOK}
}

// SetNotificationCutoff records the current instant as the email cutoff and
// marks every currently-pending notification skipped, suppressing backfill
// noise after rollout.
func (pipelineService *PipelineService) SetNotificationCutoff(ctx context.Context) (*CutoffOutcome, error) {
	cutoff := pipelineService.now()

	err := pipelineService.Settings.Set(ctx, settings.KeyEmailOnlyAfter, cutoff.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}

	skipped, err := pipelineService.Records.MarkPendingNotificationsSkipped(ctx)
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("Notification cutoff updated",
		zap.Time("cutoff", cutoff),
		zap.Int64("skipped", skipped),
	)

	return &CutoffOutcome{Cutoff: cutoff, Skipped: skipped}, nil
}
