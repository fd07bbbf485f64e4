package voicemail

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"voicebox/internal/logging"
	"voicebox/internal/placetel"
	metrics "voicebox/internal/prometheus"
	"voicebox/internal/settings"
)

// SyncWindowDays computes how many days of history to request. With no prior
// sync it covers the full cap; otherwise days-since-last-sync plus one day
// of buffer, clamped to [1, cap]. An unparsable stored timestamp falls back
// to a week.
func (pipelineService *PipelineService) SyncWindowDays(ctx context.Context) int {
	raw := pipelineService.Settings.Get(ctx, settings.KeyLastSyncAt, "")
	if raw == "" {
		logging.Logger.Info("No previous sync found, fetching full history window",
			zap.Int("days", MaxSyncWindowDays),
		)

		return MaxSyncWindowDays
	}

	lastSync, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logging.Logger.Warn("Failed to parse last sync timestamp",
			zap.String("value", raw),
			zap.String("error", err.Error()),
		)

		return fallbackSyncWindowDays
	}

	days := int(pipelineService.now().Sub(lastSync).Hours()/24) + 1
	if days < 1 {
		days = 1
	}

	if days > MaxSyncWindowDays {
		days = MaxSyncWindowDays
	}

	return days
}

// RunSync fetches the provider listing for the computed window and creates a
// record for every item not yet known. Eligible new records get one
// immediate download attempt; a failed download leaves the local path empty
// for the retry-download stage. The last-sync timestamp is updated
// unconditionally after the listing is processed.
func (pipelineService *PipelineService) RunSync(ctx context.Context) (*SyncOutcome, error) {
	return pipelineService.RunSyncDays(ctx, pipelineService.SyncWindowDays(ctx))
}

// RunSyncDays is RunSync with an explicit window, used by the manual sync
// endpoint.
func (pipelineService *PipelineService) RunSyncDays(ctx context.Context, days int) (*SyncOutcome, error) {
	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues("sync"))
	defer timer.ObserveDuration()

	items, err := pipelineService.Gateway.FetchVoicemails(ctx, days)
	if err != nil {
		return nil, err
	}

	cutoff := settings.GetTime(ctx, pipelineService.Settings, settings.KeyEmailOnlyAfter)
	outcome := &SyncOutcome{Synced: len(items)}

	for i := range items {
		item := &items[i]

		existing, err := pipelineService.Records.GetByExternalID(ctx, ProviderPlacetel, item.ExternalID())
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			logging.Logger.Error("Failed to look up record during sync",
				zap.String("external_id", item.ExternalID()),
				zap.String("error", err.Error()),
			)

			continue
		}

		if existing != nil {
			if pipelineService.refreshRemoteURL(ctx, existing, item) {
				outcome.Updated++
			}

			continue
		}

		record, err := pipelineService.createFromItem(ctx, item, cutoff)
		if err != nil {
			logging.Logger.Error("Failed to create record during sync",
				zap.String("external_id", item.ExternalID()),
				zap.String("error", err.Error()),
			)

			continue
		}

		outcome.New++

		if record.NotificationStatus == NotificationSkipped && record.TranscriptionStatus == TranscriptionPending {
			outcome.SkippedByCutoff++
		}

		if record.TranscriptionStatus == TranscriptionPending && record.FileURL != "" {
			if pipelineService.downloadForRecord(ctx, record) {
				outcome.Downloaded++
			}
		}
	}

	err = pipelineService.Settings.Set(ctx, settings.KeyLastSyncAt, pipelineService.now().Format(time.RFC3339))
	if err != nil {
		logging.Logger.Error("Failed to update last sync timestamp",
			zap.String("error", err.Error()),
		)
	}

	metrics.RecordsProcessed.WithLabelValues("sync", "new").Add(float64(outcome.New))
	metrics.RecordsProcessed.WithLabelValues("sync", "downloaded").Add(float64(outcome.Downloaded))

	logging.Logger.Info("Sync complete",
		zap.Int("synced", outcome.Synced),
		zap.Int("new", outcome.New),
		zap.Int("updated", outcome.Updated),
		zap.Int("downloaded", outcome.Downloaded),
		zap.Int("skipped_by_cutoff", outcome.SkippedByCutoff),
	)

	return outcome, nil
}

// createFromItem builds and persists a record for a listing item, applying
// the noise-duration short-circuit and the notification cutoff.
func (pipelineService *PipelineService) createFromItem(
	ctx context.Context,
	item *placetel.Voicemail,
	cutoff time.Time,
) (*VoicemailRecord, error) {
	startedAt := item.ReceivedTime()

	record := &VoicemailRecord{
		ExternalID:   item.ExternalID(),
		Provider:     ProviderPlacetel,
		Direction:    DirectionIn,
		CallStatus:   StatusVoicemail,
		FromNumber:   item.FromNumber,
		FromName:     item.FromName,
		ToNumber:     item.ToNumber.Number,
		ToNumberName: item.ToNumber.Name,
		Duration:     item.Duration,
		StartedAt:    startedAt,
		FileURL:      item.FileURL,
		Unread:       item.Unread,
	}

	if len(item.Raw) > 0 {
		record.ProviderPayload = datatypes.JSON(item.Raw)
	}

	if item.Duration < MinDurationSeconds {
		record.TranscriptionStatus = TranscriptionSkipped
		record.NotificationStatus = NotificationSkipped

		text := PlaceholderNoAudio
		if item.Duration > 0 {
			text = PlaceholderTooShort
		}

		record.TranscriptionText = &text
	} else {
		record.TranscriptionStatus = TranscriptionPending
		record.NotificationStatus = NotificationPending

		if !cutoff.IsZero() && startedAt != nil && startedAt.Before(cutoff) {
			record.NotificationStatus = NotificationSkipped
		}
	}

	err := pipelineService.Records.Create(ctx, record)
	if err != nil {
		return nil, err
	}

	return record, nil
}

// refreshRemoteURL stores a fresher signed URL on a known record that still
// lacks local audio.
func (pipelineService *PipelineService) refreshRemoteURL(
	ctx context.Context,
	record *VoicemailRecord,
	item *placetel.Voicemail,
) bool {
	if record.LocalFilePath != "" || item.FileURL == "" || item.FileURL == record.FileURL {
		return false
	}

	record.FileURL = item.FileURL

	err := pipelineService.Records.Save(ctx, record)
	if err != nil {
		logging.Logger.Error("Failed to refresh remote URL",
			zap.Uint("record_id", record.ID),
			zap.String("error", err.Error()),
		)

		return false
	}

	return true
}

// downloadForRecord is the best-effort immediate download after record
// creation. A failure is logged and leaves the record for the retry stage.
func (pipelineService *PipelineService) downloadForRecord(ctx context.Context, record *VoicemailRecord) bool {
	timer := prometheus.NewTimer(metrics.AudioDownloadDuration)
	defer timer.ObserveDuration()

	localPath, err := pipelineService.Gateway.Download(ctx, record.ExternalID, record.FileURL)
	if err != nil {
		logging.Logger.Error("Failed to download voicemail audio",
			zap.Uint("record_id", record.ID),
			zap.String("external_id", record.ExternalID),
			zap.String("error", err.Error()),
		)

		return false
	}

	record.LocalFilePath = localPath

	err = pipelineService.Records.Save(ctx, record)
	if err != nil {
		logging.Logger.Error("Failed to persist downloaded audio path",
			zap.Uint("record_id", record.ID),
			zap.String("error", err.Error()),
		)

		return false
	}

	return true
}
