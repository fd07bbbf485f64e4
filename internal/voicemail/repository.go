package voicemail

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"voicebox/internal/database"
	"voicebox/internal/logging"
)

var (
	ErrInvalidRecordResult      = errors.New("invalid result type, it should be pointer to VoicemailRecord struct")
	ErrInvalidRecordSliceResult = errors.New("invalid result type, it should be slice of VoicemailRecord")
)

type VoicemailRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *VoicemailRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &VoicemailRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

func (voicemailRepository *VoicemailRepository) Create(ctx context.Context, record *VoicemailRecord) error {
	_, err := voicemailRepository.CircuitBreaker.Execute(func() (any, error) {
		err := voicemailRepository.DBConn.WithContext(ctx).Create(record).Error
		if err != nil {
			logging.Logger.Error("[Create] Failed to create voicemail record",
				zap.String("external_id", record.ExternalID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return record, nil
	})

	return err
}

func (voicemailRepository *VoicemailRepository) Save(ctx context.Context, record *VoicemailRecord) error {
	_, err := voicemailRepository.CircuitBreaker.Execute(func() (any, error) {
		err := voicemailRepository.DBConn.WithContext(ctx).Save(record).Error
		if err != nil {
			logging.Logger.Error("[Save] Failed to persist voicemail record",
				zap.Uint("id", record.ID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return record, nil
	})

	return err
}

func (voicemailRepository *VoicemailRepository) GetByID(ctx context.Context, id uint) (*VoicemailRecord, error) {
	return voicemailRepository.getOne(ctx, "id = ?", id)
}

func (voicemailRepository *VoicemailRepository) GetByExternalID(
	ctx context.Context,
	provider, externalID string,
) (*VoicemailRecord, error) {
	return voicemailRepository.getOne(ctx, "provider = ? AND external_id = ?", provider, externalID)
}

func (voicemailRepository *VoicemailRepository) getOne(
	ctx context.Context,
	query string,
	args ...any,
) (*VoicemailRecord, error) {
	result, err := voicemailRepository.CircuitBreaker.Execute(func() (any, error) {
		var record VoicemailRecord

		err := voicemailRepository.DBConn.WithContext(ctx).
			Where(query, args...).
			First(&record).Error
		if err != nil {
			return nil, err
		}

		return &record, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}

		return nil, err
	}

	record, ok := result.(*VoicemailRecord)
	if !ok {
		return nil, ErrInvalidRecordResult
	}

	return record, nil
}

func (voicemailRepository *VoicemailRepository) PendingDownloads(
	ctx context.Context,
	limit int,
) ([]VoicemailRecord, error) {
	return voicemailRepository.scan(ctx, limit, func(db *gorm.DB) *gorm.DB {
		return db.
			Where("call_status = ?", StatusVoicemail).
			Where("transcription_status = ?", TranscriptionPending).
			Where("local_file_path = ''").
			Where("duration >= ?", MinDurationSeconds).
			Where("external_id <> ''")
	})
}

func (voicemailRepository *VoicemailRepository) PendingTranscriptions(
	ctx context.Context,
	limit int,
) ([]VoicemailRecord, error) {
	return voicemailRepository.scan(ctx, limit, func(db *gorm.DB) *gorm.DB {
		return db.
			Where("call_status = ?", StatusVoicemail).
			Where("transcription_status = ?", TranscriptionPending).
			Where("local_file_path <> ''").
			Where("duration >= ?", MinDurationSeconds)
	})
}

func (voicemailRepository *VoicemailRepository) PendingSummaries(
	ctx context.Context,
	limit int,
) ([]VoicemailRecord, error) {
	return voicemailRepository.scan(ctx, limit, func(db *gorm.DB) *gorm.DB {
		return db.
			Where("call_status = ?", StatusVoicemail).
			Where("transcription_status = ?", TranscriptionCompleted).
			Where("transcription_text IS NOT NULL").
			Where("transcription_text NOT IN ?", PlaceholderTexts).
			Where("summary IS NULL").
			Where("summary_attempts < ?", MaxSummaryAttempts)
	})
}

func (voicemailRepository *VoicemailRepository) PendingNotifications(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]VoicemailRecord, error) {
	return voicemailRepository.scan(ctx, limit, func(db *gorm.DB) *gorm.DB {
		db = db.
			Where("notification_status = ?", NotificationPending).
			Where("summary IS NOT NULL")

		if !cutoff.IsZero() {
			db = db.Where("started_at >= ? OR started_at IS NULL", cutoff)
		}

		return db
	})
}

func (voicemailRepository *VoicemailRepository) scan(
	ctx context.Context,
	limit int,
	filter func(*gorm.DB) *gorm.DB,
) ([]VoicemailRecord, error) {
	result, err := voicemailRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []VoicemailRecord

		err := filter(voicemailRepository.DBConn.WithContext(ctx).Model(&VoicemailRecord{})).
			Order("id ASC").
			Limit(limit).
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("failed to scan voicemail records", zap.String("error", err.Error()))
			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]VoicemailRecord)
	if !ok {
		return nil, ErrInvalidRecordSliceResult
	}

	return records, nil
}

func (voicemailRepository *VoicemailRepository) MarkPendingNotificationsSkipped(ctx context.Context) (int64, error) {
	result, err := voicemailRepository.CircuitBreaker.Execute(func() (any, error) {
		tx := voicemailRepository.DBConn.WithContext(ctx).
			Model(&VoicemailRecord{}).
			Where("notification_status = ?", NotificationPending).
			Update("notification_status", NotificationSkipped)
		if tx.Error != nil {
			logging.Logger.Error("failed to skip pending notifications", zap.String("error", tx.Error.Error()))
			return nil, tx.Error
		}

		return tx.RowsAffected, nil
	})
	if err != nil {
		return 0, err
	}

	affected, ok := result.(int64)
	if !ok {
		return 0, errors.New("invalid result type, it should be int64")
	}

	return affected, nil
}

// List supports the read API: optional transcription-status filter and a
// case-insensitive search over transcript, summary, and caller number.
func (voicemailRepository *VoicemailRepository) List(
	ctx context.Context,
	transcriptionStatus, search string,
	offset, limit int,
) ([]VoicemailRecord, error) {
	return voicemailRepository.scan(ctx, limit, func(db *gorm.DB) *gorm.DB {
		db = db.Order("started_at DESC NULLS LAST").Offset(offset)

		if transcriptionStatus != "" {
			db = db.Where("transcription_status = ?", transcriptionStatus)
		}

		if search != "" {
			pattern := "%" + search + "%"
			db = db.Where(
				"transcription_text ILIKE ? OR summary ILIKE ? OR from_number ILIKE ?",
				pattern, pattern, pattern,
			)
		}

		return db
	})
}

func (voicemailRepository *VoicemailRepository) Count(ctx context.Context) (int64, error) {
	result, err := voicemailRepository.CircuitBreaker.Execute(func() (any, error) {
		var count int64

		err := voicemailRepository.DBConn.WithContext(ctx).
			Model(&VoicemailRecord{}).
			Count(&count).Error
		if err != nil {
			return nil, err
		}

		return count, nil
	})
	if err != nil {
		return 0, err
	}

	count, ok := result.(int64)
	if !ok {
		return 0, errors.New("invalid result type, it should be int64")
	}

	return count, nil
}
