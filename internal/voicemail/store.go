package voicemail

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("voicemail record not found")

// Store is the durable record surface the pipeline stages scan and mutate.
// Eligibility is expressed entirely through status fields, so repeated scans
// with no new eligible records are no-ops.
type Store interface {
	Create(ctx context.Context, record *VoicemailRecord) error
	Save(ctx context.Context, record *VoicemailRecord) error
	GetByID(ctx context.Context, id uint) (*VoicemailRecord, error)
	GetByExternalID(ctx context.Context, provider, externalID string) (*VoicemailRecord, error)

	// PendingDownloads returns records whose audio sync could not fetch:
	// transcription pending, no local path, duration at/above threshold.
	PendingDownloads(ctx context.Context, limit int) ([]VoicemailRecord, error)

	// PendingTranscriptions returns records with local audio awaiting
	// transcription.
	PendingTranscriptions(ctx context.Context, limit int) ([]VoicemailRecord, error)

	// PendingSummaries returns completed transcriptions with real text, no
	// summary yet, and attempts below the retry bound.
	PendingSummaries(ctx context.Context, limit int) ([]VoicemailRecord, error)

	// PendingNotifications returns summarized records awaiting email. A
	// non-zero cutoff excludes records started before it.
	PendingNotifications(ctx context.Context, cutoff time.Time, limit int) ([]VoicemailRecord, error)

	// MarkPendingNotificationsSkipped flips every pending notification to
	// skipped and reports how many were affected.
	MarkPendingNotificationsSkipped(ctx context.Context) (int64, error)
}
