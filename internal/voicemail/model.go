package voicemail

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// VoicemailRecord tracks one provider call event end-to-end through the
// pipeline. (Provider, ExternalID) is unique.
type VoicemailRecord struct {
	ID         uint   `gorm:"column:id;primaryKey"                                    json:"id"`
	ExternalID string `gorm:"column:external_id;uniqueIndex:idx_provider_external"    json:"external_id"`
	Provider   string `gorm:"column:provider;uniqueIndex:idx_provider_external"       json:"provider"`

	Direction    string     `gorm:"column:direction"      json:"direction"`
	CallStatus   string     `gorm:"column:call_status"    json:"call_status"`
	FromNumber   string     `gorm:"column:from_number"    json:"from_number"`
	FromName     string     `gorm:"column:from_name"      json:"from_name"`
	ToNumber     string     `gorm:"column:to_number"      json:"to_number"`
	ToNumberName string     `gorm:"column:to_number_name" json:"to_number_name"`
	Duration     int        `gorm:"column:duration"       json:"duration"`
	StartedAt    *time.Time `gorm:"column:started_at"     json:"started_at"`
	AnsweredAt   *time.Time `gorm:"column:answered_at"    json:"answered_at"`
	EndedAt      *time.Time `gorm:"column:ended_at"       json:"ended_at"`

	FileURL       string `gorm:"column:file_url"        json:"file_url"`
	LocalFilePath string `gorm:"column:local_file_path" json:"local_file_path"`
	Unread        bool   `gorm:"column:unread"          json:"unread"`

	TranscriptionStatus     string     `gorm:"column:transcription_status"     json:"transcription_status"`
	TranscriptionText       *string    `gorm:"column:transcription_text"       json:"transcription_text"`
	TranscriptionLanguage   string     `gorm:"column:transcription_language"   json:"transcription_language"`
	TranscriptionConfidence float64    `gorm:"column:transcription_confidence" json:"transcription_confidence"`
	TranscriptionModel      string     `gorm:"column:transcription_model"      json:"transcription_model"`
	TranscribedAt           *time.Time `gorm:"column:transcribed_at"           json:"transcribed_at"`

	CorrectedText     *string    `gorm:"column:corrected_text"     json:"corrected_text"`
	Summary           *string    `gorm:"column:summary"            json:"summary"`
	SummaryTranslated *string    `gorm:"column:summary_translated" json:"summary_translated"`
	SummaryModel      string     `gorm:"column:summary_model"      json:"summary_model"`
	SummarizedAt      *time.Time `gorm:"column:summarized_at"      json:"summarized_at"`
	SummaryAttempts   int        `gorm:"column:summary_attempts"   json:"summary_attempts"`
	Sentiment         string     `gorm:"column:sentiment"          json:"sentiment"`
	Emotion           string     `gorm:"column:emotion"            json:"emotion"`
	Category          string     `gorm:"column:category"           json:"category"`
	Priority          string     `gorm:"column:priority"           json:"priority"`
	EmailSubject      string     `gorm:"column:email_subject"      json:"email_subject"`

	NotificationStatus string     `gorm:"column:notification_status"     json:"notification_status"`
	NotifiedAt         *time.Time `gorm:"column:notified_at"             json:"notified_at"`
	NotificationMsgID  string     `gorm:"column:notification_message_id" json:"notification_message_id"`

	ProviderPayload datatypes.JSON `gorm:"column:provider_payload;type:jsonb" json:"provider_payload,omitempty"`

	CreatedAt *time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (VoicemailRecord) TableName() string {
	return "voicemail_records"
}

const (
	TranscriptionPending    = "pending"
	TranscriptionProcessing = "processing"
	TranscriptionCompleted  = "completed"
	TranscriptionFailed     = "failed"
	TranscriptionSkipped    = "skipped"
)

const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationSkipped = "skipped"
)

const (
	ProviderPlacetel = "placetel"

	DirectionIn     = "in"
	StatusVoicemail = "voicemail"
)

// Voicemails shorter than this are hangups or line noise, not messages.
const MinDurationSeconds = 2

// MinTranscriptLength is the trimmed transcript length below which the
// summarize stage stamps a placeholder instead of calling the LLM.
const MinTranscriptLength = 20

// MaxSummaryAttempts bounds implicit summarize retries; after this many
// failures the record is stamped with a degraded summary and dropped from
// the eligible set.
const MaxSummaryAttempts = 5

const (
	PlaceholderNoAudio             = "[No audio]"
	PlaceholderTooShort            = "[Too short]"
	PlaceholderNoAudioContent      = "[No audio content]"
	PlaceholderNoMeaningfulContent = "[No meaningful content]"
	PlaceholderSummaryUnavailable  = "[Summary unavailable]"
)

// PlaceholderTexts are transcription values that must never reach the
// summarizer.
var PlaceholderTexts = []string{
	PlaceholderNoAudio,
	PlaceholderTooShort,
	PlaceholderNoAudioContent,
}

func IsPlaceholderText(text string) bool {
	for _, placeholder := range PlaceholderTexts {
		if text == placeholder {
			return true
		}
	}

	return false
}

// HasMeaningfulTranscript reports whether the record's transcript is worth
// an LLM call.
func (record *VoicemailRecord) HasMeaningfulTranscript() bool {
	if record.TranscriptionText == nil {
		return false
	}

	if IsPlaceholderText(*record.TranscriptionText) {
		return false
	}

	return len(strings.TrimSpace(*record.TranscriptionText)) >= MinTranscriptLength
}
