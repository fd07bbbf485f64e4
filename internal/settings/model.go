package settings

import "time"

type Setting struct {
	ID        uint       `gorm:"column:id;primaryKey"        json:"id"`
	Key       string     `gorm:"column:key;uniqueIndex"      json:"key"`
	Value     string     `gorm:"column:value"                json:"value"`
	UpdatedAt *time.Time `gorm:"column:updated_at"           json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// Keys the pipeline and scheduler read at runtime.
const (
	KeySyncIntervalMinutes = "sync_interval_minutes"
	KeyAutoTranscribe      = "auto_transcribe"
	KeyAutoSummarize       = "auto_summarize"
	KeyAutoEmail           = "auto_email"
	KeyNotificationEmail   = "notification_email"
	KeyLastSyncAt          = "last_sync_at"
	KeyEmailOnlyAfter      = "email_only_after"
)
