package voicemail

import (
	"context"
	"time"

	"voicebox/internal/placetel"
	"voicebox/internal/settings"
	"voicebox/internal/summarize"
	"voicebox/internal/transcribe"
)

// DefaultBatchLimit bounds how many records one stage invocation advances,
// keeping tick latency predictable.
const DefaultBatchLimit = 10

// MaxSyncWindowDays caps how far back a sync fetches history.
const MaxSyncWindowDays = 30

// fallbackSyncWindowDays is used when the stored last-sync timestamp cannot
// be parsed.
const fallbackSyncWindowDays = 7

// Gateway is the telephony provider surface the pipeline consumes.
type Gateway interface {
	FetchVoicemails(ctx context.Context, days int) ([]placetel.Voicemail, error)
	FetchVoicemailByID(ctx context.Context, externalID string) (*placetel.Voicemail, error)
	Download(ctx context.Context, externalID, fileURL string) (string, error)
}

// Transcriber converts local audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath, externalID string) (*transcribe.Result, error)
}

// Summarizer corrects, summarizes, and classifies a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, languageHint string) (*summarize.Result, error)
}

// Mailer delivers one record's notification and returns the delivery
// provider's message id.
type Mailer interface {
	SendVoicemail(ctx context.Context, record *VoicemailRecord, to string) (string, error)
}

// SyncOutcome reports one sync stage run.
type SyncOutcome struct {
	Synced          int `json:"synced"`
	New             int `json:"new"`
	Updated         int `json:"updated"`
	Downloaded      int `json:"downloaded"`
	SkippedByCutoff int `json:"skipped_by_cutoff"`
}

// DownloadOutcome reports one retry-download stage run.
type DownloadOutcome struct {
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// StageOutcome reports one transcribe or summarize stage run. Disabled is
// set when the stage's toggle turned it into a no-op.
type StageOutcome struct {
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Disabled  string `json:"disabled,omitempty"`
}

// NotifyOutcome reports one notify stage run. Disabled names the unmet gate
// when the stage was a no-op.
type NotifyOutcome struct {
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
	Disabled string `json:"disabled,omitempty"`
}

// CutoffOutcome reports a notification cutoff update.
type CutoffOutcome struct {
	Cutoff  time.Time `json:"cutoff"`
	Skipped int64     `json:"skipped"`
}

// ReprocessStep is one entry in a reprocess diagnostic trail.
type ReprocessStep struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// PipelineService advances voicemail records through their lifecycle. Every
// stage is idempotent: eligibility lives in status fields, so rerunning a
// stage with no new eligible records is a no-op.
type PipelineService struct {
	Records     Store
	Settings    settings.Store
	Gateway     Gateway
	Transcriber Transcriber
	Summarizer  Summarizer
	Mailer      Mailer

	Now func() time.Time
}

func NewPipelineService(
	records Store,
	settingStore settings.Store,
	gateway Gateway,
	transcriber Transcriber,
	summarizer Summarizer,
	mailer Mailer,
) *PipelineService {
	return &PipelineService{
		Records:     records,
		Settings:    settingStore,
		Gateway:     gateway,
		Transcriber: transcriber,
		Summarizer:  summarizer,
		Mailer:      mailer,
		Now:         time.Now,
	}
}

func (pipelineService *PipelineService) now() time.Time {
	if pipelineService.Now != nil {
		return pipelineService.Now().UTC()
	}

	return time.Now().UTC()
}
