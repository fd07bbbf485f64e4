package voicemail_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voicebox/internal/config"
	"voicebox/internal/placetel"
	"voicebox/internal/summarize"
	"voicebox/internal/transcribe"
	"voicebox/internal/voicemail"
)

// memoryStore keeps records in insertion order and hands out copies, so
// stage code mutating a record without saving it is caught by assertions.
type memoryStore struct {
	mu      sync.Mutex
	nextID  uint
	order   []uint
	records map[uint]voicemail.VoicemailRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[uint]voicemail.VoicemailRecord)}
}

func (store *memoryStore) Create(_ context.Context, record *voicemail.VoicemailRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.nextID++
	record.ID = store.nextID
	store.order = append(store.order, record.ID)
	store.records[record.ID] = *record

	return nil
}

func (store *memoryStore) Save(_ context.Context, record *voicemail.VoicemailRecord) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	_, ok := store.records[record.ID]
	if !ok {
		return voicemail.ErrRecordNotFound
	}

	store.records[record.ID] = *record

	return nil
}

func (store *memoryStore) GetByID(_ context.Context, id uint) (*voicemail.VoicemailRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	record, ok := store.records[id]
	if !ok {
		return nil, voicemail.ErrRecordNotFound
	}

	return &record, nil
}

func (store *memoryStore) GetByExternalID(_ context.Context, provider, externalID string) (*voicemail.VoicemailRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, id := range store.order {
		record := store.records[id]
		if record.Provider == provider && record.ExternalID == externalID {
			return &record, nil
		}
	}

	return nil, voicemail.ErrRecordNotFound
}

func (store *memoryStore) all() []voicemail.VoicemailRecord {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := make([]voicemail.VoicemailRecord, 0, len(store.order))
	for _, id := range store.order {
		out = append(out, store.records[id])
	}

	return out
}

func (store *memoryStore) PendingDownloads(_ context.Context, limit int) ([]voicemail.VoicemailRecord, error) {
	var out []voicemail.VoicemailRecord

	for _, record := range store.all() {
		if len(out) == limit {
			break
		}

		if record.TranscriptionStatus == voicemail.TranscriptionPending &&
			record.LocalFilePath == "" &&
			record.Duration >= voicemail.MinDurationSeconds {
			out = append(out, record)
		}
	}

	return out, nil
}

func (store *memoryStore) PendingTranscriptions(_ context.Context, limit int) ([]voicemail.VoicemailRecord, error) {
	var out []voicemail.VoicemailRecord

	for _, record := range store.all() {
		if len(out) == limit {
			break
		}

		if record.TranscriptionStatus == voicemail.TranscriptionPending && record.LocalFilePath != "" {
			out = append(out, record)
		}
	}

	return out, nil
}

func (store *memoryStore) PendingSummaries(_ context.Context, limit int) ([]voicemail.VoicemailRecord, error) {
	var out []voicemail.VoicemailRecord

	for _, record := range store.all() {
		if len(out) == limit {
			break
		}

		if record.TranscriptionStatus == voicemail.TranscriptionCompleted &&
			record.TranscriptionText != nil &&
			strings.TrimSpace(*record.TranscriptionText) != "" &&
			record.Summary == nil &&
			record.SummaryAttempts < voicemail.MaxSummaryAttempts {
			out = append(out, record)
		}
	}

	return out, nil
}

func (store *memoryStore) PendingNotifications(_ context.Context, cutoff time.Time, limit int) ([]voicemail.VoicemailRecord, error) {
	var out []voicemail.VoicemailRecord

	for _, record := range store.all() {
		if len(out) == limit {
			break
		}

		if record.NotificationStatus != voicemail.NotificationPending || record.Summary == nil {
			continue
		}

		if !cutoff.IsZero() && record.StartedAt != nil && record.StartedAt.Before(cutoff) {
			continue
		}

		out = append(out, record)
	}

	return out, nil
}

func (store *memoryStore) MarkPendingNotificationsSkipped(_ context.Context) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var count int64

	for id, record := range store.records {
		if record.NotificationStatus == voicemail.NotificationPending {
			record.NotificationStatus = voicemail.NotificationSkipped
			store.records[id] = record
			count++
		}
	}

	return count, nil
}

type memorySettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemorySettings() *memorySettings {
	return &memorySettings{values: make(map[string]string)}
}

func (store *memorySettings) Get(_ context.Context, key, fallback string) string {
	store.mu.Lock()
	defer store.mu.Unlock()

	value, ok := store.values[key]
	if !ok || value == "" {
		return fallback
	}

	return value
}

func (store *memorySettings) Set(_ context.Context, key, value string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.values[key] = value

	return nil
}

func (store *memorySettings) All(_ context.Context) (map[string]string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := make(map[string]string, len(store.values))
	for key, value := range store.values {
		out[key] = value
	}

	return out, nil
}

type stubGateway struct {
	mu sync.Mutex

	items []placetel.Voicemail
	byID  map[string]*placetel.Voicemail

	downloadPath string
	downloadErr  error

	fetchCalls    int
	fetchIDCalls  int
	downloadCalls int
}

func (gateway *stubGateway) FetchVoicemails(_ context.Context, _ int) ([]placetel.Voicemail, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()

	gateway.fetchCalls++

	return gateway.items, nil
}

func (gateway *stubGateway) FetchVoicemailByID(_ context.Context, externalID string) (*placetel.Voicemail, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()

	gateway.fetchIDCalls++

	item, ok := gateway.byID[externalID]
	if !ok {
		return nil, nil
	}

	return item, nil
}

func (gateway *stubGateway) Download(_ context.Context, _, _ string) (string, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()

	gateway.downloadCalls++

	if gateway.downloadErr != nil {
		return "", gateway.downloadErr
	}

	return gateway.downloadPath, nil
}

type stubTranscriber struct {
	mu     sync.Mutex
	result *transcribe.Result
	err    error
	calls  int

	// onCall observes the store state at call time.
	onCall func()
}

func (transcriber *stubTranscriber) Transcribe(_ context.Context, _, _ string) (*transcribe.Result, error) {
	transcriber.mu.Lock()
	transcriber.calls++
	onCall := transcriber.onCall
	transcriber.mu.Unlock()

	if onCall != nil {
		onCall()
	}

	if transcriber.err != nil {
		return nil, transcriber.err
	}

	return transcriber.result, nil
}

type stubSummarizer struct {
	mu     sync.Mutex
	result *summarize.Result
	err    error
	calls  int
}

func (summarizer *stubSummarizer) Summarize(_ context.Context, _, _ string) (*summarize.Result, error) {
	summarizer.mu.Lock()
	summarizer.calls++
	summarizer.mu.Unlock()

	if summarizer.err != nil {
		return nil, summarizer.err
	}

	return summarizer.result, nil
}

type stubMailer struct {
	mu    sync.Mutex
	msgID string
	err   error
	sent  []string
}

func (mailer *stubMailer) SendVoicemail(_ context.Context, _ *voicemail.VoicemailRecord, to string) (string, error) {
	mailer.mu.Lock()
	defer mailer.mu.Unlock()

	if mailer.err != nil {
		return "", mailer.err
	}

	mailer.sent = append(mailer.sent, to)

	return mailer.msgID, nil
}

type pipelineFixture struct {
	pipeline    *voicemail.PipelineService
	store       *memoryStore
	settings    *memorySettings
	gateway     *stubGateway
	transcriber *stubTranscriber
	summarizer  *stubSummarizer
	mailer      *stubMailer
	now         time.Time
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	fixture := &pipelineFixture{
		store:    newMemoryStore(),
		settings: newMemorySettings(),
		gateway: &stubGateway{
			byID:         make(map[string]*placetel.Voicemail),
			downloadPath: "/tmp/voicemail_test.mp3",
		},
		transcriber: &stubTranscriber{
			result: &transcribe.Result{
				Text:       "Guten Tag, hier ist Herr Schmidt wegen des Termins am Montag.",
				Language:   "de",
				Confidence: 0.94,
				Model:      "whisper-1",
			},
		},
		summarizer: &stubSummarizer{
			result: &summarize.Result{
				CorrectedText:     "Guten Tag, hier ist Herr Schmidt wegen des Termins am Montag.",
				Summary:           "Herr Schmidt ruft wegen des Montagstermins an.",
				SummaryTranslated: "Mr. Schmidt is calling about the Monday appointment.",
				Sentiment:         "neutral",
				Emotion:           "calm",
				Category:          "appointment",
				Priority:          "normal",
				EmailSubject:      "Terminanfrage",
				Model:             "gpt-4o-mini",
			},
		},
		mailer: &stubMailer{msgID: "msg-1"},
		now:    time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC),
	}

	fixture.pipeline = voicemail.NewPipelineService(
		fixture.store,
		fixture.settings,
		fixture.gateway,
		fixture.transcriber,
		fixture.summarizer,
		fixture.mailer,
	)
	fixture.pipeline.Now = func() time.Time { return fixture.now }

	return fixture
}

// enableMail turns on every notification gate and restores the global mail
// config afterwards.
func (fixture *pipelineFixture) enableMail(t *testing.T) {
	t.Helper()

	ctx := context.Background()

	_ = fixture.settings.Set(ctx, "auto_email", "true")
	_ = fixture.settings.Set(ctx, "notification_email", "office@example.com")

	prevKey := config.Conf.MailAPIKey
	prevFrom := config.Conf.MailFrom
	config.Conf.MailAPIKey = "re_test_key"
	config.Conf.MailFrom = "voicemail@example.com"

	t.Cleanup(func() {
		config.Conf.MailAPIKey = prevKey
		config.Conf.MailFrom = prevFrom
	})
}

func (fixture *pipelineFixture) addRecord(t *testing.T, record voicemail.VoicemailRecord) uint {
	t.Helper()

	err := fixture.store.Create(context.Background(), &record)
	if err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}

	return record.ID
}

func listingItem(id int64, duration int, fileURL string) placetel.Voicemail {
	return placetel.Voicemail{
		ID:         id,
		FromNumber: "01711234567",
		FromName:   "Schmidt",
		ToNumber:   placetel.NumberRef{Number: "+4930555000", Name: "Office"},
		Duration:   duration,
		ReceivedAt: "2025-08-10T09:30:00Z",
		FileURL:    fileURL,
		Unread:     true,
	}
}

func strPtr(value string) *string {
	return &value
}

var (
	errDownloadFailed   = errors.New("download failed")
	errTranscribeFailed = errors.New("transcription service unavailable")
	errSummarizeFailed  = errors.New("completion service unavailable")
	errMailFailed       = errors.New("delivery rejected")
)
