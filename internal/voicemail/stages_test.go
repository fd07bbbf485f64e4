package voicemail_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voicebox/internal/placetel"
	"voicebox/internal/settings"
	"voicebox/internal/voicemail"
)

func pendingDownloadRecord(externalID, fileURL string) voicemail.VoicemailRecord {
	startedAt := time.Date(2025, 8, 10, 9, 30, 0, 0, time.UTC)

	return voicemail.VoicemailRecord{
		ExternalID:          externalID,
		Provider:            voicemail.ProviderPlacetel,
		Direction:           voicemail.DirectionIn,
		CallStatus:          voicemail.StatusVoicemail,
		FromNumber:          "01711234567",
		Duration:            45,
		StartedAt:           &startedAt,
		FileURL:             fileURL,
		TranscriptionStatus: voicemail.TranscriptionPending,
		NotificationStatus:  voicemail.NotificationPending,
	}
}

func transcribedRecord(externalID, text string) voicemail.VoicemailRecord {
	record := pendingDownloadRecord(externalID, "")
	record.LocalFilePath = "/tmp/voicemail_" + externalID + ".mp3"
	record.TranscriptionStatus = voicemail.TranscriptionCompleted
	record.TranscriptionText = strPtr(text)
	record.TranscriptionLanguage = "de"

	return record
}

func summarizedRecord(externalID string) voicemail.VoicemailRecord {
	record := transcribedRecord(externalID, "Guten Tag, hier ist Herr Schmidt wegen des Termins am Montag.")
	record.Summary = strPtr("Herr Schmidt ruft wegen des Montagstermins an.")
	record.EmailSubject = "Terminanfrage"

	return record
}

func TestRetryDownloadResolvesFreshURL(t *testing.T) {
	fixture := newPipelineFixture(t)
	id := fixture.addRecord(t, pendingDownloadRecord("77", ""))

	fixture.gateway.byID["77"] = &placetel.Voicemail{
		ID:      77,
		FileURL: "https://cdn.example.com/signed/fresh",
	}

	outcome, err := fixture.pipeline.RunRetryDownloads(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Retried)
	require.Equal(t, 1, outcome.Succeeded)
	require.Equal(t, 0, outcome.Failed)

	record, err := fixture.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "/tmp/voicemail_test.mp3", record.LocalFilePath)
}

func TestRetryDownloadFailsWhenVoicemailGone(t *testing.T) {
	fixture := newPipelineFixture(t)
	fixture.addRecord(t, pendingDownloadRecord("77", ""))

	outcome, err := fixture.pipeline.RunRetryDownloads(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Failed)
	require.Equal(t, 0, fixture.gateway.downloadCalls)
}

func TestTranscribePersistsProcessingBeforeRemoteCall(t *testing.T) {
	fixture := newPipelineFixture(t)

	record := pendingDownloadRecord("123", "https://cdn.example.com/signed/123")
	record.LocalFilePath = "/tmp/voicemail_123.mp3"
	id := fixture.addRecord(t, record)

	var statusDuringCall string

	fixture.transcriber.onCall = func() {
		stored, err := fixture.store.GetByID(context.Background(), id)
		require.NoError(t, err)
		statusDuringCall = stored.TranscriptionStatus
	}

	outcome, err := fixture.pipeline.RunTranscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Processed)
	require.Equal(t, voicemail.TranscriptionProcessing, statusDuringCall)

	stored, err := fixture.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, voicemail.TranscriptionCompleted, stored.TranscriptionStatus)
	require.NotNil(t, stored.TranscriptionText)
	require.Equal(t, "de", stored.TranscriptionLanguage)
	require.InDelta(t, 0.94, stored.TranscriptionConfidence, 0.001)
	require.NotNil(t, stored.TranscribedAt)
}

func TestTranscribeFailureIsNotRetriedAutomatically(t *testing.T) {
	fixture := newPipelineFixture(t)

	record := pendingDownloadRecord("123", "https://cdn.example.com/signed/123")
	record.LocalFilePath = "/tmp/voicemail_123.mp3"
	id := fixture.addRecord(t, record)

	fixture.transcriber.err = errTranscribeFailed

	outcome, err := fixture.pipeline.RunTranscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Failed)

	stored, err := fixture.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, voicemail.TranscriptionFailed, stored.TranscriptionStatus)

	outcome, err = fixture.pipeline.RunTranscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, outcome.Failed)
	require.Equal(t, 1, fixture.transcriber.calls)
}

func TestTranscribeStageRespectsToggle(t *testing.T) {
	fixture := newPipelineFixture(t)
	require.NoError(t, fixture.settings.Set(context.Background(), settings.KeyAutoTranscribe, "false"))

	record := pendingDownloadRecord("123", "")
	record.LocalFilePath = "/tmp/voicemail_123.mp3"
	fixture.addRecord(t, record)

	outcome, err := fixture.pipeline.RunTranscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "auto_transcribe disabled", outcome.Disabled)
	require.Equal(t, 0, fixture.transcriber.calls)
}

func TestSummarizeShortTranscriptSkipsModelCall(t *testing.T) {
	fixture := newPipelineFixture(t)
	id := fixture.addRecord(t, transcribedRecord("123", "hallo"))

	outcome, err := fixture.pipeline.RunSummarize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Skipped)
	require.Equal(t, 0, fixture.summarizer.calls)

	stored, err := fixture.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored.Summary)
	require.Equal(t, voicemail.PlaceholderNoMeaningfulContent, *stored.Summary)
	require.NotNil(t, stored.SummarizedAt)
}

func TestSummarizeSuccessStoresClassification(t *testing.T) {
	fixture := newPipelineFixture(t)
	id := fixture.addRecord(t, transcribedRecord("123", "Guten Tag, hier ist Herr Schmidt wegen des Termins am Montag."))

	outcome, err := fixture.pipeline.RunSummarize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Processed)

	stored, err := fixture.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored.Summary)
	require.Equal(t, "Herr Schmidt ruft wegen des Montagstermins an.", *stored.Summary)
	require.Equal(t, "neutral", stored.Sentiment)
	require.Equal(t, "appointment", stored.Category)
	require.Equal(t, "normal", stored.Priority)
	require.Equal(t, "Terminanfrage", stored.EmailSubject)
}

func TestSummarizeFailureStaysEligibleUntilAttemptCap(t *testing.T) {
	fixture := newPipelineFixture(t)
	id := fixture.addRecord(t, transcribedRecord("123", "Guten Tag, hier ist Herr Schmidt wegen des Termins am Montag."))

	fixture.summarizer.err = errSummarizeFailed

	for attempt := 1; attempt < voicemail.MaxSummaryAttempts; attempt++ {
		outcome, err := fixture.pipeline.RunSummarize(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, outcome.Failed)

		stored, err := fixture.store.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Nil(t, stored.Summary)
		require.Equal(t, attempt, stored.SummaryAttempts)
	}

	outcome, err := fixture.pipeline.RunSummarize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Failed)

	stored, err := fixture.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, voicemail.MaxSummaryAttempts, stored.SummaryAttempts)
	require.NotNil(t, stored.Summary)
	require.Equal(t, voicemail.PlaceholderSummaryUnavailable, *stored.Summary)

	outcome, err = fixture.pipeline.RunSummarize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, outcome.Failed)
	require.Equal(t, voicemail.MaxSummaryAttempts, fixture.summarizer.calls)
}

func TestNotifyGates(t *testing.T) {
	cases := []struct {
		name     string
		setup    func(t *testing.T, fixture *pipelineFixture)
		disabled string
	}{
		{
			name:     "auto email off by default",
			setup:    func(t *testing.T, fixture *pipelineFixture) {},
			disabled: "auto_email disabled",
		},
		{
			name: "no destination configured",
			setup: func(t *testing.T, fixture *pipelineFixture) {
				require.NoError(t, fixture.settings.Set(context.Background(), settings.KeyAutoEmail, "true"))
			},
			disabled: "notification_email not configured",
		},
		{
			name: "no sender credentials",
			setup: func(t *testing.T, fixture *pipelineFixture) {
				require.NoError(t, fixture.settings.Set(context.Background(), settings.KeyAutoEmail, "true"))
				require.NoError(t, fixture.settings.Set(context.Background(), settings.KeyNotificationEmail, "office@example.com"))
			},
			disabled: "mail sender not configured",
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newPipelineFixture(t)
			fixture.addRecord(t, summarizedRecord("123"))

			testCase.setup(t, fixture)

			outcome, err := fixture.pipeline.RunNotify(context.Background())
			require.NoError(t, err)
			require.Equal(t, testCase.disabled, outcome.Disabled)
			require.Empty(t, fixture.mailer.sent)
		})
	}
}

func TestNotifySendsAndRecordsMessageID(t *testing.T) {
	fixture := newPipelineFixture(t)
	fixture.enableMail(t)

	id := fixture.addRecord(t, summarizedRecord("123"))

	outcome, err := fixture.pipeline.RunNotify(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Sent)
	require.Equal(t, []string{"office@example.com"}, fixture.mailer.sent)

	stored, err := fixture.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, voicemail.NotificationSent, stored.NotificationStatus)
	require.Equal(t, "msg-1", stored.NotificationMsgID)
	require.NotNil(t, stored.NotifiedAt)
}

func TestNotifyFailureIsNotRetriedAutomatically(t *testing.T) {
	fixture := newPipelineFixture(t)
	fixture.enableMail(t)

	id := fixture.addRecord(t, summarizedRecord("123"))
	fixture.mailer.err = errMailFailed

	outcome, err := fixture.pipeline.RunNotify(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Failed)

	stored, err := fixture.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, voicemail.NotificationFailed, stored.NotificationStatus)

	fixture.mailer.err = nil

	outcome, err = fixture.pipeline.RunNotify(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, outcome.Sent)
}

func TestNotifyHonorsCutoff(t *testing.T) {
	fixture := newPipelineFixture(t)
	fixture.enableMail(t)

	old := summarizedRecord("1")
	oldStart := fixture.now.Add(-48 * time.Hour)
	old.StartedAt = &oldStart
	fixture.addRecord(t, old)

	fresh := summarizedRecord("2")
	freshStart := fixture.now.Add(-time.Hour)
	fresh.StartedAt = &freshStart
	freshID := fixture.addRecord(t, fresh)

	cutoff := fixture.now.Add(-2 * time.Hour)
	require.NoError(t, fixture.settings.Set(context.Background(), settings.KeyEmailOnlyAfter, cutoff.Format(time.RFC3339)))

	outcome, err := fixture.pipeline.RunNotify(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Sent)

	stored, err := fixture.store.GetByID(context.Background(), freshID)
	require.NoError(t, err)
	require.Equal(t, voicemail.NotificationSent, stored.NotificationStatus)
}

func TestNotifyCutoffKeepsRecordsWithoutStartTime(t *testing.T) {
	fixture := newPipelineFixture(t)
	fixture.enableMail(t)

	record := summarizedRecord("1")
	record.StartedAt = nil
	recordID := fixture.addRecord(t, record)

	cutoff := fixture.now.Add(-2 * time.Hour)
	require.NoError(t, fixture.settings.Set(context.Background(), settings.KeyEmailOnlyAfter, cutoff.Format(time.RFC3339)))

	outcome, err := fixture.pipeline.RunNotify(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Sent)

	stored, err := fixture.store.GetByID(context.Background(), recordID)
	require.NoError(t, err)
	require.Equal(t, voicemail.NotificationSent, stored.NotificationStatus)
}

func TestSetNotificationCutoffSkipsBacklog(t *testing.T) {
	fixture := newPipelineFixture(t)

	fixture.addRecord(t, summarizedRecord("1"))
	fixture.addRecord(t, summarizedRecord("2"))

	sent := summarizedRecord("3")
	sent.NotificationStatus = voicemail.NotificationSent
	fixture.addRecord(t, sent)

	outcome, err := fixture.pipeline.SetNotificationCutoff(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), outcome.Skipped)
	require.Equal(t, fixture.now, outcome.Cutoff)

	stored := fixture.settings.Get(context.Background(), settings.KeyEmailOnlyAfter, "")
	require.Equal(t, fixture.now.Format(time.RFC3339), stored)
}
