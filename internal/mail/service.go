package mail

import (
	"context"
	"fmt"

	"github.com/resendlabs/resend-go"
	"go.uber.org/zap"

	"voicebox/internal/config"
	"voicebox/internal/logging"
	"voicebox/internal/voicemail"
)

type MailClient struct {
	Client *resend.Client
}

func NewClient() *MailClient {
	return &MailClient{
		Client: resend.NewClient(config.Conf.MailAPIKey),
	}
}

// SendVoicemail delivers the notification for one record and returns the
// delivery provider's message id.
func (mailClient *MailClient) SendVoicemail(
	ctx context.Context,
	record *voicemail.VoicemailRecord,
	to string,
) (string, error) {
	audioURL := PublicURL(record.ID)

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", config.Conf.MailFromName, config.Conf.MailFrom),
		To:      []string{to},
		Subject: Subject(record),
		Html:    HTMLBody(record, audioURL),
		Text:    PlainBody(record, audioURL),
	}

	res, err := mailClient.Client.Emails.Send(params)
	if err != nil {
		logging.Logger.Error("Failed to send voicemail notification",
			zap.Uint("record_id", record.ID),
			zap.String("to", to),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	logging.Logger.Info("Voicemail notification sent",
		zap.Uint("record_id", record.ID),
		zap.String("to", to),
		zap.String("message_id", res.Id),
	)

	return res.Id, nil
}
