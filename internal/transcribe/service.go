package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"voicebox/internal/circuitbreak"
	"voicebox/internal/config"
	"voicebox/internal/logging"
)

// TooShortText is the transcript stored when the remote service reports the
// audio is too short to transcribe. It is a result, not an error, so the
// record completes instead of failing.
const TooShortText = "[No audio content]"

var ErrInvalidResultType = errors.New("invalid transcription result type")

// Result is one finished transcription.
type Result struct {
	Text       string
	Language   string
	Confidence float64
	Model      string
}

type transcriptionSegment struct {
	AvgLogprob float64 `json:"avg_logprob"`
}

type verboseTranscription struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Segments []transcriptionSegment `json:"segments"`
}

type TranscriberClient struct {
	Client         *openai.Client
	CircuitBreaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient() *TranscriberClient {
	opts := []option.RequestOption{
		option.WithBaseURL(config.Conf.TranscriberBaseUrl),
		option.WithAPIKey(config.Conf.TranscriberAPIKey),
		option.WithRequestTimeout(time.Duration(config.Conf.TranscriberTimeout) * time.Second),
	}

	client := openai.NewClient(opts...)

	return &TranscriberClient{
		Client:         &client,
		CircuitBreaker: newTranscriberCircuitBreaker(),
	}
}

func newTranscriberCircuitBreaker() *gobreaker.CircuitBreaker[[]byte] {
	settings := gobreaker.Settings{
		Name:     "TranscriberClient",
		Interval: time.Duration(config.Conf.TranscriberIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.TranscriberConsecutiveFailuresCB
		},
		IsSuccessful: func(err error) bool {
			// Too-short audio is an input problem, not a service outage.
			return err == nil || isTooShortErr(err)
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.TranscriberService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[[]byte](settings)
}

// Transcribe sends the local audio file to the speech-to-text service and
// returns the parsed transcript. A too-short recording yields the TooShortText
// placeholder result rather than an error.
func (transcriberClient *TranscriberClient) Transcribe(
	ctx context.Context,
	filePath, externalID string,
) (*Result, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("Starting voice transcription",
		zap.String("external_id", externalID),
		zap.String("file_path", filePath),
		zap.Int("file_size", len(content)),
	)

	raw, err := transcriberClient.CircuitBreaker.Execute(func() ([]byte, error) {
		return transcriberClient.doTranscriptionRequest(ctx, content, externalID)
	})
	if err != nil {
		if isTooShortErr(err) {
			logging.Logger.Info("Audio too short to transcribe",
				zap.String("external_id", externalID),
			)

			return &Result{
				Text:       TooShortText,
				Language:   "unknown",
				Confidence: 0,
				Model:      config.Conf.TranscriberModel,
			}, nil
		}

		return nil, err
	}

	var verbose verboseTranscription

	err = json.Unmarshal(raw, &verbose)
	if err != nil {
		return nil, err
	}

	return &Result{
		Text:       strings.TrimSpace(verbose.Text),
		Language:   verbose.Language,
		Confidence: confidenceFromSegments(verbose.Segments),
		Model:      config.Conf.TranscriberModel,
	}, nil
}

func (transcriberClient *TranscriberClient) doTranscriptionRequest(
	ctx context.Context,
	content []byte,
	externalID string,
) ([]byte, error) {
	var resultBytes []byte

	if ctx.Err() != nil {
		logging.Logger.Warn("[doTranscriptionRequest] Context already canceled before starting request",
			zap.String("external_id", externalID),
			zap.Error(ctx.Err()),
		)

		return nil, ctx.Err()
	}

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				logging.Logger.Warn("[doTranscriptionRequest] Context canceled during retry",
					zap.String("external_id", externalID),
					zap.Error(ctx.Err()),
				)

				return ctx.Err()
			}

			body, contentType, err := createTranscriptionBodyRequest(content)
			if err != nil {
				return err
			}

			opts := []option.RequestOption{
				option.WithHeader("x-request-id", externalID),
				option.WithRequestBody(contentType, body),
			}

			logging.Logger.Debug("[doTranscriptionRequest] Making transcription API call",
				zap.String("external_id", externalID),
			)

			resp, err := transcriberClient.Client.Audio.Transcriptions.New(
				ctx,
				openai.AudioTranscriptionNewParams{},
				opts...,
			)
			if err != nil {
				logging.Logger.Error("Transcription request failed",
					zap.String("external_id", externalID),
					zap.String("error", err.Error()),
				)

				if isTooShortErr(err) {
					return retry.Unrecoverable(err)
				}

				return err
			}

			resultBytes = []byte(resp.RawJSON())
			logging.Logger.Info("Transcription completed successfully",
				zap.String("external_id", externalID),
				zap.Int("text_length", len(resp.Text)),
			)

			return nil
		},
		retry.Attempts(config.Conf.TranscriberRetryMaxAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.TranscriberRetryMinBackoff)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.TranscriberRetryMaxBackoff)*time.Second),
	)
	if err != nil {
		logging.Logger.Error("Transcription failed after all retry attempts",
			zap.String("external_id", externalID),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	return resultBytes, nil
}

func createTranscriptionBodyRequest(content []byte) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "voicemail.mp3")
	if err != nil {
		return nil, "", err
	}

	_, err = io.Copy(part, bytes.NewReader(content))
	if err != nil {
		return nil, "", err
	}

	err = writer.WriteField("model", config.Conf.TranscriberModel)
	if err != nil {
		return nil, "", err
	}

	err = writer.WriteField("response_format", "verbose_json")
	if err != nil {
		return nil, "", err
	}

	contentType := writer.FormDataContentType()
	_ = writer.Close()

	return body.Bytes(), contentType, nil
}

func isTooShortErr(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "audio_too_short") || strings.Contains(msg, "too short")
}

func confidenceFromSegments(segments []transcriptionSegment) float64 {
	if len(segments) == 0 {
		return 0
	}

	var sum float64
	for _, segment := range segments {
		sum += segment.AvgLogprob
	}

	return math.Exp(sum / float64(len(segments)))
}
