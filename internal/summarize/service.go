package summarize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"voicebox/internal/circuitbreak"
	"voicebox/internal/config"
	"voicebox/internal/logging"
)

var ErrEmptyCompletion = errors.New("summarizer returned no choices")

// Result is one processed transcript. Degraded marks a response whose JSON
// could not be parsed, with best-effort defaults filled in.
type Result struct {
	CorrectedText     string
	Summary           string
	SummaryTranslated string
	Sentiment         string
	Emotion           string
	Category          string
	Priority          string
	EmailSubject      string
	Model             string
	Degraded          bool
}

const systemPrompt = `You are an assistant that processes voicemail transcriptions for a customer support team.

Your task is to:
1. CORRECT the transcript: Fix obvious speech-to-text errors (wrong words, missing punctuation, unclear sentences). Keep the meaning intact. If the transcript seems mostly correct, make minimal changes.
2. SUMMARIZE for support: Create a brief, actionable summary (2-3 sentences max) in the transcript's original language that tells a support agent:
   - Who is calling (name if mentioned)
   - What they want/need
   - Any callback number or urgency
3. TRANSLATE the summary to English.
4. CLASSIFY the message: sentiment (positive/neutral/negative), dominant emotion (one word), category (sales_inquiry/existing_order/new_inquiry/complaint/general), priority (high/normal/low).
5. Generate a short email subject line describing the topic.

Output format (JSON):
{
  "corrected_text": "The corrected transcript text...",
  "summary": "Brief summary for support agent...",
  "summary_translated": "English translation of the summary...",
  "sentiment": "neutral",
  "emotion": "calm",
  "category": "general",
  "priority": "normal",
  "email_subject": "Topic of the call"
}

Important:
- Preserve the caller's intent and key details
- The corrected text should be readable and professional
- The summary should be concise and actionable
- If the transcript is very short or empty, note that in the summary`

type SummarizerClient struct {
	Client         *openai.Client
	CircuitBreaker *gobreaker.CircuitBreaker[string]
}

func NewClient() *SummarizerClient {
	opts := []option.RequestOption{
		option.WithBaseURL(config.Conf.SummarizerBaseUrl),
		option.WithAPIKey(config.Conf.SummarizerAPIKey),
		option.WithRequestTimeout(time.Duration(config.Conf.SummarizerTimeout) * time.Second),
	}

	client := openai.NewClient(opts...)

	return &SummarizerClient{
		Client:         &client,
		CircuitBreaker: newSummarizerCircuitBreaker(),
	}
}

func newSummarizerCircuitBreaker() *gobreaker.CircuitBreaker[string] {
	settings := gobreaker.Settings{
		Name:     "SummarizerClient",
		Interval: time.Duration(config.Conf.SummarizerIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.SummarizerConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.SummarizerService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[string](settings)
}

// Summarize corrects, summarizes, and classifies one transcript. Unparsable
// model output degrades to defaults instead of failing, so the pipeline keeps
// moving per record.
func (summarizerClient *SummarizerClient) Summarize(
	ctx context.Context,
	transcript, languageHint string,
) (*Result, error) {
	if languageHint == "" {
		languageHint = "de"
	}

	logging.Logger.Info("Starting transcript summarization",
		zap.String("language", languageHint),
		zap.Int("transcript_length", len(transcript)),
	)

	content, err := summarizerClient.CircuitBreaker.Execute(func() (string, error) {
		return summarizerClient.doCompletionRequest(ctx, transcript, languageHint)
	})
	if err != nil {
		return nil, err
	}

	result := parseSummaryContent(content, transcript, config.Conf.SummarizerModel)
	if result.Degraded {
		logging.Logger.Warn("Summarizer response was not valid JSON, using degraded defaults",
			zap.Int("content_length", len(content)),
		)
	}

	return result, nil
}

func (summarizerClient *SummarizerClient) doCompletionRequest(
	ctx context.Context,
	transcript, languageHint string,
) (string, error) {
	userPrompt := fmt.Sprintf(
		"Process this voicemail transcript (language: %s):\n\nTRANSCRIPT:\n%s\n\nReturn JSON with all requested fields.",
		languageHint, transcript,
	)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(config.Conf.SummarizerModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0.3),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := summarizerClient.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		logging.Logger.Error("Summarization request failed",
			zap.String("error", err.Error()),
		)

		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}
