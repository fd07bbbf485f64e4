package summarize

import (
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

const degradedSummaryLimit = 500

type summaryPayload struct {
	CorrectedText     string `json:"corrected_text"`
	Summary           string `json:"summary"`
	SummaryTranslated string `json:"summary_translated"`
	Sentiment         string `json:"sentiment"`
	Emotion           string `json:"emotion"`
	Category          string `json:"category"`
	Priority          string `json:"priority"`
	EmailSubject      string `json:"email_subject"`
}

// parseSummaryContent turns raw model output into a Result. Malformed JSON
// yields a Degraded result carrying the raw text truncated into the summary
// and neutral classification defaults.
func parseSummaryContent(content, transcript, model string) *Result {
	var payload summaryPayload

	err := json.Unmarshal([]byte(stripCodeFences(content)), &payload)
	if err != nil {
		return degradedResult(content, transcript, model)
	}

	result := &Result{
		CorrectedText:     payload.CorrectedText,
		Summary:           payload.Summary,
		SummaryTranslated: payload.SummaryTranslated,
		Sentiment:         normalizeSentiment(payload.Sentiment),
		Emotion:           strings.ToLower(strings.TrimSpace(payload.Emotion)),
		Category:          normalizeCategory(payload.Category),
		Priority:          normalizePriority(payload.Priority),
		EmailSubject:      strings.TrimSpace(payload.EmailSubject),
		Model:             model,
	}

	if result.CorrectedText == "" {
		result.CorrectedText = transcript
	}

	if result.Summary == "" {
		result.Summary = "No summary available"
	}

	return result
}

func degradedResult(content, transcript, model string) *Result {
	summary := strings.TrimSpace(content)
	if summary == "" {
		summary = "Processing failed"
	} else if len(summary) > degradedSummaryLimit {
		summary = truncateToRuneBoundary(summary, degradedSummaryLimit)
	}

	return &Result{
		CorrectedText: transcript,
		Summary:       summary,
		Sentiment:     "neutral",
		Category:      "general",
		Priority:      "normal",
		Model:         model,
		Degraded:      true,
	}
}

// truncateToRuneBoundary cuts s to at most limit bytes without splitting a
// multibyte rune.
func truncateToRuneBoundary(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}

	return s[:limit]
}

// stripCodeFences unwraps content some models insist on fencing as a
// markdown block despite the JSON response format.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	return strings.TrimSpace(trimmed)
}

func normalizeSentiment(sentiment string) string {
	switch strings.ToLower(strings.TrimSpace(sentiment)) {
	case "positive":
		return "positive"
	case "negative":
		return "negative"
	default:
		return "neutral"
	}
}

func normalizePriority(priority string) string {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "normal"
	}
}

func normalizeCategory(category string) string {
	cleaned := strings.ToLower(strings.TrimSpace(category))
	if cleaned == "" {
		return "general"
	}

	return cleaned
}
