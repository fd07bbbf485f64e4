package mail

import (
	"fmt"
	"html"
	"strings"

	"voicebox/internal/voicemail"
)

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatDuration(seconds int) string {
	if seconds < 3600 {
		return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
	}

	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// FormatPhone normalizes a dialed number to international +49 display form.
func FormatPhone(number string) string {
	clean := strings.TrimSpace(number)
	if clean == "" {
		return "Unknown"
	}

	switch {
	case strings.HasPrefix(clean, "0049"):
		clean = "+49" + clean[4:]
	case strings.HasPrefix(clean, "00"):
		clean = "+" + clean[2:]
	case strings.HasPrefix(clean, "0"):
		clean = "+49" + clean[1:]
	}

	if !strings.HasPrefix(clean, "+49") {
		return clean
	}

	rest := clean[3:]
	switch {
	case len(rest) >= 10:
		return fmt.Sprintf("+49 %s %s %s", rest[:3], rest[3:7], rest[7:])
	case len(rest) >= 7:
		return fmt.Sprintf("+49 %s %s", rest[:3], rest[3:])
	default:
		return "+49 " + rest
	}
}

// Subject builds the notification subject from the generated topic, caller,
// and receive time.
func Subject(record *voicemail.VoicemailRecord) string {
	topic := record.EmailSubject
	if topic == "" {
		topic = "Voicemail"
	}

	received := ""
	if record.StartedAt != nil {
		received = record.StartedAt.Format("02.01.2006 15:04")
	}

	return fmt.Sprintf("%s | %s | %s", topic, FormatPhone(record.FromNumber), received)
}

func priorityBadge(priority string) string {
	switch priority {
	case "high":
		return badge("High Priority", "#fee2e2", "#dc2626")
	case "low":
		return badge("Low Priority", "#f3f4f6", "#6b7280")
	default:
		return ""
	}
}

func sentimentBadge(sentiment, emotion string) string {
	label := emotion
	if label == "" {
		label = sentiment
	}

	if label == "" {
		return ""
	}

	bg, fg := "#f3f4f6", "#6b7280"
	switch sentiment {
	case "positive":
		bg, fg = "#dcfce7", "#16a34a"
	case "negative":
		bg, fg = "#fee2e2", "#dc2626"
	}

	return badge(capitalize(label), bg, fg)
}

func categoryBadge(category string) string {
	if category == "" {
		return ""
	}

	labels := map[string]string{
		"sales_inquiry":  "Sales Inquiry",
		"existing_order": "Existing Order",
		"new_inquiry":    "New Inquiry",
		"complaint":      "Complaint",
		"general":        "General",
	}

	label, ok := labels[category]
	if !ok {
		label = capitalize(strings.ReplaceAll(category, "_", " "))
	}

	return badge(label, "#e0e7ff", "#4338ca")
}

func badge(label, bg, fg string) string {
	return fmt.Sprintf(
		`<span style="background-color: %s; color: %s; padding: 4px 12px; border-radius: 9999px; font-size: 12px; font-weight: 600;">%s</span>`,
		bg, fg, html.EscapeString(label),
	)
}

func capitalize(word string) string {
	if word == "" {
		return ""
	}

	return strings.ToUpper(word[:1]) + word[1:]
}

func transcriptFor(record *voicemail.VoicemailRecord) string {
	if record.CorrectedText != nil && *record.CorrectedText != "" {
		return *record.CorrectedText
	}

	if record.TranscriptionText != nil && *record.TranscriptionText != "" {
		return *record.TranscriptionText
	}

	return "No transcription available."
}

func summaryFor(record *voicemail.VoicemailRecord) string {
	if record.Summary != nil && *record.Summary != "" {
		return *record.Summary
	}

	return "No summary available."
}

func destinationFor(record *voicemail.VoicemailRecord) string {
	if record.ToNumberName != "" {
		return record.ToNumberName
	}

	return FormatPhone(record.ToNumber)
}

// HTMLBody renders the notification email.
func HTMLBody(record *voicemail.VoicemailRecord, audioURL string) string {
	received := ""
	if record.StartedAt != nil {
		received = record.StartedAt.Format("02.01.2006 um 15:04 Uhr")
	}

	badges := joinBadges(
		priorityBadge(record.Priority),
		sentimentBadge(record.Sentiment, record.Emotion),
		categoryBadge(record.Category),
	)

	badgesRow := ""
	if badges != "" {
		badgesRow = fmt.Sprintf(
			`<tr><td style="padding: 20px 32px 0 32px;">%s</td></tr>`, badges,
		)
	}

	translatedRow := ""
	if record.SummaryTranslated != nil && *record.SummaryTranslated != "" &&
		(record.Summary == nil || *record.SummaryTranslated != *record.Summary) {
		translatedRow = fmt.Sprintf(
			`<div style="margin-top: 12px; font-size: 14px; line-height: 1.6; color: #6b7280; font-style: italic;"><strong>English:</strong> %s</div>`,
			html.EscapeString(*record.SummaryTranslated),
		)
	}

	var builder strings.Builder

	builder.WriteString(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>New Voicemail</title></head>
<body style="margin: 0; padding: 0; font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f9fafb; color: #111827;">
<table width="100%" cellpadding="0" cellspacing="0" style="background-color: #f9fafb; padding: 40px 20px;"><tr><td align="center">
<table width="600" cellpadding="0" cellspacing="0" style="background-color: #ffffff; border-radius: 12px; overflow: hidden;">
`)

	fmt.Fprintf(&builder, `<tr><td style="background-color: #1f2937; padding: 24px 32px;">
<table width="100%%" cellpadding="0" cellspacing="0"><tr>
<td><h1 style="margin: 0; color: #ffffff; font-size: 20px; font-weight: 600;">New Voicemail</h1></td>
<td align="right"><span style="color: #9ca3af; font-size: 14px;">%s</span></td>
</tr></table></td></tr>
`, html.EscapeString(received))

	fmt.Fprintf(&builder, `<tr><td style="padding: 24px 32px; border-bottom: 1px solid #e5e7eb;">
<table width="100%%" cellpadding="0" cellspacing="0"><tr>
<td width="50%%"><div style="font-size: 12px; color: #6b7280; text-transform: uppercase;">From</div>
<div style="font-size: 18px; font-weight: 600;">%s</div></td>
<td width="25%%"><div style="font-size: 12px; color: #6b7280; text-transform: uppercase;">To</div>
<div style="font-size: 16px; color: #374151;">%s</div></td>
<td width="25%%" align="right"><div style="font-size: 12px; color: #6b7280; text-transform: uppercase;">Duration</div>
<div style="font-size: 16px; color: #374151;">%s</div></td>
</tr></table></td></tr>
`,
		html.EscapeString(FormatPhone(record.FromNumber)),
		html.EscapeString(destinationFor(record)),
		FormatDuration(record.Duration),
	)

	builder.WriteString(badgesRow)

	fmt.Fprintf(&builder, `<tr><td style="padding: 24px 32px;">
<div style="margin-bottom: 12px; font-size: 12px; color: #6b7280; text-transform: uppercase;">Summary</div>
<div style="font-size: 16px; line-height: 1.6; color: #374151; background-color: #f9fafb; padding: 16px; border-radius: 8px; border-left: 4px solid #3b82f6;">%s</div>
%s</td></tr>
`, html.EscapeString(summaryFor(record)), translatedRow)

	fmt.Fprintf(&builder, `<tr><td style="padding: 0 32px 24px 32px;">
<a href="%s" style="display: inline-block; background-color: #3b82f6; color: #ffffff; text-decoration: none; padding: 12px 24px; border-radius: 8px; font-weight: 600; font-size: 14px;">Listen to Voicemail</a>
</td></tr>
`, audioURL)

	fmt.Fprintf(&builder, `<tr><td style="padding: 24px 32px; background-color: #f9fafb; border-top: 1px solid #e5e7eb;">
<div style="margin-bottom: 12px; font-size: 12px; color: #6b7280; text-transform: uppercase;">Full Transcript</div>
<div style="font-size: 14px; line-height: 1.7; color: #4b5563; white-space: pre-wrap;">%s</div>
</td></tr>
`, html.EscapeString(transcriptFor(record)))

	fmt.Fprintf(&builder, `<tr><td style="padding: 20px 32px; background-color: #f3f4f6; border-top: 1px solid #e5e7eb;">
<table width="100%%" cellpadding="0" cellspacing="0"><tr>
<td style="font-size: 12px; color: #9ca3af;">Voicemail #%d</td>
<td align="right" style="font-size: 12px; color: #9ca3af;">Transcribed automatically</td>
</tr></table></td></tr>
</table></td></tr></table>
</body>
</html>`, record.ID)

	return builder.String()
}

// PlainBody renders the text alternative for clients without HTML.
func PlainBody(record *voicemail.VoicemailRecord, audioURL string) string {
	caller := FormatPhone(record.FromNumber)

	received := ""
	if record.StartedAt != nil {
		received = record.StartedAt.Format("02.01.2006 at 15:04")
	}

	rule := strings.Repeat("=", 50)
	thinRule := strings.Repeat("-", 50)

	var lines []string

	if record.Priority == "high" {
		lines = append(lines, "!!! HIGH PRIORITY !!!", "")
	}

	lines = append(lines,
		rule,
		"  NEW VOICEMAIL",
		"  From: "+caller,
		"  To:   "+destinationFor(record),
		fmt.Sprintf("  Date: %s  (%s)", received, FormatDuration(record.Duration)),
		rule,
		"",
	)

	var tags []string
	if record.Category != "" && record.Category != "general" {
		tags = append(tags, capitalize(strings.ReplaceAll(record.Category, "_", " ")))
	}

	if record.Emotion != "" && record.Emotion != "calm" && record.Emotion != "neutral" {
		tags = append(tags, capitalize(record.Emotion))
	}

	if len(tags) > 0 {
		lines = append(lines, "["+strings.Join(tags, " | ")+"]", "")
	}

	lines = append(lines, "SUMMARY", thinRule, "", summaryFor(record))

	if record.SummaryTranslated != nil && *record.SummaryTranslated != "" &&
		(record.Summary == nil || *record.SummaryTranslated != *record.Summary) {
		lines = append(lines, "", "(English: "+*record.SummaryTranslated+")")
	}

	lines = append(lines,
		"", "",
		"TRANSCRIPT",
		thinRule,
		"",
		transcriptFor(record),
		"", "",
		rule,
		"Listen: "+audioURL,
		"Callback: "+caller,
		rule,
		"",
		fmt.Sprintf("Voicemail #%d", record.ID),
	)

	return strings.Join(lines, "\n")
}

func joinBadges(badges ...string) string {
	var kept []string
	for _, b := range badges {
		if b != "" {
			kept = append(kept, b)
		}
	}

	return strings.Join(kept, " ")
}
