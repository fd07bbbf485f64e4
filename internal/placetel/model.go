package placetel

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// NumberRef is the callee reference in provider listings. The API returns
// either a bare number string or an object with number and name, so it
// carries a tolerant unmarshaler.
type NumberRef struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

func (numberRef *NumberRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &numberRef.Number)
	}

	type plain NumberRef

	var parsed plain

	err := json.Unmarshal(data, &parsed)
	if err != nil {
		return err
	}

	*numberRef = NumberRef(parsed)

	return nil
}

// Voicemail is one item of the provider's call listing.
type Voicemail struct {
	ID         int64     `json:"id"`
	FromNumber string    `json:"from_number"`
	FromName   string    `json:"from_name"`
	ToNumber   NumberRef `json:"to_number"`
	Duration   int       `json:"duration"`
	ReceivedAt string    `json:"received_at"`
	FileURL    string    `json:"file_url"`
	Unread     bool      `json:"unread"`

	// Raw is the unparsed listing payload, kept for auditing.
	Raw json.RawMessage `json:"-"`
}

func (voicemail *Voicemail) ExternalID() string {
	return strconv.FormatInt(voicemail.ID, 10)
}

// ReceivedTime parses the provider timestamp; nil when absent or malformed.
func (voicemail *Voicemail) ReceivedTime() *time.Time {
	if voicemail.ReceivedAt == "" {
		return nil
	}

	parsed, err := time.Parse(time.RFC3339, voicemail.ReceivedAt)
	if err != nil {
		return nil
	}

	return &parsed
}

// Number is one provisioned phone number, served by the cached numbers
// endpoint.
type Number struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}
