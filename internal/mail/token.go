package mail

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"voicebox/internal/config"
)

// Tokens are truncated for shorter links in the mail body.
const accessTokenLength = 32

// AccessToken derives the public listen token for a record. Tokens are tied
// to the record id and do not expire.
func AccessToken(recordID uint) string {
	mac := hmac.New(sha256.New, []byte(config.Conf.PublicAccessSecret))
	fmt.Fprintf(mac, "voicemail:%d", recordID)

	return hex.EncodeToString(mac.Sum(nil))[:accessTokenLength]
}

// VerifyAccessToken reports whether token grants access to the record.
func VerifyAccessToken(recordID uint, token string) bool {
	expected := AccessToken(recordID)

	return hmac.Equal([]byte(token), []byte(expected))
}

// PublicURL builds the tokenized listen link embedded in notifications.
func PublicURL(recordID uint) string {
	return fmt.Sprintf("%s/listen/%d?token=%s", config.Conf.BaseUrl, recordID, AccessToken(recordID))
}
