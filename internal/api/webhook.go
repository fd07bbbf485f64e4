package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"voicebox/internal/config"
	"voicebox/internal/logging"
	"voicebox/internal/prometheus"
)

const (
	signatureHeader = "X-PLACETEL-SIGNATURE"

	webhookEventHungUp = "HungUp"

	webhookProcessTimeout = 5 * time.Minute
)

// handleWebhook ingests provider call notifications. The signed audio URL in
// the payload expires quickly, so matching events kick off processing right
// away instead of waiting for the next scheduled sync.
func (server *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		prometheus.WebhooksReceived.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})

		return
	}

	if !verifySignature(body, c.GetHeader(signatureHeader)) {
		prometheus.WebhooksReceived.WithLabelValues("rejected").Inc()
		logging.Logger.Warn("webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})

		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		prometheus.WebhooksReceived.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed form payload"})

		return
	}

	event := form.Get("event")
	callType := form.Get("type")
	direction := form.Get("direction")
	callID := form.Get("call_id")

	if event != webhookEventHungUp || callType != "voicemail" || direction != "in" || callID == "" {
		prometheus.WebhooksReceived.WithLabelValues("ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "event": event})

		return
	}

	prometheus.WebhooksReceived.WithLabelValues("accepted").Inc()
	logging.Logger.Info("webhook voicemail received", zap.String("call_id", callID))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
		defer cancel()

		err := server.Pipeline.ProcessWebhookVoicemail(ctx, callID)
		if err != nil {
			logging.Logger.Error("webhook processing failed",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"status": "ok", "event": event})
}

// verifySignature checks the HMAC-SHA256 hex digest of the raw body against
// the signature header. Verification is skipped when no secret is configured.
func verifySignature(body []byte, signature string) bool {
	secret := config.Conf.ProviderWebhookSecret
	if secret == "" {
		return true
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
