package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"voicebox/internal/logging"
	"voicebox/internal/mail"
	"voicebox/internal/voicemail"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxManualDays    = 365
)

func (server *Server) handleSync(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		outcome *voicemail.SyncOutcome
		err     error
	)

	daysParam := c.Query("days")
	if daysParam != "" {
		days, parseErr := strconv.Atoi(daysParam)
		if parseErr != nil || days < 1 || days > maxManualDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})

			return
		}

		outcome, err = server.Pipeline.RunSyncDays(ctx, days)
	} else {
		outcome, err = server.Pipeline.RunSync(ctx)
	}

	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (server *Server) handleSyncNow(c *gin.Context) {
	server.Scheduler.TriggerNow()

	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

func (server *Server) handleTranscribePending(c *gin.Context) {
	outcome, err := server.Pipeline.RunTranscribe(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (server *Server) handleSummarizePending(c *gin.Context) {
	outcome, err := server.Pipeline.RunSummarize(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (server *Server) handleNotifyPending(c *gin.Context) {
	outcome, err := server.Pipeline.RunNotify(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (server *Server) handleListVoicemails(c *gin.Context) {
	status := c.Query("status")
	search := c.Query("search")

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil && parsed > 0 && parsed <= maxListLimit {
			limit = parsed
		}
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	records, err := server.Records.List(c.Request.Context(), status, search, offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	total, err := server.Records.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"voicemails": records,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func (server *Server) loadRecord(c *gin.Context) *voicemail.VoicemailRecord {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid voicemail id"})

		return nil
	}

	record, err := server.Records.GetByID(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, voicemail.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "voicemail not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}

		return nil
	}

	return record
}

func (server *Server) handleGetVoicemail(c *gin.Context) {
	record := server.loadRecord(c)
	if record == nil {
		return
	}

	c.JSON(http.StatusOK, record)
}

func (server *Server) handleVoicemailAudio(c *gin.Context) {
	record := server.loadRecord(c)
	if record == nil {
		return
	}

	if record.LocalFilePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no audio file stored for this voicemail"})

		return
	}

	c.Header("Content-Type", "audio/mpeg")
	c.File(record.LocalFilePath)
}

// handleListen serves audio on the public link mailed out with each
// notification. Access is granted by the HMAC token, not by the API.
func (server *Server) handleListen(c *gin.Context) {
	record := server.loadRecord(c)
	if record == nil {
		return
	}

	if !mail.VerifyAccessToken(record.ID, c.Query("token")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid access token"})

		return
	}

	if record.LocalFilePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no audio file stored for this voicemail"})

		return
	}

	c.Header("Content-Type", "audio/mpeg")
	c.File(record.LocalFilePath)
}

func (server *Server) handleMarkRead(c *gin.Context) {
	record := server.loadRecord(c)
	if record == nil {
		return
	}

	record.Unread = false

	err := server.Records.Save(c.Request.Context(), record)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleTranscribeOne(c *gin.Context) {
	record := server.loadRecord(c)
	if record == nil {
		return
	}

	if record.CallStatus != voicemail.StatusVoicemail {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record is not a voicemail"})

		return
	}

	if record.Duration < voicemail.MinDurationSeconds {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recording is too short to transcribe"})

		return
	}

	if record.LocalFilePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file has not been downloaded yet"})

		return
	}

	err := server.Pipeline.TranscribeRecord(c.Request.Context(), record)
	if err != nil {
		logging.Logger.Error("manual transcription failed",
			zap.Uint("id", record.ID),
			zap.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, record)
}

func (server *Server) handleSummarizeOne(c *gin.Context) {
	record := server.loadRecord(c)
	if record == nil {
		return
	}

	if record.TranscriptionStatus == voicemail.TranscriptionSkipped {
		c.JSON(http.StatusBadRequest, gin.H{"error": "voicemail was skipped, nothing to summarize"})

		return
	}

	text := ""
	if record.TranscriptionText != nil {
		text = strings.TrimSpace(*record.TranscriptionText)
	}

	if text == "" || voicemail.IsPlaceholderText(text) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no transcription text to summarize"})

		return
	}

	skipped, err := server.Pipeline.SummarizeRecord(c.Request.Context(), record)
	if err != nil {
		logging.Logger.Error("manual summary failed",
			zap.Uint("id", record.ID),
			zap.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

		return
	}

	if skipped {
		c.JSON(http.StatusOK, gin.H{"status": "skipped", "voicemail": record})

		return
	}

	c.JSON(http.StatusOK, record)
}

func (server *Server) handleReprocess(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid voicemail id"})

		return
	}

	trail, err := server.Pipeline.Reprocess(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, voicemail.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "voicemail not found"})

			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"steps": trail})
}
