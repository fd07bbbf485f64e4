package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"voicebox/internal/settings"
)

// editableKeys are the settings callers may change over the API. Internal
// bookkeeping keys like the last sync timestamp stay read-only.
var editableKeys = map[string]bool{
	settings.KeySyncIntervalMinutes: true,
	settings.KeyAutoTranscribe:      true,
	settings.KeyAutoSummarize:       true,
	settings.KeyAutoEmail:           true,
	settings.KeyNotificationEmail:   true,
	settings.KeyEmailOnlyAfter:      true,
}

type updateSettingRequest struct {
	Value string `json:"value" binding:"required"`
}

func (server *Server) handleListSettings(c *gin.Context) {
	all, err := server.Settings.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, all)
}

func (server *Server) handleGetSetting(c *gin.Context) {
	key := c.Param("key")

	value := server.Settings.Get(c.Request.Context(), key, "")
	if value == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "setting not found"})

		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

func (server *Server) handleUpdateSetting(c *gin.Context) {
	key := c.Param("key")
	if !editableKeys[key] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or read-only setting"})

		return
	}

	var req updateSettingRequest

	err := c.ShouldBindJSON(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})

		return
	}

	if key == settings.KeySyncIntervalMinutes {
		minutes, parseErr := strconv.Atoi(req.Value)
		if parseErr != nil || minutes < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sync interval must be a positive number of minutes"})

			return
		}

		err = server.Settings.Set(c.Request.Context(), key, req.Value)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

			return
		}

		server.Scheduler.Reschedule(minutes)

		c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})

		return
	}

	err = server.Settings.Set(c.Request.Context(), key, req.Value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}

func (server *Server) handleEmailCutoff(c *gin.Context) {
	outcome, err := server.Pipeline.SetNotificationCutoff(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, outcome)
}
