package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicebox/internal/config"
	"voicebox/internal/logging"
	"voicebox/internal/placetel"
	"voicebox/internal/scheduler"
	"voicebox/internal/settings"
	"voicebox/internal/voicemail"
)

// RecordReader is the read/update surface the HTTP handlers need beyond the
// pipeline's own store operations.
type RecordReader interface {
	GetByID(ctx context.Context, id uint) (*voicemail.VoicemailRecord, error)
	Save(ctx context.Context, record *voicemail.VoicemailRecord) error
	List(ctx context.Context, transcriptionStatus, search string, offset, limit int) ([]voicemail.VoicemailRecord, error)
	Count(ctx context.Context) (int64, error)
}

// NumberLister fetches the account's phone numbers from the provider.
type NumberLister interface {
	FetchNumbers(ctx context.Context) ([]placetel.Number, error)
}

type Server struct {
	Pipeline  *voicemail.PipelineService
	Scheduler *scheduler.Scheduler
	Records   RecordReader
	Settings  settings.Store
	Numbers   NumberLister

	numbersMu        sync.Mutex
	numbersCache     []placetel.Number
	numbersFetchedAt time.Time
}

const numbersCacheTTL = time.Hour

func NewServer(
	pipeline *voicemail.PipelineService,
	sched *scheduler.Scheduler,
	records RecordReader,
	settingStore settings.Store,
	numbers NumberLister,
) *Server {
	return &Server{
		Pipeline:  pipeline,
		Scheduler: sched,
		Records:   records,
		Settings:  settingStore,
		Numbers:   numbers,
	}
}

// Router builds the gin engine with all routes registered.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())

	engine.GET("/health", server.handleHealth)
	engine.GET("/listen/:id", server.handleListen)
	engine.POST("/webhook/placetel", server.handleWebhook)

	apiGroup := engine.Group("/api")
	{
		apiGroup.POST("/sync", server.handleSync)
		apiGroup.POST("/sync-now", server.handleSyncNow)
		apiGroup.POST("/transcribe-pending", server.handleTranscribePending)
		apiGroup.POST("/summarize-pending", server.handleSummarizePending)
		apiGroup.POST("/notify-pending", server.handleNotifyPending)

		apiGroup.GET("/voicemails", server.handleListVoicemails)
		apiGroup.GET("/voicemails/:id", server.handleGetVoicemail)
		apiGroup.GET("/voicemails/:id/audio", server.handleVoicemailAudio)
		apiGroup.POST("/voicemails/:id/read", server.handleMarkRead)
		apiGroup.POST("/voicemails/:id/transcribe", server.handleTranscribeOne)
		apiGroup.POST("/voicemails/:id/summarize", server.handleSummarizeOne)
		apiGroup.POST("/voicemails/:id/reprocess", server.handleReprocess)

		apiGroup.GET("/settings", server.handleListSettings)
		apiGroup.GET("/settings/:key", server.handleGetSetting)
		apiGroup.PUT("/settings/:key", server.handleUpdateSetting)
		apiGroup.POST("/settings/email-cutoff", server.handleEmailCutoff)

		apiGroup.GET("/numbers", server.handleNumbers)
	}

	return engine
}

// Run serves the API until the context is canceled.
func (server *Server) Run(ctx context.Context) error {
	timeout := time.Duration(config.Conf.HTTPTimeout) * time.Second

	httpServer := &http.Server{
		Addr:              ":" + config.Conf.HTTPPort,
		Handler:           server.Router(),
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
	}

	errChan := make(chan error, 1)

	go func() {
		logging.Logger.Info("start http server on port " + config.Conf.HTTPPort)

		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		logging.Logger.Error("http server shutdown failed", zap.String("error", err.Error()))
	}

	return nil
}

// requestID tags every request with an id for log correlation, keeping one
// the caller already supplied.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}

		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func (server *Server) handleHealth(c *gin.Context) {
	count, err := server.Records.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  err.Error(),
		})

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"records":           count,
		"scheduler_running": server.Scheduler.Running(),
	})
}
