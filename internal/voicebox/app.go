package voicebox

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"voicebox/internal/api"
	"voicebox/internal/circuitbreak"
	"voicebox/internal/database"
	"voicebox/internal/healthchecker"
	"voicebox/internal/logging"
	"voicebox/internal/mail"
	"voicebox/internal/placetel"
	"voicebox/internal/scheduler"
	"voicebox/internal/settings"
	"voicebox/internal/summarize"
	"voicebox/internal/transcribe"
	"voicebox/internal/voicemail"
)

type Voicebox struct {
	DBConn               *gorm.DB
	PlacetelService      *placetel.PlacetelService
	TranscriberClient    *transcribe.TranscriberClient
	SummarizerClient     *summarize.SummarizerClient
	MailClient           *mail.MailClient
	PipelineService      *voicemail.PipelineService
	Scheduler            *scheduler.Scheduler
	APIServer            *api.Server
	HealthCheckerService *healthchecker.Healthchecker
}

func NewApp(ctxCancelFun context.CancelFunc) (*Voicebox, error) {
	logging.Logger.Info("[NewApp] Initializing voicebox application...")

	healthcheckerService := healthchecker.NewService(ctxCancelFun)

	logging.Logger.Info("[NewApp] Health checker service created")

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.Error(err))
		return nil, err
	}

	logging.Logger.Info("[NewApp] Database connection established")

	placetelService := placetel.NewService()
	transcriberClient := transcribe.NewClient()
	summarizerClient := summarize.NewClient()
	mailClient := mail.NewClient()

	logging.Logger.Info("[NewApp] Provider, transcriber, summarizer and mail clients created")

	recordRepository := voicemail.NewRepository(dbConn)
	settingRepository := settings.NewRepository(dbConn)

	pipelineService := voicemail.NewPipelineService(
		recordRepository,
		settingRepository,
		placetelService,
		transcriberClient,
		summarizerClient,
		mailClient,
	)

	logging.Logger.Info("[NewApp] Pipeline service created")

	pipelineScheduler := scheduler.New(pipelineService, settingRepository)

	apiServer := api.NewServer(
		pipelineService,
		pipelineScheduler,
		recordRepository,
		settingRepository,
		placetelService,
	)

	logging.Logger.Info("[NewApp] Initializing circuit breakers...")
	circuitbreak.Init()
	logging.Logger.Info("[NewApp] Circuit breakers initialized")

	return &Voicebox{
		DBConn:               dbConn,
		PlacetelService:      placetelService,
		TranscriberClient:    transcriberClient,
		SummarizerClient:     summarizerClient,
		MailClient:           mailClient,
		PipelineService:      pipelineService,
		Scheduler:            pipelineScheduler,
		APIServer:            apiServer,
		HealthCheckerService: healthcheckerService,
	}, nil
}

func (app *Voicebox) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	logging.Logger.Info("[Run] Starting health checker monitor goroutine")

	go app.HealthCheckerService.Monitor()

	logging.Logger.Info("[Run] Starting pipeline scheduler")

	app.Scheduler.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return app.APIServer.Run(groupCtx)
	})

	err := group.Wait()
	if err != nil {
		logging.Logger.Error("[Run] HTTP server returned error", zap.Error(err))
	}

	app.shutdown()

	return err
}

func (app *Voicebox) shutdown() {
	logging.Logger.Info("[Run] Stopping scheduler...")
	app.Scheduler.Stop()
	logging.Logger.Info("[Run] Scheduler stopped")

	logging.Logger.Info("[Run] ===== App shutdown complete =====")
}
