package healthchecker

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"voicebox/internal/config"
	"voicebox/internal/logging"
	"voicebox/internal/placetel"
)

const probeTimeout = 10 * time.Second

func CheckProvider() bool {
	placetelService := placetel.NewService()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := placetelService.FetchNumbers(ctx)
	if err != nil {
		logging.Logger.Info("provider numbers api status", zap.Error(err))
		return false
	}

	return true
}

func CheckTranscriber() bool {
	return probeURL(config.Conf.TranscriberBaseUrl)
}

func CheckSummarizer() bool {
	return probeURL(config.Conf.SummarizerBaseUrl)
}

// probeURL checks reachability only; any HTTP response means the service is
// answering again.
func probeURL(baseURL string) bool {
	client := &http.Client{Timeout: probeTimeout}

	resp, err := client.Get(baseURL)
	if err != nil {
		logging.Logger.Info("remote service probe failed",
			zap.String("url", baseURL),
			zap.Error(err),
		)

		return false
	}

	_ = resp.Body.Close()

	return true
}
