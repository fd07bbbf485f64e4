package placetel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"voicebox/internal/circuitbreak"
	"voicebox/internal/config"
	"voicebox/internal/logging"
)

var (
	ErrListingRequest  = errors.New("placetel call listing request failed")
	ErrDownloadRequest = errors.New("placetel voicemail download failed")
	ErrVoicemailGone   = errors.New("voicemail no longer available from placetel")
	ErrFileTooLarge    = errors.New("voicemail audio exceeds the size limit")
	ErrServerError     = errors.New("placetel server error")
)

const dateLayout = "2006-01-02"

type PlacetelService struct {
	CircuitBreaker *gobreaker.CircuitBreaker[[]byte]
	HTTPClient     *http.Client
	BaseURL        string
	StoragePath    string
}

func NewService() *PlacetelService {
	cbSettings := gobreaker.Settings{
		Name:     "Placetel",
		Interval: time.Duration(config.Conf.ProviderIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.ProviderConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.ProviderService)
			}
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrServerError)
		},
	}

	return &PlacetelService{
		CircuitBreaker: gobreaker.NewCircuitBreaker[[]byte](cbSettings),
		HTTPClient: &http.Client{
			Timeout: time.Duration(config.Conf.ProviderTimeout) * time.Second,
		},
		BaseURL:     config.Conf.ProviderBaseUrl,
		StoragePath: config.Conf.AudioStoragePath,
	}
}

// FetchVoicemails lists voicemail calls for the past days, newest day first.
// Only items carrying a file_url are returned.
func (placetelService *PlacetelService) FetchVoicemails(ctx context.Context, days int) ([]Voicemail, error) {
	var voicemails []Voicemail

	for daysAgo := range days {
		date := time.Now().UTC().AddDate(0, 0, -daysAgo).Format(dateLayout)

		items, err := placetelService.fetchCallsForDate(ctx, date)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if item.FileURL == "" {
				continue
			}

			voicemails = append(voicemails, item)
		}
	}

	return voicemails, nil
}

// FetchVoicemailByID returns the single call record, with a freshly signed
// file URL, or nil when the provider no longer knows the id.
func (placetelService *PlacetelService) FetchVoicemailByID(
	ctx context.Context,
	externalID string,
) (*Voicemail, error) {
	apiUrl, err := url.JoinPath(placetelService.BaseURL, "calls", externalID)
	if err != nil {
		return nil, err
	}

	body, statusCode, err := placetelService.doRequestWithRetry(ctx, apiUrl)
	if err != nil {
		return nil, err
	}

	if statusCode == http.StatusNotFound {
		return nil, nil
	}

	if statusCode != http.StatusOK {
		return nil, ErrListingRequest
	}

	var voicemail Voicemail

	err = json.Unmarshal(body, &voicemail)
	if err != nil {
		return nil, err
	}

	voicemail.Raw = body

	return &voicemail, nil
}

// FetchNumbers lists the provisioned phone numbers.
func (placetelService *PlacetelService) FetchNumbers(ctx context.Context) ([]Number, error) {
	apiUrl, err := url.JoinPath(placetelService.BaseURL, "numbers")
	if err != nil {
		return nil, err
	}

	body, statusCode, err := placetelService.doRequestWithRetry(ctx, apiUrl)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, ErrListingRequest
	}

	var numbers []Number

	err = json.Unmarshal(body, &numbers)
	if err != nil {
		return nil, err
	}

	return numbers, nil
}

// Download fetches the signed audio URL and writes it under the storage
// path, returning the local file path.
//
// Signed URLs expire roughly twenty minutes after issue. A 400/403-class
// response therefore triggers exactly one recovery: re-fetch the record for
// a fresh URL and retry once with recovery disabled, so a still-failing
// fresh URL surfaces instead of looping. Every other failure propagates;
// re-attempting is the retry-download stage's job on a later tick.
func (placetelService *PlacetelService) Download(
	ctx context.Context,
	externalID, fileURL string,
) (string, error) {
	return placetelService.download(ctx, externalID, fileURL, true)
}

func (placetelService *PlacetelService) download(
	ctx context.Context,
	externalID, fileURL string,
	retryOnExpired bool,
) (string, error) {
	content, statusCode, err := placetelService.fetchAudio(ctx, fileURL)
	if err != nil {
		return "", err
	}

	if isExpiredResponse(statusCode) {
		if !retryOnExpired {
			logging.Logger.Error("Fresh signed URL still rejected",
				zap.String("external_id", externalID),
				zap.Int("status_code", statusCode),
			)

			return "", fmt.Errorf("%w: status %d", ErrDownloadRequest, statusCode)
		}

		logging.Logger.Info("Signed URL expired, fetching fresh URL",
			zap.String("external_id", externalID),
			zap.Int("status_code", statusCode),
		)

		fresh, err := placetelService.FetchVoicemailByID(ctx, externalID)
		if err != nil {
			return "", err
		}

		if fresh == nil || fresh.FileURL == "" {
			return "", ErrVoicemailGone
		}

		return placetelService.download(ctx, externalID, fresh.FileURL, false)
	}

	if statusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrDownloadRequest, statusCode)
	}

	return placetelService.writeAudioFile(externalID, content)
}

func isExpiredResponse(statusCode int) bool {
	return statusCode == http.StatusBadRequest ||
		statusCode == http.StatusUnauthorized ||
		statusCode == http.StatusForbidden
}

func (placetelService *PlacetelService) fetchAudio(ctx context.Context, fileURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := placetelService.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}

	defer func() {
		cerr := resp.Body.Close()
		if cerr != nil {
			logging.Logger.Error("Failed to close response body", zap.String("error", cerr.Error()))
		}
	}()

	maxSize := config.Conf.ProviderMaxFileSize

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if int64(len(content)) > maxSize {
		return nil, resp.StatusCode, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, maxSize)
	}

	return content, resp.StatusCode, nil
}

func (placetelService *PlacetelService) writeAudioFile(externalID string, content []byte) (string, error) {
	err := os.MkdirAll(placetelService.StoragePath, 0o755)
	if err != nil {
		return "", err
	}

	localPath := filepath.Join(placetelService.StoragePath, fmt.Sprintf("voicemail_%s.mp3", externalID))

	err = os.WriteFile(localPath, content, 0o644)
	if err != nil {
		return "", err
	}

	logging.Logger.Info("Voicemail audio stored",
		zap.String("external_id", externalID),
		zap.String("path", localPath),
		zap.Int("size", len(content)),
	)

	return localPath, nil
}

func (placetelService *PlacetelService) fetchCallsForDate(ctx context.Context, date string) ([]Voicemail, error) {
	apiUrl, err := url.JoinPath(placetelService.BaseURL, "calls")
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("filter[date]", date)
	params.Set("filter[type]", "voicemail")
	params.Set("per_page", "100")

	body, statusCode, err := placetelService.doRequestWithRetry(ctx, apiUrl+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, ErrListingRequest
	}

	var rawItems []json.RawMessage

	err = json.Unmarshal(body, &rawItems)
	if err != nil {
		return nil, err
	}

	items := make([]Voicemail, 0, len(rawItems))

	for _, raw := range rawItems {
		var item Voicemail

		err = json.Unmarshal(raw, &item)
		if err != nil {
			logging.Logger.Warn("Skipping unparsable listing item",
				zap.String("date", date),
				zap.String("error", err.Error()),
			)

			continue
		}

		item.Raw = raw
		items = append(items, item)
	}

	return items, nil
}

func (placetelService *PlacetelService) doRequestWithRetry(
	ctx context.Context,
	apiUrl string,
) ([]byte, int, error) {
	var (
		body       []byte
		statusCode int
	)

	body, err := placetelService.CircuitBreaker.Execute(func() ([]byte, error) {
		err := retry.Do(
			func() error {
				var err error

				body, statusCode, err = placetelService.doRequest(ctx, apiUrl)

				return err
			},
			retry.Attempts(config.Conf.ProviderRetryMaxAttempts),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(time.Duration(config.Conf.ProviderRetryBackoffMin)*time.Second),
			retry.MaxDelay(time.Duration(config.Conf.ProviderRetryBackoffMax)*time.Second),
		)

		if statusCode >= http.StatusInternalServerError {
			return nil, ErrServerError
		}

		if err != nil {
			return nil, err
		}

		return body, nil
	})
	if err != nil {
		return nil, 0, err
	}

	return body, statusCode, nil
}

func (placetelService *PlacetelService) doRequest(ctx context.Context, apiUrl string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Authorization", "Bearer "+config.Conf.ProviderAPIKey)
	req.Header.Set("Content-Type", "application/json;charset=utf-8")

	resp, err := placetelService.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}

	defer func() {
		cerr := resp.Body.Close()
		if cerr != nil {
			logging.Logger.Error("Failed to close response body", zap.String("error", cerr.Error()))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return body, resp.StatusCode, nil
}
