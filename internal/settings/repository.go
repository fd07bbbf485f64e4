package settings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"voicebox/internal/database"
	"voicebox/internal/logging"
)

// Store is the scalar-settings surface the pipeline and scheduler depend on.
type Store interface {
	Get(ctx context.Context, key, fallback string) string
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

type SettingRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *SettingRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &SettingRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Get returns the stored value for key, or fallback when the key is absent
// or the store is unreachable.
func (settingRepository *SettingRepository) Get(ctx context.Context, key, fallback string) string {
	result, err := settingRepository.CircuitBreaker.Execute(func() (any, error) {
		var setting Setting

		err := settingRepository.DBConn.WithContext(ctx).
			Where("key = ?", key).
			First(&setting).Error
		if err != nil {
			return nil, err
		}

		return setting.Value, nil
	})
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logging.Logger.Error("failed to fetch setting",
				zap.String("key", key),
				zap.String("error", err.Error()),
			)
		}

		return fallback
	}

	value, ok := result.(string)
	if !ok {
		return fallback
	}

	return value
}

func (settingRepository *SettingRepository) Set(ctx context.Context, key, value string) error {
	_, err := settingRepository.CircuitBreaker.Execute(func() (any, error) {
		now := time.Now().UTC()
		setting := Setting{Key: key, Value: value, UpdatedAt: &now}

		err := settingRepository.DBConn.WithContext(ctx).
			Where("key = ?", key).
			Assign(map[string]any{
				"value":      value,
				"updated_at": &now,
			}).
			FirstOrCreate(&setting).Error
		if err != nil {
			logging.Logger.Error("failed to store setting",
				zap.String("key", key),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &setting, nil
	})

	return err
}

func (settingRepository *SettingRepository) All(ctx context.Context) (map[string]string, error) {
	result, err := settingRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []Setting

		err := settingRepository.DBConn.WithContext(ctx).Find(&records).Error
		if err != nil {
			return nil, err
		}

		values := make(map[string]string, len(records))
		for _, record := range records {
			values[record.Key] = record.Value
		}

		return values, nil
	})
	if err != nil {
		return nil, err
	}

	values, ok := result.(map[string]string)
	if !ok {
		return nil, errors.New("invalid result type, it should be map of settings")
	}

	return values, nil
}

// GetBool reads a feature toggle; only the literal "true" enables it.
func GetBool(ctx context.Context, store Store, key, fallback string) bool {
	return store.Get(ctx, key, fallback) == "true"
}

func GetInt(ctx context.Context, store Store, key string, fallback int) int {
	raw := store.Get(ctx, key, strconv.Itoa(fallback))

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return value
}

// GetTime parses an RFC3339 setting; the zero time means unset or unparsable.
func GetTime(ctx context.Context, store Store, key string) time.Time {
	raw := store.Get(ctx, key, "")
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logging.Logger.Warn("failed to parse time setting",
			zap.String("key", key),
			zap.String("value", raw),
		)

		return time.Time{}
	}

	return parsed
}
