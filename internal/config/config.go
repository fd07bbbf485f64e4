package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	PostgresHost            string `mapstructure:"postgres_host"              validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password"          validate:"required"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	ProviderBaseUrl               string `mapstructure:"provider_base_url"               validate:"required"`
	ProviderAPIKey                string `mapstructure:"provider_api_key"                validate:"required"`
	ProviderWebhookSecret         string `mapstructure:"provider_webhook_secret"`
	ProviderTimeout               int    `mapstructure:"provider_timeout"`
	ProviderRetryMaxAttempts      uint   `mapstructure:"provider_retry_max_attempts"`
	ProviderRetryBackoffMin       int    `mapstructure:"provider_retry_backoff_min"`
	ProviderRetryBackoffMax       int    `mapstructure:"provider_retry_backoff_max"`
	ProviderMaxFileSize           int64  `mapstructure:"provider_max_voice_file_size"`
	ProviderIntervalCB            uint32 `mapstructure:"provider_interval_cb"`
	ProviderConsecutiveFailuresCB uint32 `mapstructure:"provider_consecutive_failures_cb"`

	TranscriberBaseUrl               string `mapstructure:"transcriber_base_url"    validate:"required"`
	TranscriberAPIKey                string `mapstructure:"transcriber_api_key"     validate:"required"`
	TranscriberModel                 string `mapstructure:"transcriber_model"       validate:"required"`
	TranscriberTimeout               int    `mapstructure:"transcriber_timeout"`
	TranscriberRetryMaxAttempts      uint   `mapstructure:"transcriber_retry_max_attempts"`
	TranscriberRetryMinBackoff       int    `mapstructure:"transcriber_retry_min_backoff"`
	TranscriberRetryMaxBackoff       int    `mapstructure:"transcriber_retry_max_backoff"`
	TranscriberIntervalCB            uint32 `mapstructure:"transcriber_interval_cb"`
	TranscriberConsecutiveFailuresCB uint32 `mapstructure:"transcriber_consecutive_failures_cb"`

	SummarizerBaseUrl               string `mapstructure:"summarizer_base_url"    validate:"required"`
	SummarizerAPIKey                string `mapstructure:"summarizer_api_key"`
	SummarizerModel                 string `mapstructure:"summarizer_model"       validate:"required"`
	SummarizerTimeout               int    `mapstructure:"summarizer_timeout"`
	SummarizerIntervalCB            uint32 `mapstructure:"summarizer_interval_cb"`
	SummarizerConsecutiveFailuresCB uint32 `mapstructure:"summarizer_consecutive_failures_cb"`

	MailAPIKey   string `mapstructure:"mail_api_key"`
	MailFrom     string `mapstructure:"mail_from"`
	MailFromName string `mapstructure:"mail_from_name"`

	AudioStoragePath   string `mapstructure:"audio_storage_path" validate:"required"`
	BaseUrl            string `mapstructure:"base_url"`
	PublicAccessSecret string `mapstructure:"public_access_secret"`

	HTTPPort    string `mapstructure:"http_port"`
	HTTPTimeout int    `mapstructure:"http_timeout"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	return nil
}

func Validate() error {
	return validator.New().Struct(&Conf)
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("PROVIDER_TIMEOUT", "30")
	viper.SetDefault("PROVIDER_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("PROVIDER_RETRY_BACKOFF_MIN", "1")
	viper.SetDefault("PROVIDER_RETRY_BACKOFF_MAX", "10")
	viper.SetDefault("PROVIDER_MAX_VOICE_FILE_SIZE", "26214400")
	viper.SetDefault("PROVIDER_INTERVAL_CB", "30")
	viper.SetDefault("PROVIDER_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("TRANSCRIBER_TIMEOUT", "120")
	viper.SetDefault("TRANSCRIBER_RETRY_MAX_ATTEMPTS", "3")
	viper.SetDefault("TRANSCRIBER_RETRY_MIN_BACKOFF", "1")
	viper.SetDefault("TRANSCRIBER_RETRY_MAX_BACKOFF", "10")
	viper.SetDefault("TRANSCRIBER_INTERVAL_CB", "30")
	viper.SetDefault("TRANSCRIBER_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("SUMMARIZER_TIMEOUT", "60")
	viper.SetDefault("SUMMARIZER_INTERVAL_CB", "30")
	viper.SetDefault("SUMMARIZER_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("MAIL_FROM_NAME", "Phone App")
	viper.SetDefault("AUDIO_STORAGE_PATH", "./data/voicemails")
	viper.SetDefault("BASE_URL", "http://localhost:9000")
	viper.SetDefault("PUBLIC_ACCESS_SECRET", "change-me-in-production")
	viper.SetDefault("HTTP_PORT", "9000")
	viper.SetDefault("HTTP_TIMEOUT", "60")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE_PATH", "./access.log")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
