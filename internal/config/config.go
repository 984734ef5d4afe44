// Пакет config — загрузка и валидация конфигурации Files Manager.
// Источники по убыванию приоритета: переменные окружения FM_*,
// файл конфигурации (--config), значения по умолчанию.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "FM"

// Config содержит все параметры конфигурации Files Manager.
type Config struct {
	// Порт HTTP-сервера (serve)
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
	// Порт metrics/health процесса worker
	WorkerMetricsPort int `mapstructure:"worker_metrics_port" validate:"min=1,max=65535"`
	// Корневая директория Blob Store
	FolderPath string `mapstructure:"folder_path" validate:"required"`

	// MongoDB
	DBHost     string `mapstructure:"db_host" validate:"required"`
	DBPort     int    `mapstructure:"db_port" validate:"min=1,max=65535"`
	DBDatabase string `mapstructure:"db_database" validate:"required"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`

	// Redis
	RedisHost     string `mapstructure:"redis_host" validate:"required"`
	RedisPort     int    `mapstructure:"redis_port" validate:"min=1,max=65535"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"min=0"`
	// Префикс ключей сессий в Redis
	SessionKeyPrefix string `mapstructure:"session_key_prefix"`

	// Очередь заданий миниатюр
	QueueName         string        `mapstructure:"queue_name" validate:"required"`
	JobMaxAttempts    int           `mapstructure:"job_max_attempts" validate:"min=1"`
	JobBackoff        time.Duration `mapstructure:"job_backoff" validate:"gt=0"`
	DispatchBuffer    int           `mapstructure:"dispatch_buffer" validate:"min=1"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency" validate:"min=1"`

	// Срок аренды задания обработчиком; по истечении задание возвращается в pending
	JobVisibilityTimeout time.Duration `mapstructure:"job_visibility_timeout" validate:"gt=0"`

	// Кэш записей Access Gate. TTL 0 — без истечения.
	CacheSize int           `mapstructure:"cache_size" validate:"min=1"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`

	// Сверка Blob Store с Metadata Store
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
	OrphanGracePeriod time.Duration `mapstructure:"orphan_grace_period" validate:"gte=0"`

	// JWT-идентичности. Пустой JWKSURL — только сессии Redis.
	JWKSURL             string        `mapstructure:"jwks_url" validate:"omitempty,url"`
	JWKSCACert          string        `mapstructure:"jwks_ca_cert"`
	TLSSkipVerify       bool          `mapstructure:"tls_skip_verify"`
	JWKSClientTimeout   time.Duration `mapstructure:"jwks_client_timeout" validate:"gt=0"`
	JWKSRefreshInterval time.Duration `mapstructure:"jwks_refresh_interval" validate:"gt=0"`
	JWTLeeway           time.Duration `mapstructure:"jwt_leeway" validate:"gte=0"`

	// TLS HTTP-сервера (оба пути или ни одного)
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration `mapstructure:"http_read_timeout" validate:"gt=0"`
	HTTPWriteTimeout time.Duration `mapstructure:"http_write_timeout" validate:"gt=0"`
	HTTPIdleTimeout  time.Duration `mapstructure:"http_idle_timeout" validate:"gt=0"`
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	// Логирование
	LogLevelName string     `mapstructure:"log_level" validate:"oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	LogFormat    string     `mapstructure:"log_format" validate:"oneof=json text"`
	LogLevel     slog.Level `mapstructure:"-"`

	// topologymetrics
	ServiceID              string        `mapstructure:"service_id" validate:"required"`
	DephealthGroup         string        `mapstructure:"dephealth_group" validate:"required"`
	DephealthCheckInterval time.Duration `mapstructure:"dephealth_check_interval" validate:"gt=0"`
}

// defaults — значения по умолчанию для каждого ключа.
// Ключ без значения по умолчанию не читается из окружения при Unmarshal.
var defaults = map[string]any{
	"port":                     5000,
	"worker_metrics_port":      5001,
	"folder_path":              "/tmp/files_manager",
	"db_host":                  "localhost",
	"db_port":                  27017,
	"db_database":              "files_manager",
	"db_user":                  "",
	"db_password":              "",
	"redis_host":               "localhost",
	"redis_port":               6379,
	"redis_password":           "",
	"redis_db":                 0,
	"session_key_prefix":       "auth_",
	"queue_name":               "fileQueue",
	"job_max_attempts":         3,
	"job_backoff":              "5s",
	"job_visibility_timeout":   "5m",
	"dispatch_buffer":          256,
	"worker_concurrency":       1,
	"cache_size":               1024,
	"cache_ttl":                "5m",
	"reconcile_interval":       "6h",
	"orphan_grace_period":      "24h",
	"jwks_url":                 "",
	"jwks_ca_cert":             "",
	"tls_skip_verify":          false,
	"jwks_client_timeout":      "5s",
	"jwks_refresh_interval":    "15s",
	"jwt_leeway":               "30s",
	"tls_cert":                 "",
	"tls_key":                  "",
	"http_read_timeout":        "30s",
	"http_write_timeout":       "60s",
	"http_idle_timeout":        "120s",
	"shutdown_timeout":         "10s",
	"log_level":                "info",
	"log_format":               "json",
	"service_id":               "files-manager",
	"dephealth_group":          "files-manager",
	"dephealth_check_interval": "15s",
}

var validate = validator.New()

// Load загружает конфигурацию. configPath — путь к файлу (yaml/json/toml),
// пустая строка — только окружение и значения по умолчанию.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("чтение файла конфигурации %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	level, err := parseLogLevel(cfg.LogLevelName)
	if err != nil {
		return nil, fmt.Errorf("FM_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

// Validate проверяет конфигурацию по тегам и дополнительным правилам.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return errors.New("FM_TLS_CERT и FM_TLS_KEY задаются вместе")
	}
	return nil
}

// formatValidationError преобразует первую ошибку validator в сообщение
// с именем переменной окружения.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: недопустимое значение %v (правило %s)",
			envName(e.Field()), e.Value(), e.Tag())
	}
	return fmt.Errorf("валидация конфигурации: %w", err)
}

// envName возвращает имя переменной окружения для поля Config.
func envName(field string) string {
	for key := range defaults {
		if strings.EqualFold(strings.ReplaceAll(key, "_", ""), field) {
			return EnvPrefix + "_" + strings.ToUpper(key)
		}
	}
	if field == "LogLevelName" {
		return EnvPrefix + "_LOG_LEVEL"
	}
	return field
}

// TLSEnabled сообщает, настроен ли TLS HTTP-сервера.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// RedisAddr возвращает host:port Redis.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

// RedisURL возвращает redis:// URL (для проверок topologymetrics).
func (c *Config) RedisURL() string {
	if c.RedisPassword != "" {
		return fmt.Sprintf("redis://:%s@%s/%d", c.RedisPassword, c.RedisAddr(), c.RedisDB)
	}
	return fmt.Sprintf("redis://%s/%d", c.RedisAddr(), c.RedisDB)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
