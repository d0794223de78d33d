package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/assetdesk/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, looking in the working directory first and then in the
// nearest directory containing go.mod. It returns how many files were loaded.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if path, ok := locate(file); ok {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func locate(file string) (string, bool) {
	if fileExists(file) {
		return file, true
	}
	if filepath.IsAbs(file) {
		return "", false
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for dir := wd; ; {
		if fileExists(filepath.Join(dir, "go.mod")) {
			candidate := filepath.Join(dir, file)
			return candidate, fileExists(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"assetdesk"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"assetdesk"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

// Upper bounds for import batch size and batch concurrency, for configuration and per-run
// overrides alike.
const (
	MaxImportBatchSize   = 1000
	MaxImportConcurrency = 16
)

type ImportOptions struct {
	Backend         string        `env:"IMPORT_BACKEND" envDefault:"db"` // db or memory
	BatchSize       int           `env:"IMPORT_BATCH_SIZE" envDefault:"200"`
	Concurrency     int           `env:"IMPORT_CONCURRENCY" envDefault:"4"`
	MaxRetries      int           `env:"IMPORT_MAX_RETRIES" envDefault:"2"`
	RetryInterval   time.Duration `env:"IMPORT_RETRY_INTERVAL" envDefault:"200ms"`
	MaxErrorDetails int           `env:"IMPORT_MAX_ERROR_DETAILS" envDefault:"1000"`
	MaxFileSize     int64         `env:"IMPORT_MAX_FILE_SIZE" envDefault:"33554432"`
	SchemaFile      string        `env:"IMPORT_SCHEMA_FILE"`

	ProgressStore string        `env:"IMPORT_PROGRESS_STORE" envDefault:"memory"` // memory or redis
	ProgressTTL   time.Duration `env:"IMPORT_PROGRESS_TTL" envDefault:"24h"`
}

// Validate checks the import configuration for errors
func (o *ImportOptions) Validate() error {
	if o.Backend != "db" && o.Backend != "memory" {
		return fmt.Errorf("import Backend must be 'db' or 'memory', got '%s'", o.Backend)
	}
	if o.BatchSize < 1 || o.BatchSize > MaxImportBatchSize {
		return fmt.Errorf("import BatchSize must be between 1 and %d, got %d", MaxImportBatchSize, o.BatchSize)
	}
	if o.Concurrency < 1 || o.Concurrency > MaxImportConcurrency {
		return fmt.Errorf("import Concurrency must be between 1 and %d, got %d", MaxImportConcurrency, o.Concurrency)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("import MaxRetries must be non-negative, got %d", o.MaxRetries)
	}
	if o.MaxErrorDetails < 1 {
		return fmt.Errorf("import MaxErrorDetails must be positive, got %d", o.MaxErrorDetails)
	}
	if o.MaxFileSize <= 0 {
		return fmt.Errorf("import MaxFileSize must be positive, got %d", o.MaxFileSize)
	}
	if o.ProgressStore != "memory" && o.ProgressStore != "redis" {
		return fmt.Errorf("import ProgressStore must be 'memory' or 'redis', got '%s'", o.ProgressStore)
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	Import        ImportOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	// Looked up on incoming requests; a random uuid is used when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	TenantIDHeader  string `env:"TENANT_ID_HEADER" envDefault:"X-Tenant-ID"`

	// RLS enforcement mode (disabled/enforce).
	RLSEnforce string `env:"RLS_ENFORCE" envDefault:"disabled"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	return ParseLogLevel(c.LogLevel)
}

func ParseLogLevel(level string) logrus.Level {
	switch level {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := c.parse(); err != nil {
		return err
	}
	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger
	return nil
}

// parse reads the environment into c and derives computed fields. It does not touch the log file.
func (c *Configuration) parse() error {
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import configuration error: %w", err)
	}
	if err := c.validateRLS(); err != nil {
		return err
	}

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) validateRLS() error {
	mode := strings.ToLower(strings.TrimSpace(c.RLSEnforce))
	if mode == "" {
		mode = "disabled"
	}
	switch mode {
	case "disabled", "enforce":
	default:
		return fmt.Errorf("invalid RLS_ENFORCE=%q (expected disabled|enforce)", c.RLSEnforce)
	}

	if mode == "enforce" && strings.EqualFold(strings.TrimSpace(c.Database.User), "postgres") {
		return fmt.Errorf("RLS_ENFORCE=enforce requires a non-superuser DB_USER (postgres will bypass RLS)")
	}

	c.RLSEnforce = mode
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
