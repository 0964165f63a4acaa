package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/os2mo/mora/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c, err := Load([]string{".env", ".env.local"})
	if err != nil {
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}
	if len(existingFiles) == 0 {
		return 0, nil
	}
	return len(existingFiles), godotenv.Load(existingFiles...)
}

type LoraOptions struct {
	URL     string        `env:"LORA_URL" envDefault:"http://localhost:8080"`
	Timeout time.Duration `env:"LORA_TIMEOUT" envDefault:"30s"`
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"mora"`
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
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"mora"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type Configuration struct {
	Lora          LoraOptions
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions

	ServerPort       int    `env:"PORT" envDefault:"5000"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH"`
	// MO will look for this header in the request, if it's not present, it will generate a random uuidv4
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// MO will look for this header in the request, if it's not present, it will use request.RemoteAddr
	RealIPHeader string   `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
	CorsOrigins  []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	PageSize        int    `env:"PAGE_SIZE" envDefault:"2000"`
	MaxPageSize     int    `env:"MAX_PAGE_SIZE" envDefault:"5000"`
	TreeSearchLimit int    `env:"TREE_SEARCH_LIMIT" envDefault:"500"`
	CollationLocale string `env:"COLLATION_LOCALE" envDefault:"da"`
	Timezone        string `env:"TIMEZONE" envDefault:"Europe/Copenhagen"`
	// last-wins keeps the newest of several facts claiming the same instant; strict rejects the read.
	AmbiguousCurrentPolicy string `env:"AMBIGUOUS_CURRENT_POLICY" envDefault:"last-wins"`

	StoreBackend  string        `env:"STORE_BACKEND" envDefault:"lora"` // lora or memory
	FixturesPath  string        `env:"FIXTURES_PATH"`
	RedisURL      string        `env:"REDIS_URL"`
	ClassCacheTTL time.Duration `env:"CLASS_CACHE_TTL" envDefault:"10m"`
	DarURL        string        `env:"DAR_URL" envDefault:"https://dawa.aws.dk"`
	MigrationsDir string        `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	location *time.Location
	logFile  *os.File
	logger   *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

// Location is the zone calendar dates are anchored in.
func (c *Configuration) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
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

// Load reads the given env files, then the environment, and validates the
// result. The caller owns the returned configuration and must Unload it.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	if c.GoAppEnvironment == Production {
		logging.UseJSON(logger)
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) validate() error {
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}

	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case "lora", "memory":
	default:
		return fmt.Errorf("invalid STORE_BACKEND=%q (expected lora|memory)", c.StoreBackend)
	}

	c.AmbiguousCurrentPolicy = strings.ToLower(strings.TrimSpace(c.AmbiguousCurrentPolicy))
	switch c.AmbiguousCurrentPolicy {
	case "last-wins", "strict":
	default:
		return fmt.Errorf("invalid AMBIGUOUS_CURRENT_POLICY=%q (expected last-wins|strict)", c.AmbiguousCurrentPolicy)
	}

	if c.PageSize <= 0 || c.MaxPageSize < c.PageSize {
		return fmt.Errorf("invalid PAGE_SIZE=%d / MAX_PAGE_SIZE=%d", c.PageSize, c.MaxPageSize)
	}
	if c.TreeSearchLimit <= 0 {
		return fmt.Errorf("invalid TREE_SEARCH_LIMIT=%d", c.TreeSearchLimit)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE=%q: %w", c.Timezone, err)
	}
	c.location = loc
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
