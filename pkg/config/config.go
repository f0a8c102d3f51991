package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// DefaultWatchlist is used when neither a watch-list file nor a configured
// list is present.
var DefaultWatchlist = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA", "META", "NVDA", "NFLX", "AMD", "INTC"}

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Logger      logger.Config `yaml:"logger"`
	Server      Server        `yaml:"server"`
	Engine      Engine        `yaml:"engine"`
	History     History       `yaml:"history"`
	Market      Market        `yaml:"market"`
	Artifacts   Artifacts     `yaml:"artifacts"`
	Redis       Redis         `yaml:"redis"`
	ClickHouse  ClickHouse    `yaml:"clickhouse"`
	Kafka       Kafka         `yaml:"kafka"`
	Scheduler   Scheduler     `yaml:"scheduler"`
	RateLimit   RateLimit     `yaml:"rate_limit"`
}

type Server struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"20s"`
	MetricsPath     string        `yaml:"metrics_path" default:"/metrics"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// Engine holds the forecasting engine knobs.
type Engine struct {
	Window                int           `yaml:"window" default:"60" validate:"min=2"`
	Margin                int           `yaml:"margin" default:"10" validate:"min=0"`
	Units                 int           `yaml:"units" default:"50" validate:"min=1"`
	Layers                int           `yaml:"layers" default:"2" validate:"min=1,max=4"`
	Dropout               float64       `yaml:"dropout" default:"0.2" validate:"min=0,lt=1"`
	LearningRate          float64       `yaml:"learning_rate" default:"0.002" validate:"gt=0"`
	Epochs                int           `yaml:"epochs" default:"30" validate:"min=1"`
	BatchSize             int           `yaml:"batch_size" default:"64" validate:"min=1"`
	ValidationSplit       float64       `yaml:"validation_split" default:"0.05" validate:"min=0,lt=1"`
	Seed                  int64         `yaml:"seed" default:"42"`
	StaleAfter            time.Duration `yaml:"stale_after" default:"24h"`
	PrimaryConfidence     float64       `yaml:"primary_confidence" default:"0.8"`
	IntervalConfidence    float64       `yaml:"interval_confidence" default:"0.95"`
	FallbackWindow        int           `yaml:"fallback_window" default:"20" validate:"min=1"`
	MaxConcurrentTraining int           `yaml:"max_concurrent_training" default:"2" validate:"min=1"`
	PretrainWorkers       int           `yaml:"pretrain_workers" default:"2" validate:"min=1"`
	FailureCooldown       time.Duration `yaml:"failure_cooldown" default:"10m"`
	TrainingTimeout       time.Duration `yaml:"training_timeout"`
	DistributedLock       bool          `yaml:"distributed_lock"`
	Watchlist             []string      `yaml:"watchlist"`
	WatchlistFile         string        `yaml:"watchlist_file" default:"config/watchlist.txt"`
}

type History struct {
	Period         string        `yaml:"period" default:"2y" validate:"oneof=1mo 3mo 6mo 1y 2y 5y 10y max"`
	BaseURL        string        `yaml:"base_url" default:"https://query1.finance.yahoo.com" validate:"url"`
	UserAgent      string        `yaml:"user_agent" default:"Mozilla/5.0 (compatible; FinCast/1.0)"`
	Timeout        time.Duration `yaml:"timeout" default:"10s"`
	MaxRetries     uint64        `yaml:"max_retries" default:"3"`
	RetryMaxWait   time.Duration `yaml:"retry_max_wait" default:"10s"`
	StaleAfterDays int           `yaml:"stale_after_days" default:"2"`
	CacheEnabled   bool          `yaml:"cache_enabled" default:"true"`
}

type Market struct {
	Timezone string   `yaml:"timezone" default:"America/New_York"`
	Holidays []string `yaml:"holidays"`
}

// Artifacts selects where trained models live.
type Artifacts struct {
	Backend    string        `yaml:"backend" default:"sqlite" validate:"oneof=sqlite redis memory"`
	SQLitePath string        `yaml:"sqlite_path" default:"data/artifacts.db"`
	KeyPrefix  string        `yaml:"key_prefix" default:"artifact"`
	TTL        time.Duration `yaml:"ttl"`
}

type Redis struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix" default:"fincast"`
	PoolSize int           `yaml:"pool_size" default:"10"`
	Layered  bool          `yaml:"layered" default:"true"`
	L1TTL    time.Duration `yaml:"l1_ttl" default:"1m"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"fincast"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type Kafka struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"events_topic" default:"fincast.events"`
	TrainTopic  string   `yaml:"train_topic" default:"fincast.train"`
	LogsTopic   string   `yaml:"logs_topic" default:"fincast.logs"`
	Producer    struct {
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"200ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"fincast-trainer"`
		Workers    int           `yaml:"workers" default:"2"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"fincast.train.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
	} `yaml:"consumer"`
}

type Scheduler struct {
	Enabled      bool   `yaml:"enabled" default:"true"`
	PretrainCron string `yaml:"pretrain_cron" default:"0 30 16 * * 1-5"`
	RunOnStart   bool   `yaml:"run_on_start"`
}

type RateLimit struct {
	TrainCapacity  float64 `yaml:"train_capacity" default:"2"`
	TrainPerMinute float64 `yaml:"train_per_minute" default:"1"`
}

// Default returns a configuration populated only from default tags.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if any), the YAML file (defaults when the file is
// missing) and then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		c, err = Default()
	}
	if err != nil {
		return nil, err
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FINCAST_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		c.Engine.Watchlist = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("ARTIFACT_BACKEND"); v != "" {
		c.Artifacts.Backend = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	return nil
}

// Validate checks tag constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Artifacts.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("artifacts.backend=redis requires redis.enabled")
	}
	if c.Artifacts.Backend == "sqlite" && c.Artifacts.SQLitePath == "" {
		return fmt.Errorf("artifacts.sqlite_path is required for the sqlite backend")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	for _, d := range c.Market.Holidays {
		if _, err := time.Parse(util.DateLayout, d); err != nil {
			return fmt.Errorf("market.holidays: %q is not YYYY-MM-DD", d)
		}
	}
	return nil
}

// Watchlist resolves the symbols to track: watch-list file first, then the
// configured list, then DefaultWatchlist.
func (c *Config) Watchlist() []string {
	if c.Engine.WatchlistFile != "" {
		if syms, err := ReadWatchlistFile(c.Engine.WatchlistFile); err == nil && len(syms) > 0 {
			return syms
		}
	}
	if syms := util.NormalizeSymbols(c.Engine.Watchlist); len(syms) > 0 {
		return syms
	}
	return append([]string(nil), DefaultWatchlist...)
}

// ReadWatchlistFile reads one symbol per line. Blank lines and lines starting
// with # are skipped.
func ReadWatchlistFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var syms []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		syms = append(syms, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	return util.NormalizeSymbols(syms), nil
}
