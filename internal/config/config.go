// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/reconcile"
)

// EnvPrefix namespaces environment overrides, e.g. JOBCRAWLER_FIRECRAWL_API_KEY.
const EnvPrefix = "JOBCRAWLER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Firecrawl FirecrawlConfig `mapstructure:"firecrawl"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	DB        DBConfig        `mapstructure:"db"`
	Lock      LockConfig      `mapstructure:"lock"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// RequestTimeout bounds non-crawl requests; crawl and schedule requests use CrawlTimeout.
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CrawlTimeout    time.Duration `mapstructure:"crawl_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	UserAgent         string             `mapstructure:"user_agent"`
	UserAgents        []string           `mapstructure:"user_agents"`
	FetchTimeout      time.Duration      `mapstructure:"fetch_timeout"`
	RetryCount        int                `mapstructure:"retry_count"`
	RetryBaseDelay    time.Duration      `mapstructure:"retry_base_delay"`
	RetryMaxDelay     time.Duration      `mapstructure:"retry_max_delay"`
	InterSourceDelay  time.Duration      `mapstructure:"inter_source_delay"`
	RetentionDays     int                `mapstructure:"retention_days"`
	SourceConcurrency int                `mapstructure:"source_concurrency"`
	MaxPagesPerSource int                `mapstructure:"max_pages_per_source"`
	MaxBodyBytes      int                `mapstructure:"max_body_bytes"`
	SearchQueries     []string           `mapstructure:"search_queries"`
	DefaultLocation   string             `mapstructure:"default_location"`
	FingerprintSalt   string             `mapstructure:"fingerprint_salt"`
	ReconcileMode     string             `mapstructure:"reconcile_mode"`
	IgnoreRobots      bool               `mapstructure:"ignore_robots"`
	RobotsTimeout     time.Duration      `mapstructure:"robots_timeout"`
	DefaultRPS        float64            `mapstructure:"default_rps"`
	DomainRPS         map[string]float64 `mapstructure:"domain_rps"`
	SourceFilter      string             `mapstructure:"source_filter"`
	BlockedDomains    []string           `mapstructure:"blocked_domains"`
}

// FirecrawlConfig configures the managed crawling service. An empty APIKey disables it.
type FirecrawlConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Limit   int           `mapstructure:"limit"`
	Timeout time.Duration `mapstructure:"timeout"`

	// PollInterval spaces crawl status checks; MaxWait bounds a whole crawl.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
}

// HeadlessConfig configures the chromedp fetcher and shell detection.
type HeadlessConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxParallel   int           `mapstructure:"max_parallel"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	ShellMinChars int           `mapstructure:"shell_min_chars"`
}

// DBConfig selects and tunes the job store.
type DBConfig struct {
	// Driver is one of memory, postgres or sqlite.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// LockConfig selects the run lock. An empty RedisURL keeps the lock in process.
type LockConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// PublisherConfig selects where run reports are published.
type PublisherConfig struct {
	// Driver is one of none, memory or pubsub.
	Driver    string `mapstructure:"driver"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ArchiveConfig selects where raw pages are kept.
type ArchiveConfig struct {
	// Driver is one of none, memory, local or gcs.
	Driver    string `mapstructure:"driver"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// SchedulerConfig controls the crawl interval gate and the optional in-process trigger.
type SchedulerConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
	Cron        string        `mapstructure:"cron"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// ProgressConfig controls the crawl progress event hub.
type ProgressConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.crawl_timeout", "30m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("crawler.user_agent", "jobcrawler/1.0 (+https://github.com/JakeFAU/job-crawler)")
	v.SetDefault("crawler.user_agents", []string{})
	v.SetDefault("crawler.fetch_timeout", "30s")
	v.SetDefault("crawler.retry_count", 2)
	v.SetDefault("crawler.retry_base_delay", "500ms")
	v.SetDefault("crawler.retry_max_delay", "5s")
	v.SetDefault("crawler.inter_source_delay", "2s")
	v.SetDefault("crawler.retention_days", 30)
	v.SetDefault("crawler.source_concurrency", 1)
	v.SetDefault("crawler.max_pages_per_source", 0)
	v.SetDefault("crawler.max_body_bytes", 5*1024*1024)
	v.SetDefault("crawler.search_queries", []string{"software engineer", "data analyst"})
	v.SetDefault("crawler.default_location", "India")
	v.SetDefault("crawler.fingerprint_salt", crawler.SaltNone)
	v.SetDefault("crawler.reconcile_mode", string(reconcile.ModeIgnoreDuplicates))
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("crawler.robots_timeout", "10s")
	v.SetDefault("crawler.default_rps", 1.0)
	v.SetDefault("crawler.domain_rps", map[string]float64{})
	v.SetDefault("crawler.source_filter", "")
	v.SetDefault("crawler.blocked_domains", []string{})

	v.SetDefault("firecrawl.api_key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev")
	v.SetDefault("firecrawl.limit", 100)
	v.SetDefault("firecrawl.timeout", "60s")
	v.SetDefault("firecrawl.poll_interval", "2s")
	v.SetDefault("firecrawl.max_wait", "5m")

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", "25s")
	v.SetDefault("headless.settle_delay", "750ms")
	v.SetDefault("headless.shell_min_chars", 512)

	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.sqlite_path", "data/jobcrawler.db")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.migrate", true)

	v.SetDefault("lock.redis_url", "")
	v.SetDefault("lock.key", "jobcrawler:run-lock")
	v.SetDefault("lock.ttl", "1h")

	v.SetDefault("publisher.driver", "memory")
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "job-crawl-completed")

	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.base_dir", "data/pages")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "")

	v.SetDefault("scheduler.min_interval", "12h")
	v.SetDefault("scheduler.cron", "")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "job-crawler")

	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "1s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		errs = append(errs, errors.New("auth.api_key must be set when auth is enabled"))
	}
	errs = append(errs, c.Crawler.validate()...)
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
	}

	switch c.DB.Driver {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("db.dsn must be set for the postgres driver"))
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			errs = append(errs, errors.New("db.sqlite_path must be set for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not one of memory, postgres, sqlite", c.DB.Driver))
	}

	switch c.Publisher.Driver {
	case "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			errs = append(errs, errors.New("publisher.project_id and publisher.topic must be set for pubsub"))
		}
	default:
		errs = append(errs, fmt.Errorf("publisher.driver %q is not one of none, memory, pubsub", c.Publisher.Driver))
	}

	switch c.Archive.Driver {
	case "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			errs = append(errs, errors.New("archive.base_dir must be set for the local driver"))
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			errs = append(errs, errors.New("archive.gcs_bucket must be set for the gcs driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.driver %q is not one of none, memory, local, gcs", c.Archive.Driver))
	}

	if c.Lock.RedisURL != "" && c.Lock.TTL <= 0 {
		errs = append(errs, errors.New("lock.ttl must be > 0 when redis is used"))
	}
	if c.Progress.Enabled && c.Progress.BufferSize <= 0 {
		errs = append(errs, errors.New("progress.buffer_size must be > 0 when progress is enabled"))
	}
	if c.Scheduler.MinInterval <= 0 {
		errs = append(errs, errors.New("scheduler.min_interval must be > 0"))
	}
	return errors.Join(errs...)
}

func (c CrawlerConfig) validate() []error {
	var errs []error
	if strings.TrimSpace(c.UserAgent) == "" && len(c.UserAgents) == 0 {
		errs = append(errs, errors.New("crawler.user_agent must be set"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("crawler.fetch_timeout must be > 0"))
	}
	if c.RetryCount < 0 {
		errs = append(errs, errors.New("crawler.retry_count must be >= 0"))
	}
	if c.InterSourceDelay < 0 {
		errs = append(errs, errors.New("crawler.inter_source_delay must be >= 0"))
	}
	if c.RetentionDays <= 0 {
		errs = append(errs, errors.New("crawler.retention_days must be > 0"))
	}
	if c.SourceConcurrency <= 0 {
		errs = append(errs, errors.New("crawler.source_concurrency must be > 0"))
	}
	if c.MaxPagesPerSource < 0 {
		errs = append(errs, errors.New("crawler.max_pages_per_source must be >= 0"))
	}
	switch c.FingerprintSalt {
	case crawler.SaltNone, crawler.SaltRun:
	default:
		errs = append(errs, fmt.Errorf("crawler.fingerprint_salt %q is not one of none, run", c.FingerprintSalt))
	}
	if _, err := reconcile.ParseMode(c.ReconcileMode); err != nil {
		errs = append(errs, fmt.Errorf("crawler.reconcile_mode: %w", err))
	}
	if c.DefaultRPS < 0 {
		errs = append(errs, errors.New("crawler.default_rps must be >= 0"))
	}
	for domain, rps := range c.DomainRPS {
		if rps <= 0 {
			errs = append(errs, fmt.Errorf("crawler.domain_rps[%s] must be > 0", domain))
		}
	}
	return errs
}

// Agents returns the User-Agent rotation list, falling back to the single UserAgent.
func (c CrawlerConfig) Agents() []string {
	if len(c.UserAgents) > 0 {
		return c.UserAgents
	}
	return []string{c.UserAgent}
}
