package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`

	DBDriver    string `mapstructure:"DB_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	PostTable   string `mapstructure:"POST_TABLE"`
	LogTable    string `mapstructure:"LOG_TABLE"`

	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	LockTTL       time.Duration `mapstructure:"LOCK_TTL"`

	BaseURL            string   `mapstructure:"BASE_URL"`
	ListingURLTemplate string   `mapstructure:"LISTING_URL_TEMPLATE"`
	DetailURLTemplate  string   `mapstructure:"DETAIL_URL_TEMPLATE"`
	SectionIDs         []string `mapstructure:"SECTION_IDS"`
	MaxPages           int      `mapstructure:"MAX_PAGES"`
	DelaySeconds       float64  `mapstructure:"DELAY_SECONDS"`
	DetailDelayMin     float64  `mapstructure:"DETAIL_DELAY_MIN"`
	DetailDelayMax     float64  `mapstructure:"DETAIL_DELAY_MAX"`
	StickyPolicy       string   `mapstructure:"STICKY_POLICY"`

	HTTPTimeout       time.Duration `mapstructure:"HTTP_TIMEOUT"`
	MaxRetries        int           `mapstructure:"MAX_RETRIES"`
	RetryBackoff      time.Duration `mapstructure:"RETRY_BACKOFF"`
	RequestsPerMinute int           `mapstructure:"REQUESTS_PER_MINUTE"`
	UserAgents        []string      `mapstructure:"-"` // USER_AGENTS, separated by | or newlines
	Proxies           []string      `mapstructure:"PROXIES"`

	ImageBasePath    string        `mapstructure:"IMAGE_BASE_PATH"`
	ImageTokenPrefix string        `mapstructure:"IMAGE_TOKEN_PREFIX"`
	ImageTimeout     time.Duration `mapstructure:"IMAGE_TIMEOUT"`

	ServerPort     string        `mapstructure:"SERVER_PORT"`
	CrawlSchedule  string        `mapstructure:"CRAWL_SCHEDULE"`
	RunTimeout     time.Duration `mapstructure:"RUN_TIMEOUT"`
	ExportPath     string        `mapstructure:"EXPORT_PATH"`
	PushgatewayURL string        `mapstructure:"PUSHGATEWAY_URL"`
}

var defaults = map[string]any{
	"ENVIRONMENT": "production",
	"LOG_LEVEL":   "info",
	"LOG_FORMAT":  "json",

	"DB_DRIVER":    "postgres",
	"DATABASE_URL": "",
	"POST_TABLE":   "forum_posts",
	"LOG_TABLE":    "crawler_log",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,
	"LOCK_TTL":       "2h",

	"BASE_URL":             "https://bbs.boniu123.cc",
	"LISTING_URL_TEMPLATE": "{base}/forum.php?mod=forumdisplay&fid={fid}&page={page}",
	"DETAIL_URL_TEMPLATE":  "{base}/forum.php?mod=viewthread&tid={id}",
	"SECTION_IDS":          "89",
	"MAX_PAGES":            2,
	"DELAY_SECONDS":        1.0,
	"DETAIL_DELAY_MIN":     0.5,
	"DETAIL_DELAY_MAX":     1.5,
	"STICKY_POLICY":        "coupled",

	"HTTP_TIMEOUT":        "30s",
	"MAX_RETRIES":         3,
	"RETRY_BACKOFF":       "1s",
	"REQUESTS_PER_MINUTE": 0,
	"USER_AGENTS":         "",
	"PROXIES":             "",

	"IMAGE_BASE_PATH":    "data/images/boniu",
	"IMAGE_TOKEN_PREFIX": "images/boniu",
	"IMAGE_TIMEOUT":      "30s",

	"SERVER_PORT":     "8080",
	"CRAWL_SCHEDULE":  "0 23 */2 * *",
	"RUN_TIMEOUT":     "1h",
	"EXPORT_PATH":     "data/forum_posts.json",
	"PUSHGATEWAY_URL": "",
}

// Load reads configuration from env files, environment variables and flags.
//
// When env is non-empty the file env.<env> is loaded first, then .env. Neither
// overrides variables already present in the process environment. Flags bound
// here take precedence over everything else when set on the command line.
func Load(env string, flags *pflag.FlagSet) (*Config, error) {
	if env != "" {
		if err := loadEnvFile("env." + env); err != nil {
			return nil, err
		}
	}
	if err := loadEnvFile(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if flags != nil {
		if f := flags.Lookup("max-pages"); f != nil {
			if err := v.BindPFlag("MAX_PAGES", f); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.SectionIDs = compact(cfg.SectionIDs)
	// User agents contain commas, so they cannot use viper's comma split.
	cfg.UserAgents = compact(strings.FieldsFunc(v.GetString("USER_AGENTS"), isUserAgentSeparator))
	cfg.Proxies = compact(cfg.Proxies)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can drive a crawl.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.StickyPolicy {
	case "coupled", "decoupled":
	default:
		return fmt.Errorf("unsupported STICKY_POLICY %q", c.StickyPolicy)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES must be at least 1, got %d", c.MaxPages)
	}
	if c.DetailDelayMax < c.DetailDelayMin {
		return fmt.Errorf("DETAIL_DELAY_MAX (%v) is below DETAIL_DELAY_MIN (%v)", c.DetailDelayMax, c.DetailDelayMin)
	}
	return nil
}

// Delay is the pause between successive listing pages.
func (c *Config) Delay() time.Duration {
	return seconds(c.DelaySeconds)
}

// DetailDelayRange is the randomized pause window between detail fetches.
func (c *Config) DetailDelayRange() (time.Duration, time.Duration) {
	return seconds(c.DetailDelayMin), seconds(c.DetailDelayMax)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func loadEnvFile(name string) error {
	if _, err := os.Stat(name); err != nil {
		// Missing env files are fine; configuration can come purely from the environment.
		return nil
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("unable to load %s: %w", name, err)
	}
	return nil
}

func isUserAgentSeparator(r rune) bool {
	return r == '|' || r == '\n' || r == '\r'
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
