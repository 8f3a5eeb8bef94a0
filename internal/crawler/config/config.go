package config

import (
	"strings"
	"time"

	"golang-infomoney-crawler/pkg/common"
	"golang-infomoney-crawler/pkg/config"
)

// Crawler holds the upstream endpoints and crawl behaviour.
type Crawler struct {
	StartURL        string `mapstructure:"start_url"`
	APIURL          string `mapstructure:"api_url"`
	DetailsURL      string `mapstructure:"details_url"`
	FundPriceURL    string `mapstructure:"fund_price_url"`
	FundEarningsURL string `mapstructure:"fund_earnings_url"`
	// FundPathSegment marks fund pages in the resolved details URL.
	FundPathSegment  string `mapstructure:"fund_path_segment"`
	ResultsPerPage   int    `mapstructure:"results_per_page"`
	PricePageSize    int    `mapstructure:"price_page_size"`
	EarningsPageSize int    `mapstructure:"earnings_page_size"`
	// MaxPages caps the pages requested per asset and flow.
	MaxPages         int    `mapstructure:"max_pages"`
	PriceWindowDays  int    `mapstructure:"price_window_days"`
	FundWindowYears  int    `mapstructure:"fund_window_years"`
	FilesStoragePath string `mapstructure:"files_storage_path"`
	// RedirectOverrides maps asset codes whose details page redirects to an image to their real page.
	RedirectOverrides map[string]string `mapstructure:"redirect_overrides"`
}

// Engine holds request scheduling settings.
type Engine struct {
	ConcurrentRequests int           `mapstructure:"concurrent_requests"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	RetryTimes         int           `mapstructure:"retry_times"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// Scheduler holds the periodic crawl settings.
type Scheduler struct {
	Cron       string `mapstructure:"cron"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// Stats holds run statistics publishing settings.
type Stats struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Telegram holds configuration for the Telegram notifier. An empty token disables it.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Config holds the full configuration for the crawler service.
type Config struct {
	App       config.App      `mapstructure:"app"`
	Logger    config.Logger   `mapstructure:"logger"`
	Database  config.Database `mapstructure:"database"`
	Redis     config.Redis    `mapstructure:"redis"`
	API       config.API      `mapstructure:"api"`
	Crawler   Crawler         `mapstructure:"crawler"`
	Engine    Engine          `mapstructure:"engine"`
	Scheduler Scheduler       `mapstructure:"scheduler"`
	Stats     Stats           `mapstructure:"stats"`
	Telegram  Telegram        `mapstructure:"telegram"`
}

// Load loads the crawler configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// SetDefaults fills every unset value with the production default.
func (c *Config) SetDefaults() {
	cr := &c.Crawler
	if cr.StartURL == "" {
		cr.StartURL = "https://www.infomoney.com.br/ferramentas/altas-e-baixas/"
	}
	if cr.APIURL == "" {
		cr.APIURL = "https://www.infomoney.com.br/wp-admin/admin-ajax.php"
	}
	if cr.DetailsURL == "" {
		cr.DetailsURL = "https://www.infomoney.com.br/"
	}
	if cr.FundPriceURL == "" {
		cr.FundPriceURL = "https://fii-api.infomoney.com.br/api/v1/fii/cotacao/historico/grafico"
	}
	if cr.FundEarningsURL == "" {
		cr.FundEarningsURL = "https://fii-api.infomoney.com.br/api/v1/fii/provento/historico"
	}
	if cr.FundPathSegment == "" {
		cr.FundPathSegment = "fii"
	}
	if cr.ResultsPerPage <= 0 {
		cr.ResultsPerPage = 1000
	}
	if cr.PricePageSize <= 0 {
		cr.PricePageSize = 99999
	}
	if cr.EarningsPageSize <= 0 {
		cr.EarningsPageSize = 100
	}
	if cr.MaxPages <= 0 {
		cr.MaxPages = 50
	}
	if cr.PriceWindowDays <= 0 {
		cr.PriceWindowDays = 730
	}
	if cr.FundWindowYears <= 0 {
		cr.FundWindowYears = 5
	}
	if cr.FilesStoragePath == "" {
		cr.FilesStoragePath = "data"
	}
	// viper lowercases map keys; asset codes are upper case.
	overrides := make(map[string]string, len(cr.RedirectOverrides))
	for code, u := range cr.RedirectOverrides {
		overrides[strings.ToUpper(code)] = u
	}
	cr.RedirectOverrides = overrides

	e := &c.Engine
	if e.ConcurrentRequests <= 0 {
		e.ConcurrentRequests = 2
	}
	if e.RetryTimes <= 0 {
		e.RetryTimes = 3
	}
	if e.RequestTimeout <= 0 {
		e.RequestTimeout = 30 * time.Second
	}
	if e.UserAgent == "" {
		e.UserAgent = common.DefaultUserAgent
	}

	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "0 21 * * 1-5"
	}
	if c.Stats.TTL <= 0 {
		c.Stats.TTL = 7 * 24 * time.Hour
	}
}
