package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-infomoney-crawler/internal/crawler/config"
	delivery "golang-infomoney-crawler/internal/crawler/delivery/http"
	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/internal/crawler/repository"
	"golang-infomoney-crawler/internal/crawler/service"
	"golang-infomoney-crawler/internal/crawler/stats"
	"golang-infomoney-crawler/pkg/logger"
	"golang-infomoney-crawler/pkg/postgres"
	"golang-infomoney-crawler/pkg/redis"
	"golang-infomoney-crawler/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

var (
	configPath string
	params     dto.CrawlParams
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawls prices and earnings once and exits",
	Run:   runCrawl,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Crawls periodically on the configured cron schedule",
	Run:   runSchedule,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the read API over stored prices and earnings",
	Run:   runServe,
}

// application holds what every command shares.
type application struct {
	cfg       *config.Config
	logger    *logger.Logger
	publisher stats.Publisher
	notifier  telegram.Notifier
	closers   []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func bootstrap() *application {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	app := &application{cfg: cfg, logger: appLogger, publisher: stats.NewNopPublisher()}
	app.closers = append(app.closers, func() { _ = appLogger.Sync() })

	// Redis is optional; without it stats are only logged
	if cfg.Redis.Host != "" {
		redisClient, err := redis.NewClient(redis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			appLogger.Warn("Redis unavailable, crawl stats will not be published", logger.ErrorField(err))
		} else {
			app.publisher = stats.NewRedisPublisher(redisClient.Client, cfg.Stats.TTL)
			app.closers = append(app.closers, func() { _ = redisClient.Close() })
		}
	}

	notifier, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		appLogger.Warn("Telegram unavailable, run summaries will not be sent", logger.ErrorField(err))
	} else if notifier != nil {
		app.notifier = notifier
	}

	return app
}

func (a *application) postgresConfig() postgres.Config {
	return postgres.Config{
		Host:            a.cfg.Database.Host,
		Port:            a.cfg.Database.Port,
		User:            a.cfg.Database.User,
		Password:        a.cfg.Database.Password,
		DBName:          a.cfg.Database.DBName,
		SSLMode:         a.cfg.Database.SSLMode,
		TimeZone:        a.cfg.Database.TimeZone,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
		LogLevel:        a.cfg.Database.LogLevel,
	}
}

// openRepository opens one database session per crawl run.
func (a *application) openRepository(ctx context.Context) (repository.AssetRepository, error) {
	db, err := postgres.NewDB(a.postgresConfig())
	if err != nil {
		return nil, err
	}
	return repository.NewAssetRepository(db.DB), nil
}

func (a *application) crawlService() service.CrawlService {
	return service.NewCrawlService(a.cfg, a.openRepository, a.publisher, a.notifier, a.logger)
}

func runCrawl(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := bootstrap()
	defer app.close()

	app.logger.Info("Starting crawl", logger.Field("name", app.cfg.App.Name))
	summary, err := app.crawlService().Run(ctx, params)
	if err != nil {
		app.logger.Error("Crawl failed", logger.StringField("run_id", summary.RunID), logger.ErrorField(err))
		app.close()
		os.Exit(1)
	}
	app.logger.Info("Crawl completed", logger.StringField("run_id", summary.RunID), logger.Field("duration", summary.Duration().String()))
}

func runSchedule(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := bootstrap()
	defer app.close()

	app.logger.Info("Starting crawl scheduler", logger.Field("name", app.cfg.App.Name))
	scheduler := service.NewSchedulerService(app.crawlService(), params, app.cfg.Scheduler.Cron, app.cfg.Scheduler.RunOnStart, app.logger)
	if err := scheduler.Start(ctx); err != nil {
		app.logger.Fatal("Failed to start scheduler", logger.ErrorField(err))
	}
	app.logger.Info("Scheduler exiting")
}

func runServe(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := bootstrap()
	defer app.close()

	db, err := postgres.NewDB(app.postgresConfig())
	if err != nil {
		app.logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		app.logger.Fatal("Failed to get database instance", logger.ErrorField(err))
	}
	defer sqlDB.Close()

	assetSvc := service.NewAssetService(repository.NewAssetRepository(db.DB), app.logger)

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	assetHandler := delivery.NewAssetHandler(assetSvc, app.logger)
	apiV1 := e.Group("/api/v1")
	assetHandler.RegisterRoutes(apiV1.Group("/assets"))
	delivery.NewHealthHandler(sqlDB).RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%d", app.cfg.API.Host, app.cfg.API.Port)
		app.logger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop() // trigger shutdown
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	app.logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	app.logger.Info("Server exiting")
}

func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&params.Assets, "asset", nil, "Asset code to crawl; repeat or comma-separate. Default: every listed asset")
	cmd.Flags().StringVar(&params.StartDate, "start-date", "", "First day of a custom price window (DD/MM/YYYY)")
	cmd.Flags().StringVar(&params.EndDate, "end-date", "", "Last day of a custom price window (DD/MM/YYYY)")
	cmd.Flags().BoolVar(&params.SkipPrices, "no-prices", false, "Skip price history")
	cmd.Flags().BoolVar(&params.SkipEarnings, "no-earnings", false, "Skip earnings history")
	cmd.Flags().BoolVar(&params.Force, "force", false, "Overwrite records that are already stored")
}

func main() {
	rootCmd := &cobra.Command{Use: "crawler"}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config-crawler.yaml", "Path to the configuration file")

	addCrawlFlags(crawlCmd)
	addCrawlFlags(scheduleCmd)

	rootCmd.AddCommand(crawlCmd, scheduleCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing crawler CLI: %s\n", err)
		os.Exit(1)
	}
}
