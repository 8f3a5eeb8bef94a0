package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang-infomoney-crawler/internal/crawler/config"
	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/internal/crawler/engine"
	"golang-infomoney-crawler/internal/crawler/pipeline"
	"golang-infomoney-crawler/internal/crawler/repository"
	"golang-infomoney-crawler/internal/crawler/spider"
	"golang-infomoney-crawler/internal/crawler/stats"
	"golang-infomoney-crawler/pkg/logger"
	"golang-infomoney-crawler/pkg/telegram"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// ErrUpstreamUnreachable is returned when requests were issued and none was answered.
var ErrUpstreamUnreachable = errors.New("upstream unreachable: no response received")

// RepositoryFactory opens the database session of one run. The store stage closes it.
type RepositoryFactory func(ctx context.Context) (repository.AssetRepository, error)

// CrawlService defines the interface for running a crawl.
type CrawlService interface {
	Run(ctx context.Context, params dto.CrawlParams) (dto.CrawlSummary, error)
}

// NewCrawlService creates a new crawl service. notifier may be nil.
func NewCrawlService(cfg *config.Config, openRepo RepositoryFactory, publisher stats.Publisher, notifier telegram.Notifier, log *logger.Logger) CrawlService {
	if publisher == nil {
		publisher = stats.NewNopPublisher()
	}
	return &crawlService{
		cfg:       cfg,
		openRepo:  openRepo,
		publisher: publisher,
		notifier:  notifier,
		logger:    log,
	}
}

type crawlService struct {
	cfg       *config.Config
	openRepo  RepositoryFactory
	publisher stats.Publisher
	notifier  telegram.Notifier
	logger    *logger.Logger
}

// Run crawls once with params and returns the run summary. Partial results stay committed
// when the run fails or ctx is cancelled.
func (s *crawlService) Run(ctx context.Context, params dto.CrawlParams) (dto.CrawlSummary, error) {
	summary := dto.CrawlSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Params:    params,
	}
	ctx = logger.ContextWithRunID(ctx, summary.RunID)

	if err := params.Validate(); err != nil {
		return summary, fmt.Errorf("invalid crawl parameters: %w", err)
	}
	summary.Params = params

	s.logger.InfoContext(ctx, "Starting crawl",
		logger.Field("assets", params.Assets),
		logger.StringField("start_date", params.StartDate),
		logger.StringField("end_date", params.EndDate),
		logger.Field("force", params.Force))

	collector := stats.NewCollector()
	chain, err := s.buildChain(ctx, params, collector)
	if err != nil {
		return summary, err
	}

	runErr := s.crawl(ctx, params, chain, collector)
	if runErr == nil && collector.Get(stats.Requests) > 0 && collector.Get(stats.Responses) == 0 {
		runErr = ErrUpstreamUnreachable
	}

	summary.FinishedAt = time.Now()
	summary.Counters = collector.Snapshot()
	summary.Err = runErr
	s.report(ctx, summary, collector)

	return summary, runErr
}

// crawl runs the engine until the queue drains. The chain is closed however the run ends so
// CSV files are flushed and the database session released.
func (s *crawlService) crawl(ctx context.Context, params dto.CrawlParams, chain *pipeline.Chain, collector *stats.Collector) error {
	defer func() {
		if err := chain.Close(); err != nil {
			s.logger.ErrorContext(ctx, "Failed to close item pipelines", logger.ErrorField(err))
		}
	}()

	sp := spider.New(s.cfg.Crawler, params, collector, s.logger)
	eng := engine.New(engine.Config{
		ConcurrentRequests: s.cfg.Engine.ConcurrentRequests,
		RequestsPerSecond:  s.cfg.Engine.RequestsPerSecond,
		RetryTimes:         s.cfg.Engine.RetryTimes,
		RequestTimeout:     s.cfg.Engine.RequestTimeout,
		UserAgent:          s.cfg.Engine.UserAgent,
	}, chain.Process, collector, s.logger)

	return eng.Run(ctx, sp.StartRequests()...)
}

// buildChain wires the item stages: date enforcement, CSV export, then the upsert.
func (s *crawlService) buildChain(ctx context.Context, params dto.CrawlParams, collector *stats.Collector) (*pipeline.Chain, error) {
	exporter, err := pipeline.NewCSVExporter(s.cfg.Crawler.FilesStoragePath, params.StartDate, params.EndDate, s.logger)
	if err != nil {
		return nil, err
	}

	repo, err := s.openRepo(ctx)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to open database session: %w", err), exporter.Close())
	}

	return pipeline.NewChain(collector, s.logger,
		pipeline.NewDatetimeEnforcement(),
		exporter,
		pipeline.NewStore(repo, params.Force, collector, s.logger),
	), nil
}

func (s *crawlService) report(ctx context.Context, summary dto.CrawlSummary, collector *stats.Collector) {
	snapshot := summary.Counters
	s.logger.InfoContext(ctx, "Crawl finished",
		logger.Field("duration", summary.Duration().String()),
		logger.Field("duplicates", collector.Duplicates()),
		logger.Field("stats", snapshot),
		logger.ErrorField(summary.Err))

	// publishing runs on its own deadline so a cancelled crawl still reports
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, summary.RunID, snapshot); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish crawl stats", logger.ErrorField(err))
	}

	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(telegram.FormatCrawlSummary(summary)); err != nil {
		s.logger.WarnContext(ctx, "Failed to send crawl summary", logger.ErrorField(err))
	}
}
