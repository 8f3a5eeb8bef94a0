package service

import (
	"context"
	"fmt"
	"sync"

	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/pkg/logger"
	"golang-infomoney-crawler/pkg/utils"

	"github.com/robfig/cron/v3"
)

// SchedulerService defines the interface for periodic crawls.
type SchedulerService interface {
	Start(ctx context.Context) error
	Trigger(ctx context.Context)
}

// NewSchedulerService creates a scheduler that runs crawler with params on cronExpr.
func NewSchedulerService(crawler CrawlService, params dto.CrawlParams, cronExpr string, runOnStart bool, log *logger.Logger) SchedulerService {
	return &schedulerService{
		crawler:    crawler,
		params:     params,
		cronExpr:   cronExpr,
		runOnStart: runOnStart,
		logger:     log,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

type schedulerService struct {
	crawler    CrawlService
	params     dto.CrawlParams
	cronExpr   string
	runOnStart bool
	logger     *logger.Logger
	cronParser cron.Parser

	// running guards against overlapping crawls when a run outlasts the interval.
	running sync.Mutex
}

// Start blocks until ctx is done, triggering a crawl on every tick of the schedule.
func (s *schedulerService) Start(ctx context.Context) error {
	schedule, err := s.cronParser.Parse(s.cronExpr)
	if err != nil {
		return fmt.Errorf("failed to parse cron expression %q: %w", s.cronExpr, err)
	}

	c := cron.New(cron.WithParser(s.cronParser))
	c.Schedule(schedule, cron.FuncJob(func() { s.Trigger(ctx) }))
	c.Start()
	s.logger.Info("Crawl scheduler started", logger.StringField("cron", s.cronExpr))

	if s.runOnStart {
		utils.GoSafe(func() { s.Trigger(ctx) })
	}

	<-ctx.Done()
	s.logger.Info("Crawl scheduler stopping")
	// wait for a crawl in progress to observe the cancellation
	<-c.Stop().Done()
	s.running.Lock()
	defer s.running.Unlock()
	return nil
}

// Trigger runs one crawl unless another is in progress.
func (s *schedulerService) Trigger(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.TryLock() {
		s.logger.Warn("Previous crawl still running, skipping this tick")
		return
	}
	defer s.running.Unlock()

	summary, err := s.crawler.Run(ctx, s.params)
	if err != nil {
		s.logger.Error("Scheduled crawl failed", logger.StringField("run_id", summary.RunID), logger.ErrorField(err))
		return
	}
	s.logger.Info("Scheduled crawl completed",
		logger.StringField("run_id", summary.RunID),
		logger.Field("duration", summary.Duration().String()))
}
