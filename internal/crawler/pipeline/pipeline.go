// Package pipeline holds the item stages every emitted record passes through: date enforcement,
// CSV export and database upsert.
package pipeline

import (
	"context"
	"errors"

	"golang-infomoney-crawler/internal/crawler/item"
	"golang-infomoney-crawler/internal/crawler/stats"
	"golang-infomoney-crawler/pkg/logger"

	"go.uber.org/multierr"
)

// ErrDropRecord stops a record at the stage that returned it without counting a failure.
var ErrDropRecord = errors.New("record dropped")

// Pipeline is one item stage.
type Pipeline interface {
	Name() string
	Process(ctx context.Context, rec item.Record) (item.Record, error)
	Close() error
}

// Chain runs records through its stages in order. A stage error ends that record's trip only.
type Chain struct {
	stages []Pipeline
	stats  *stats.Collector
	log    *logger.Logger
}

// NewChain creates a new Chain.
func NewChain(collector *stats.Collector, log *logger.Logger, stages ...Pipeline) *Chain {
	return &Chain{stages: stages, stats: collector, log: log}
}

// Process matches engine.ItemHandler.
func (c *Chain) Process(ctx context.Context, rec item.Record) {
	for _, stage := range c.stages {
		out, err := stage.Process(ctx, rec)
		if err != nil {
			if errors.Is(err, ErrDropRecord) {
				c.stats.Inc(stats.RecordsDropped)
				c.log.WarnContext(ctx, "Record dropped",
					logger.StringField("stage", stage.Name()),
					logger.StringField("asset_code", rec.Code()),
					logger.StringField("kind", string(rec.Kind())),
					logger.ErrorField(err))
				return
			}
			c.stats.Inc(stats.RecordsFailed)
			c.log.ErrorContext(ctx, "Record failed in pipeline",
				logger.StringField("stage", stage.Name()),
				logger.StringField("asset_code", rec.Code()),
				logger.StringField("kind", string(rec.Kind())),
				logger.ErrorField(err))
			return
		}
		rec = out
	}
}

// Close closes every stage, in order, and combines their errors.
func (c *Chain) Close() error {
	var err error
	for _, stage := range c.stages {
		if cerr := stage.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}
