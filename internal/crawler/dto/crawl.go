package dto

import (
	"fmt"
	"strings"
	"time"

	"golang-infomoney-crawler/pkg/common"
)

// CrawlParams are the caller's run-time choices for one crawl.
type CrawlParams struct {
	// Assets restricts the crawl to these codes; empty means every listed asset.
	Assets []string
	// StartDate and EndDate use DD/MM/YYYY; empty means the default window.
	StartDate    string
	EndDate      string
	SkipPrices   bool
	SkipEarnings bool
	Force        bool
}

// HasCustomWindow reports whether the caller supplied either date bound.
func (p CrawlParams) HasCustomWindow() bool {
	return p.StartDate != "" || p.EndDate != ""
}

// Validate normalizes asset codes and checks the date bounds.
func (p *CrawlParams) Validate() error {
	codes := make([]string, 0, len(p.Assets))
	for _, a := range p.Assets {
		for _, code := range strings.Split(a, ",") {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code != "" {
				codes = append(codes, code)
			}
		}
	}
	p.Assets = codes

	var start, end time.Time
	var err error
	if p.StartDate != "" {
		if start, err = time.Parse(common.DateLayoutBR, p.StartDate); err != nil {
			return fmt.Errorf("invalid start date %q, expected DD/MM/YYYY", p.StartDate)
		}
	}
	if p.EndDate != "" {
		if end, err = time.Parse(common.DateLayoutBR, p.EndDate); err != nil {
			return fmt.Errorf("invalid end date %q, expected DD/MM/YYYY", p.EndDate)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", p.EndDate, p.StartDate)
	}
	return nil
}

// CrawlSummary reports the outcome of a run.
type CrawlSummary struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Params     CrawlParams      `json:"-"`
	Counters   map[string]int64 `json:"counters"`
	Err        error            `json:"-"`
}

// Duration of the run.
func (s CrawlSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
