// Package engine runs crawl requests: a single dispatcher goroutine owns the task queue and runs
// every callback and record handler, while a small pool of workers performs the HTTP fetches.
package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang-infomoney-crawler/internal/crawler/item"
	"golang-infomoney-crawler/internal/crawler/stats"
	"golang-infomoney-crawler/pkg/common"
	"golang-infomoney-crawler/pkg/logger"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ItemHandler receives every emitted record, on the dispatcher goroutine.
type ItemHandler func(ctx context.Context, rec item.Record)

// Config tunes fetching.
type Config struct {
	ConcurrentRequests int
	// RequestsPerSecond of zero disables throttling.
	RequestsPerSecond float64
	RetryTimes        int
	RequestTimeout    time.Duration
	UserAgent         string
}

// Engine executes requests until the queue drains.
type Engine struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	seen       *cache.Cache
	onItem     ItemHandler
	stats      *stats.Collector
	log        *logger.Logger
}

// New creates an Engine. Records emitted by callbacks are passed to onItem.
func New(cfg Config, onItem ItemHandler, collector *stats.Collector, log *logger.Logger) *Engine {
	if cfg.ConcurrentRequests <= 0 {
		cfg.ConcurrentRequests = 2
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = common.DefaultUserAgent
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Engine{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		seen:    cache.New(cache.NoExpiration, 10*time.Minute),
		onItem:  onItem,
		stats:   collector,
		log:     log,
	}
}

type result struct {
	req  *Request
	resp *Response
	err  error
}

// Run executes the start requests and everything they enqueue. It returns when no request is
// pending or in flight, or with ctx.Err() when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, start ...*Request) error {
	tasks := make(chan *Request)
	results := make(chan result)

	var g errgroup.Group
	for i := 0; i < e.cfg.ConcurrentRequests; i++ {
		g.Go(func() error {
			for req := range tasks {
				resp, err := e.fetch(ctx, req)
				select {
				case results <- result{req: req, resp: resp, err: err}:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
	}

	d := &dispatcher{engine: e, ctx: ctx}
	for _, req := range start {
		d.Enqueue(req)
	}

	inflight := 0
	var runErr error
loop:
	for len(d.queue) > 0 || inflight > 0 {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		var sendCh chan<- *Request
		var next *Request
		if len(d.queue) > 0 {
			sendCh = tasks
			next = d.queue[0]
		}

		select {
		case sendCh <- next:
			d.queue = d.queue[1:]
			inflight++
		case res := <-results:
			inflight--
			d.handle(res)
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		}
	}

	close(tasks)
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (e *Engine) fetch(ctx context.Context, req *Request) (*Response, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method == http.MethodPost && req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	}

	e.stats.Inc(stats.Requests)
	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	e.stats.Inc(stats.Responses)
	e.stats.Inc(stats.StatusKey(httpResp.StatusCode))

	return &Response{
		Request:    req,
		StatusCode: httpResp.StatusCode,
		URL:        httpResp.Request.URL,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

// dispatcher is only touched by the goroutine running Engine.Run.
type dispatcher struct {
	engine *Engine
	ctx    context.Context
	queue  []*Request
}

func (d *dispatcher) Enqueue(req *Request) {
	if req == nil {
		return
	}
	if !req.DontFilter {
		if err := d.engine.seen.Add(req.Fingerprint(), struct{}{}, cache.NoExpiration); err != nil {
			d.engine.stats.Inc(stats.Filtered)
			d.engine.log.Debug("Filtered duplicate request", logger.StringField("url", req.URL), logger.StringField("label", req.Label))
			return
		}
	}
	d.queue = append(d.queue, req)
}

func (d *dispatcher) Emit(rec item.Record) {
	if rec == nil {
		return
	}
	d.engine.stats.Inc(stats.RecordsEmitted)
	if d.engine.onItem != nil {
		d.engine.onItem(d.ctx, rec)
	}
}

func (d *dispatcher) Retry(req *Request, reason error) {
	e := d.engine
	if req.retries >= e.cfg.RetryTimes {
		e.stats.Inc(stats.RetriesExhausted)
		e.log.WarnContext(d.ctx, "Gave up retrying request",
			logger.StringField("url", req.URL),
			logger.StringField("label", req.Label),
			logger.IntField("retries", req.retries),
			logger.ErrorField(reason))
		return
	}
	e.stats.Inc(stats.Retries)
	e.log.DebugContext(d.ctx, "Retrying request",
		logger.StringField("url", req.URL),
		logger.StringField("label", req.Label),
		logger.IntField("attempt", req.retries+1),
		logger.ErrorField(reason))
	d.queue = append(d.queue, req.retryCopy())
}

func (d *dispatcher) handle(res result) {
	req := res.req
	if res.err != nil {
		if d.ctx.Err() != nil {
			return
		}
		d.Retry(req, res.err)
		return
	}

	resp := res.resp
	if retryableStatus(resp.StatusCode) {
		d.Retry(req, fmt.Errorf("%w: status %d", ErrTransientUpstream, resp.StatusCode))
		return
	}
	if !req.allows(resp.StatusCode) {
		d.engine.log.DebugContext(d.ctx, "Ignoring response with disallowed status",
			logger.StringField("url", req.URL),
			logger.IntField("status", resp.StatusCode))
		return
	}
	if req.Callback != nil {
		req.Callback(d.ctx, resp, d)
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		522, 524:
		return true
	}
	return false
}
