// Package spider holds the Infomoney crawl state machine: asset discovery, details page
// resolution, and the price and earnings flows of both product types.
package spider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang-infomoney-crawler/internal/crawler/config"
	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/internal/crawler/engine"
	"golang-infomoney-crawler/internal/crawler/stats"
	"golang-infomoney-crawler/pkg/logger"
)

// ErrAssetUnavailable is logged when an asset has no resolvable details page.
var ErrAssetUnavailable = errors.New("asset unavailable")

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true, ".ico": true,
}

// Spider builds the requests of one crawl run.
type Spider struct {
	cfg    config.Crawler
	params dto.CrawlParams
	stats  *stats.Collector
	log    *logger.Logger
	now    func() time.Time
}

// New creates a Spider for params.
func New(cfg config.Crawler, params dto.CrawlParams, collector *stats.Collector, log *logger.Logger) *Spider {
	return &Spider{
		cfg:    cfg,
		params: params,
		stats:  collector,
		log:    log,
		now:    time.Now,
	}
}

// StartRequests returns the entry requests: the details page of each requested asset, or
// the asset listing page when no asset was requested.
func (s *Spider) StartRequests() []*engine.Request {
	if len(s.params.Assets) > 0 {
		s.log.Info("Requesting data for selected assets", logger.Field("assets", s.params.Assets))
		reqs := make([]*engine.Request, 0, len(s.params.Assets))
		for _, code := range s.params.Assets {
			reqs = append(reqs, s.detailsRequest(code, s.detailsURL(code), false))
		}
		return reqs
	}

	s.log.Info("Requesting data for all available assets")
	req := engine.NewGet(s.cfg.StartURL, s.parseStart)
	req.Label = "start"
	return []*engine.Request{req}
}

func (s *Spider) parseStart(ctx context.Context, resp *engine.Response, em engine.Emitter) {
	nonce, err := extractNonce(resp.Body, assetListNonceRe)
	if err != nil {
		em.Retry(resp.Request, err)
		return
	}
	em.Enqueue(s.assetListRequest(nonce, 1))
}

func (s *Spider) assetListRequest(nonce string, page int) *engine.Request {
	form := url.Values{
		"action":                     {"tool_altas_e_baixas"},
		"pagination":                 {strconv.Itoa(page)},
		"perPage":                    {strconv.Itoa(s.cfg.ResultsPerPage)},
		"altas_e_baixas_table_nonce": {nonce},
		"market":                     {"0"},
	}
	req := engine.NewFormPost(s.cfg.APIURL, form, func(ctx context.Context, resp *engine.Response, em engine.Emitter) {
		s.parseAssetList(ctx, resp, em, nonce, page)
	})
	req.Label = fmt.Sprintf("asset-list/%d", page)
	return req
}

func (s *Spider) parseAssetList(ctx context.Context, resp *engine.Response, em engine.Emitter, nonce string, page int) {
	payload, err := engine.DecodePayload(resp.Body)
	if err != nil {
		em.Retry(resp.Request, err)
		return
	}
	rawTotal, err := engine.RequireKey(payload, "iTotalRecords")
	if err != nil {
		em.Retry(resp.Request, err)
		return
	}
	rawRows, err := engine.RequireKey(payload, "aaData")
	if err != nil {
		em.Retry(resp.Request, err)
		return
	}
	rows, ok := rawRows.([]interface{})
	if !ok {
		em.Retry(resp.Request, fmt.Errorf("%w: aaData is %T", engine.ErrTransientUpstream, rawRows))
		return
	}

	total, err := toInt(rawTotal)
	if err != nil {
		em.Retry(resp.Request, fmt.Errorf("%w: %w: iTotalRecords: %w", engine.ErrTransientUpstream, engine.ErrMalformedPayload, err))
		return
	}
	totalPages := int(math.Ceil(float64(total) / float64(s.cfg.ResultsPerPage)))

	for _, raw := range rows {
		row, ok := raw.([]interface{})
		if !ok || len(row) < 2 {
			s.log.ErrorContext(ctx, "Unexpected asset list row", logger.Field("row", raw))
			continue
		}
		code, ok := row[1].(string)
		code = strings.ToUpper(strings.TrimSpace(code))
		if !ok || code == "" {
			s.log.ErrorContext(ctx, "Unexpected asset code", logger.Field("row", raw))
			continue
		}
		em.Enqueue(s.detailsRequest(code, s.detailsURL(code), false))
	}

	s.log.InfoContext(ctx, "Parsed asset list page",
		logger.IntField("page", page),
		logger.IntField("total_pages", totalPages),
		logger.IntField("assets", len(rows)))

	if page < totalPages {
		em.Enqueue(s.assetListRequest(nonce, page+1))
	}
}

// pageSignature identifies a page by its first row. An upstream that ignores the page
// parameter serves the same signature again.
func pageSignature(rows []interface{}) string {
	if len(rows) == 0 {
		return ""
	}
	return fmt.Sprint(rows[0])
}

// repeatsPrevious reports a page whose first row equals the previous page's.
func (s *Spider) repeatsPrevious(ctx context.Context, flow, code string, page int, sig, prevSig string) bool {
	if page == 0 || sig != prevSig {
		return false
	}
	s.stats.Inc(stats.PagingStopped)
	s.log.WarnContext(ctx, "Page repeats the previous one, stopping pagination",
		logger.StringField("flow", flow),
		logger.StringField("asset_code", code),
		logger.IntField("page", page))
	return true
}

// allowNextPage reports whether page+1 is within the configured page cap.
func (s *Spider) allowNextPage(ctx context.Context, flow, code string, page int) bool {
	if page+1 < s.cfg.MaxPages {
		return true
	}
	s.stats.Inc(stats.PagingStopped)
	s.log.WarnContext(ctx, "Page limit reached, stopping pagination",
		logger.StringField("flow", flow),
		logger.StringField("asset_code", code),
		logger.IntField("max_pages", s.cfg.MaxPages))
	return false
}

func (s *Spider) detailsURL(code string) string {
	return strings.TrimSuffix(s.cfg.DetailsURL, "/") + "/" + code
}

func (s *Spider) detailsRequest(code, target string, overridden bool) *engine.Request {
	req := engine.NewGet(target, func(ctx context.Context, resp *engine.Response, em engine.Emitter) {
		s.parseDetails(ctx, resp, em, code, overridden)
	})
	req.AllowedStatus = []int{http.StatusNotFound}
	req.DontFilter = overridden
	req.Label = "details/" + code
	return req
}

func (s *Spider) parseDetails(ctx context.Context, resp *engine.Response, em engine.Emitter, code string, overridden bool) {
	if resp.StatusCode == http.StatusNotFound {
		s.stats.Inc(stats.AssetsSkipped)
		s.log.ErrorContext(ctx, "No redirect from asset code, page returned 404",
			logger.StringField("asset_code", code),
			logger.ErrorField(fmt.Errorf("%w: %s", ErrAssetUnavailable, code)))
		return
	}

	if isImage(resp) {
		override, ok := s.cfg.RedirectOverrides[code]
		if !ok || overridden {
			s.stats.Inc(stats.AssetsSkipped)
			s.log.WarnContext(ctx, "Details page redirected to an image and no usable override exists",
				logger.StringField("asset_code", code),
				logger.StringField("url", resp.URL.String()),
				logger.ErrorField(ErrAssetUnavailable))
			return
		}
		s.log.InfoContext(ctx, "Details page redirected to an image, using override",
			logger.StringField("asset_code", code),
			logger.StringField("override", override))
		em.Enqueue(s.detailsRequest(code, override, true))
		return
	}

	base := *resp.URL
	base.RawQuery = ""
	base.Fragment = ""
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	fund := s.isFund(&base)

	if !s.params.SkipPrices {
		if fund {
			em.Enqueue(s.fundPriceRequest(code))
		} else {
			em.Enqueue(s.historyPageRequest(code, &base))
		}
	}
	if !s.params.SkipEarnings {
		if fund {
			em.Enqueue(s.fundEarningsRequest(code))
		} else {
			em.Enqueue(s.earningsPageRequest(code, &base))
		}
	}
}

func (s *Spider) isFund(u *url.URL) bool {
	for _, segment := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if strings.EqualFold(segment, s.cfg.FundPathSegment) {
			return true
		}
	}
	return false
}

func isImage(resp *engine.Response) bool {
	if resp.URL != nil && imageExtensions[strings.ToLower(path.Ext(resp.URL.Path))] {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "image/")
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	case fmt.Stringer:
		f, err := strconv.ParseFloat(t.String(), 64)
		return int(f), err
	case float64:
		return int(t), nil
	default:
		return 0, fmt.Errorf("unexpected number of type %T", v)
	}
}
