package spider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang-infomoney-crawler/internal/crawler/engine"
	"golang-infomoney-crawler/internal/crawler/item"
	"golang-infomoney-crawler/internal/crawler/stats"
	"golang-infomoney-crawler/pkg/common"
	"golang-infomoney-crawler/pkg/logger"
)

func (s *Spider) historyPageRequest(code string, base *url.URL) *engine.Request {
	target := base.ResolveReference(&url.URL{Path: "historico/"})
	req := engine.NewGet(target.String(), func(ctx context.Context, resp *engine.Response, em engine.Emitter) {
		nonce, err := extractNonce(resp.Body, historyNonceRe)
		if err != nil {
			em.Retry(resp.Request, err)
			return
		}
		em.Enqueue(s.priceHistoryRequest(code, nonce, 0, ""))
	})
	req.Label = "history-page/" + code
	return req
}

// priceHistoryRequest asks for one page of the generic price history. The date window is only
// sent when the caller chose one. prevSig is the signature of the page before.
func (s *Spider) priceHistoryRequest(code, nonce string, page int, prevSig string) *engine.Request {
	form := url.Values{
		"symbol":               {code},
		"quotes_history_nonce": {nonce},
		"numberItems":          {strconv.Itoa(s.cfg.PricePageSize)},
		"page":                 {strconv.Itoa(page)},
		"action":               {"more_quotes_history"},
	}
	if s.params.HasCustomWindow() {
		start, end := s.priceWindow()
		form.Set("initialDate", start)
		form.Set("finalDate", end)
	}

	req := engine.NewFormPost(s.cfg.APIURL, form, func(ctx context.Context, resp *engine.Response, em engine.Emitter) {
		s.parsePriceHistory(ctx, resp, em, code, nonce, page, prevSig)
	})
	req.DontFilter = true
	req.Label = fmt.Sprintf("price-history/%s/%d", code, page)
	return req
}

func (s *Spider) priceWindow() (string, string) {
	now := s.now()
	start := s.params.StartDate
	if start == "" {
		start = now.AddDate(0, 0, -s.cfg.PriceWindowDays).Format(common.DateLayoutBR)
	}
	end := s.params.EndDate
	if end == "" {
		end = now.Format(common.DateLayoutBR)
	}
	return start, end
}

func (s *Spider) parsePriceHistory(ctx context.Context, resp *engine.Response, em engine.Emitter, code, nonce string, page int, prevSig string) {
	payload, err := engine.DecodePayload(resp.Body)
	if err != nil {
		if page > 0 && errors.Is(err, engine.ErrEmptyPayload) {
			return
		}
		s.log.WarnContext(ctx, "Invalid price history response", logger.StringField("asset_code", code), logger.ErrorField(err))
		em.Retry(resp.Request, err)
		return
	}
	rows, ok := payload.([]interface{})
	if !ok {
		em.Retry(resp.Request, fmt.Errorf("%w: %w: price history is %T", engine.ErrTransientUpstream, engine.ErrMalformedPayload, payload))
		return
	}
	sig := pageSignature(rows)
	if s.repeatsPrevious(ctx, "price", code, page, sig, prevSig) {
		return
	}

	// Upstream delivers newest first.
	for i := len(rows) - 1; i >= 0; i-- {
		row, ok := rows[i].([]interface{})
		if !ok {
			s.rowFailed(ctx, code, item.KindPrice, fmt.Errorf("%w: row is %T", item.ErrRowShape, rows[i]))
			continue
		}
		rec, err := item.BuildEquityPrice(code, row)
		if err != nil {
			s.rowFailed(ctx, code, item.KindPrice, err)
			continue
		}
		em.Emit(rec)
	}

	s.log.InfoContext(ctx, "Parsed price history", logger.StringField("asset_code", code), logger.IntField("page", page), logger.IntField("rows", len(rows)))

	if len(rows) >= s.cfg.PricePageSize && s.allowNextPage(ctx, "price", code, page) {
		em.Enqueue(s.priceHistoryRequest(code, nonce, page+1, sig))
	}
}

// fundPriceRequest asks the fund API for the price window. Dates use DD-MM-YYYY.
func (s *Spider) fundPriceRequest(code string) *engine.Request {
	now := s.now()
	start := now.AddDate(-s.cfg.FundWindowYears, 0, 0).Format(common.DateLayoutBR)
	end := now.Format(common.DateLayoutBR)
	if s.params.StartDate != "" {
		start = s.params.StartDate
	}
	if s.params.EndDate != "" {
		end = s.params.EndDate
	}

	query := url.Values{
		"Ticker":     {code},
		"DataInicio": {strings.ReplaceAll(start, "/", "-")},
		"DataFim":    {strings.ReplaceAll(end, "/", "-")},
	}
	req := engine.NewGet(withQuery(s.cfg.FundPriceURL, query), func(ctx context.Context, resp *engine.Response, em engine.Emitter) {
		s.parseFundPrices(ctx, resp, em, code)
	})
	req.Label = "fund-prices/" + code
	return req
}

func (s *Spider) parseFundPrices(ctx context.Context, resp *engine.Response, em engine.Emitter, code string) {
	payload, err := engine.DecodePayload(resp.Body)
	if err != nil {
		s.log.WarnContext(ctx, "Invalid fund price response", logger.StringField("asset_code", code), logger.ErrorField(err))
		em.Retry(resp.Request, err)
		return
	}

	// Either a bare array or an object keyed by ticker.
	if _, isObject := payload.(map[string]interface{}); isObject {
		if payload, err = engine.RequireKey(payload, code); err != nil {
			em.Retry(resp.Request, err)
			return
		}
	}
	rows, ok := payload.([]interface{})
	if !ok {
		em.Retry(resp.Request, fmt.Errorf("%w: %w: fund prices are %T", engine.ErrTransientUpstream, engine.ErrMalformedPayload, payload))
		return
	}

	for _, raw := range rows {
		row, ok := raw.(map[string]interface{})
		if !ok {
			s.rowFailed(ctx, code, item.KindPrice, fmt.Errorf("%w: row is %T", item.ErrRowShape, raw))
			continue
		}
		rec, err := item.BuildFundPrice(code, row)
		if err != nil {
			s.rowFailed(ctx, code, item.KindPrice, err)
			continue
		}
		em.Emit(rec)
	}
	s.log.InfoContext(ctx, "Parsed fund prices", logger.StringField("asset_code", code), logger.IntField("rows", len(rows)))
}

func (s *Spider) rowFailed(ctx context.Context, code string, kind item.Kind, err error) {
	s.stats.Inc(stats.RecordsFailed)
	s.log.ErrorContext(ctx, "Failed to build record from row",
		logger.StringField("asset_code", code),
		logger.StringField("kind", string(kind)),
		logger.ErrorField(err))
}

func withQuery(rawURL string, query url.Values) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + query.Encode()
}

