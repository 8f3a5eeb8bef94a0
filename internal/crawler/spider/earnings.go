package spider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"golang-infomoney-crawler/internal/crawler/engine"
	"golang-infomoney-crawler/internal/crawler/item"
	"golang-infomoney-crawler/pkg/logger"
)

func (s *Spider) earningsPageRequest(code string, base *url.URL) *engine.Request {
	target := base.ResolveReference(&url.URL{Path: "proventos/"})
	req := engine.NewGet(target.String(), func(ctx context.Context, resp *engine.Response, em engine.Emitter) {
		nonce, err := extractNonce(resp.Body, earningsNonceRe)
		if err != nil {
			em.Retry(resp.Request, err)
			return
		}
		em.Enqueue(s.earningsRequest(code, nonce, 0, ""))
	})
	req.Label = "earnings-page/" + code
	return req
}

func (s *Spider) earningsRequest(code, nonce string, page int, prevSig string) *engine.Request {
	form := url.Values{
		"symbol":                {code},
		"quotes_earnings_nonce": {nonce},
		"page":                  {strconv.Itoa(page)},
		"type":                  {"Todos"},
		"action":                {"more_quotes_earnings"},
		"perPage":               {strconv.Itoa(s.cfg.EarningsPageSize)},
	}
	req := engine.NewFormPost(s.cfg.APIURL, form, func(ctx context.Context, resp *engine.Response, em engine.Emitter) {
		s.parseEarnings(ctx, resp, em, code, nonce, page, prevSig)
	})
	req.DontFilter = true
	req.Label = fmt.Sprintf("earnings/%s/%d", code, page)
	return req
}

func (s *Spider) parseEarnings(ctx context.Context, resp *engine.Response, em engine.Emitter, code, nonce string, page int, prevSig string) {
	payload, err := engine.DecodePayload(resp.Body)
	if err != nil {
		s.log.WarnContext(ctx, "Invalid earnings response", logger.StringField("asset_code", code), logger.ErrorField(err))
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
		em.Retry(resp.Request, fmt.Errorf("%w: %w: aaData is %T", engine.ErrTransientUpstream, engine.ErrMalformedPayload, rawRows))
		return
	}
	if len(rows) == 0 {
		if page == 0 {
			s.log.WarnContext(ctx, "Earnings data returned empty", logger.StringField("asset_code", code))
		}
		return
	}
	sig := pageSignature(rows)
	if s.repeatsPrevious(ctx, "earnings", code, page, sig, prevSig) {
		return
	}

	for i := len(rows) - 1; i >= 0; i-- {
		row, ok := rows[i].([]interface{})
		if !ok {
			s.rowFailed(ctx, code, item.KindEarnings, fmt.Errorf("%w: row is %T", item.ErrRowShape, rows[i]))
			continue
		}
		rec, err := item.BuildEquityEarnings(code, row)
		if err != nil {
			s.rowFailed(ctx, code, item.KindEarnings, err)
			continue
		}
		em.Emit(rec)
	}

	s.log.InfoContext(ctx, "Parsed earnings", logger.StringField("asset_code", code), logger.IntField("page", page), logger.IntField("rows", len(rows)))

	if len(rows) >= s.cfg.EarningsPageSize && s.allowNextPage(ctx, "earnings", code, page) {
		em.Enqueue(s.earningsRequest(code, nonce, page+1, sig))
	}
}

func (s *Spider) fundEarningsRequest(code string) *engine.Request {
	req := engine.NewGet(withQuery(s.cfg.FundEarningsURL, url.Values{"Ticker": {code}}), func(ctx context.Context, resp *engine.Response, em engine.Emitter) {
		s.parseFundEarnings(ctx, resp, em, code)
	})
	req.Label = "fund-earnings/" + code
	return req
}

func (s *Spider) parseFundEarnings(ctx context.Context, resp *engine.Response, em engine.Emitter, code string) {
	payload, err := engine.DecodePayload(resp.Body)
	if err != nil {
		s.log.WarnContext(ctx, "Invalid fund earnings response", logger.StringField("asset_code", code), logger.ErrorField(err))
		em.Retry(resp.Request, err)
		return
	}
	rows, ok := payload.([]interface{})
	if !ok {
		em.Retry(resp.Request, fmt.Errorf("%w: %w: fund earnings are %T", engine.ErrTransientUpstream, engine.ErrMalformedPayload, payload))
		return
	}

	for _, raw := range rows {
		row, ok := raw.(map[string]interface{})
		if !ok {
			s.rowFailed(ctx, code, item.KindEarnings, fmt.Errorf("%w: row is %T", item.ErrRowShape, raw))
			continue
		}
		rec, err := item.BuildFundEarnings(code, row)
		if err != nil {
			s.rowFailed(ctx, code, item.KindEarnings, err)
			continue
		}
		em.Emit(rec)
	}
	s.log.InfoContext(ctx, "Parsed fund earnings", logger.StringField("asset_code", code), logger.IntField("rows", len(rows)))
}
