package spider

import (
	"bytes"
	"fmt"
	"regexp"

	"golang-infomoney-crawler/internal/crawler/engine"

	"github.com/PuerkitoBio/goquery"
)

var (
	assetListNonceRe = regexp.MustCompile(`altas_e_baixas_table_nonce":"(\w+)",`)
	historyNonceRe   = regexp.MustCompile(`quotes_history_nonce":"(\w+)"`)
	earningsNonceRe  = regexp.MustCompile(`quotes_earnings_nonce":"(\w+)"`)
)

// extractNonce finds the WordPress ajax nonce embedded in the page scripts.
func extractNonce(body []byte, re *regexp.Regexp) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", engine.ErrTransientUpstream, engine.ErrMalformedPayload, err)
	}

	var nonce string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if m := re.FindStringSubmatch(sel.Text()); m != nil {
			nonce = m[1]
			return false
		}
		return true
	})
	if nonce == "" {
		return "", fmt.Errorf("%w: %w: nonce %s", engine.ErrTransientUpstream, engine.ErrMissingKey, re.String())
	}
	return nonce, nil
}
