package engine

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"golang-infomoney-crawler/internal/crawler/item"
)

// Callback handles a response on the dispatcher goroutine. It must not block on network I/O;
// follow-up work is queued through the Emitter.
type Callback func(ctx context.Context, resp *Response, em Emitter)

// Emitter is handed to callbacks to queue requests and emit records.
type Emitter interface {
	Enqueue(req *Request)
	Emit(rec item.Record)
	// Retry queues req again if its retry budget allows it.
	Retry(req *Request, reason error)
}

// Request is a pending fetch. Form is sent url-encoded as the body of POST requests.
type Request struct {
	Method   string
	URL      string
	Form     url.Values
	Header   http.Header
	Callback Callback
	// AllowedStatus lists non-2xx statuses still delivered to Callback.
	AllowedStatus []int
	// DontFilter bypasses the duplicate request filter.
	DontFilter bool
	// Label names the request in logs.
	Label string

	retries int
}

// NewGet creates a GET request.
func NewGet(rawURL string, cb Callback) *Request {
	return &Request{Method: http.MethodGet, URL: rawURL, Callback: cb}
}

// NewFormPost creates a url-encoded POST request.
func NewFormPost(rawURL string, form url.Values, cb Callback) *Request {
	return &Request{Method: http.MethodPost, URL: rawURL, Form: form, Callback: cb}
}

// Retries reports how many times the request was retried.
func (r *Request) Retries() int {
	return r.retries
}

// Fingerprint identifies a request for the duplicate filter.
func (r *Request) Fingerprint() string {
	h := sha1.New()
	h.Write([]byte(strings.ToUpper(r.Method)))
	h.Write([]byte{0})
	h.Write([]byte(r.URL))
	h.Write([]byte{0})
	h.Write([]byte(r.Form.Encode()))
	return hex.EncodeToString(h.Sum(nil))
}

func (r *Request) allows(status int) bool {
	if status >= 200 && status < 300 {
		return true
	}
	for _, s := range r.AllowedStatus {
		if s == status {
			return true
		}
	}
	return false
}

func (r *Request) retryCopy() *Request {
	cp := *r
	cp.retries = r.retries + 1
	cp.DontFilter = true
	return &cp
}

// Response is a completed fetch. URL is the final URL after redirects.
type Response struct {
	Request    *Request
	StatusCode int
	URL        *url.URL
	Header     http.Header
	Body       []byte
}
