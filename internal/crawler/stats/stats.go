// Package stats keeps the counters of one crawl run.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	Requests         = "requests"
	Responses        = "responses"
	Retries          = "retries"
	RetriesExhausted = "retries_exhausted"
	Filtered         = "requests_filtered"
	RecordsEmitted   = "records_emitted"
	RecordsFailed    = "records_failed"
	RecordsDropped   = "records_dropped"
	RecordsStored    = "records_stored"
	RecordsUpdated   = "records_updated"
	AssetsSkipped    = "assets_skipped"
	PagingStopped    = "paging_stopped"
)

// DuplicateKey is the counter of records already stored, tagged by kind and asset code.
func DuplicateKey(kind, code string) string {
	return fmt.Sprintf("duplicates/%s/%s", kind, code)
}

// StatusKey counts responses by HTTP status.
func StatusKey(status int) string {
	return fmt.Sprintf("status/%d", status)
}

// Collector is safe for concurrent use; fetch workers and the dispatcher share it.
type Collector struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewCollector() *Collector {
	return &Collector{counters: make(map[string]int64)}
}

func (c *Collector) Inc(key string) {
	c.Add(key, 1)
}

func (c *Collector) Add(key string, n int64) {
	c.mu.Lock()
	c.counters[key] += n
	c.mu.Unlock()
}

func (c *Collector) Get(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key]
}

// Snapshot returns a copy of every counter.
func (c *Collector) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return out
}

// Duplicates sums every duplicates/* counter.
func (c *Collector) Duplicates() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for k, v := range c.counters {
		if strings.HasPrefix(k, "duplicates/") {
			total += v
		}
	}
	return total
}

// Keys returns the counter names in lexical order.
func Keys(snapshot map[string]int64) []string {
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
