package common

const (
	// RedisKeyCrawlStats holds the stats hash of one crawl run, formatted with the run id.
	RedisKeyCrawlStats = "crawler.stats:%s"
	// RedisKeyCrawlLastRun points at the id of the most recent run.
	RedisKeyCrawlLastRun = "crawler.stats:last_run"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:78.0) Gecko/20100101 Firefox/78.0"

	// DateLayoutBR is the day-first layout used by the upstream site and the CLI flags.
	DateLayoutBR = "02/01/2006"
)
