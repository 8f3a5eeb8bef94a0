package telegram

import (
	"fmt"
	"strings"
	"time"

	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/internal/crawler/stats"
)

// maxMessageLen keeps a message under the Telegram limit of 4096 characters.
const maxMessageLen = 4090

// FormatCrawlSummary formats a crawl summary as a Markdown message.
func FormatCrawlSummary(summary dto.CrawlSummary) string {
	var sb strings.Builder

	status := "✅ *Crawl finished*"
	if summary.Err != nil {
		status = "⚠️ *Crawl finished with errors*"
	}
	sb.WriteString(status + "\n\n")
	sb.WriteString(fmt.Sprintf("🆔 `%s`\n", summary.RunID))
	sb.WriteString(fmt.Sprintf("🕒 %s (%s)\n", summary.StartedAt.Format("02/01/2006 15:04"), summary.Duration().Round(time.Second)))

	assets := "all listed"
	if len(summary.Params.Assets) > 0 {
		assets = strings.Join(summary.Params.Assets, ", ")
	}
	sb.WriteString(fmt.Sprintf("📈 *Assets:* %s\n", assets))
	if summary.Params.HasCustomWindow() {
		sb.WriteString(fmt.Sprintf("📅 *Window:* %s to %s\n", orNone(summary.Params.StartDate), orNone(summary.Params.EndDate)))
	}
	if summary.Err != nil {
		sb.WriteString(fmt.Sprintf("❌ *Error:* `%s`\n", summary.Err.Error()))
	}

	sb.WriteString("\n📊 *Stats*\n")
	for _, key := range stats.Keys(summary.Counters) {
		line := fmt.Sprintf("`%s`: %d\n", key, summary.Counters[key])
		// duplicate counters are per asset and can be many
		if sb.Len()+len(line) > maxMessageLen-4 {
			sb.WriteString("...\n")
			break
		}
		sb.WriteString(line)
	}

	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
