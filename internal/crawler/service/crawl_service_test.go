package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang-infomoney-crawler/internal/crawler/config"
	"golang-infomoney-crawler/internal/crawler/dto"
	"golang-infomoney-crawler/internal/crawler/repository"
	"golang-infomoney-crawler/internal/crawler/stats"
	"golang-infomoney-crawler/internal/entity"
	"golang-infomoney-crawler/pkg/logger"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type capturingPublisher struct {
	runID    string
	snapshot map[string]int64
}

func (p *capturingPublisher) Publish(ctx context.Context, runID string, snapshot map[string]int64) error {
	p.runID = runID
	p.snapshot = snapshot
	return nil
}

type capturingNotifier struct {
	messages []string
}

func (n *capturingNotifier) SendMessage(text string) error {
	n.messages = append(n.messages, text)
	return nil
}

func nonceScript(key, value string) string {
	return fmt.Sprintf(`<html><head><script>var im = {"%s":"%s","other":1};</script></head></html>`, key, value)
}

func newSite(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/XYZ3", html("<html></html>"))
	mux.HandleFunc("/XYZ3/historico/", html(nonceScript("quotes_history_nonce", "hist1")))
	mux.HandleFunc("/XYZ3/proventos/", html(nonceScript("quotes_earnings_nonce", "earn1")))
	mux.HandleFunc("/wp-admin/admin-ajax.php", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.PostForm.Get("action") {
		case "more_quotes_history":
			_, _ = w.Write([]byte(`[
				[{"display":"04/01/2021","timestamp":1609718400}, 10.80, 11.00, "1,85", 10.70, 11.10, "2000"],
				[{"display":"01/01/2021","timestamp":1609459200}, 10.50, 10.80, "1,20", 10.40, 10.90, "1000"]
			]`))
		case "more_quotes_earnings":
			_, _ = w.Write([]byte(`{"aaData":[["DIVIDENDO","0,512","1,2","n/d","10/02/2021","11/02/21","n/d"]]}`))
		default:
			_, _ = w.Write([]byte("false"))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(base, dir string) *config.Config {
	cfg := &config.Config{
		Crawler: config.Crawler{
			StartURL:         base + "/ferramentas/altas-e-baixas/",
			APIURL:           base + "/wp-admin/admin-ajax.php",
			DetailsURL:       base,
			FundPriceURL:     base + "/fii-api/prices",
			FundEarningsURL:  base + "/fii-api/earnings",
			FilesStoragePath: dir,
		},
		Engine: config.Engine{RetryTimes: 1, RequestTimeout: 5 * time.Second},
	}
	cfg.SetDefaults()
	return cfg
}

// fileRepository opens a fresh session per run on a file database, since the store stage
// closes its session when the run ends.
func fileRepository(t *testing.T) (RepositoryFactory, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawler.db")
	open := func() (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	}

	db, err := open()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entity.AssetPrice{}, &entity.AssetEarnings{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	return func(ctx context.Context) (repository.AssetRepository, error) {
		db, err := open()
		if err != nil {
			return nil, err
		}
		return repository.NewAssetRepository(db), nil
	}, path
}

func countRows(t *testing.T, path string, model interface{}) int64 {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	return count
}

func TestCrawlService_RunStoresAndExports(t *testing.T) {
	site := newSite(t)
	dir := t.TempDir()
	openRepo, dbPath := fileRepository(t)
	publisher := &capturingPublisher{}
	notifier := &capturingNotifier{}

	svc := NewCrawlService(testConfig(site.URL, dir), openRepo, publisher, notifier, logger.NewNop())
	ctx := context.Background()

	summary, err := svc.Run(ctx, dto.CrawlParams{Assets: []string{" xyz3 "}})
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{"XYZ3"}, summary.Params.Assets)
	assert.Equal(t, int64(3), summary.Counters[stats.RecordsEmitted])
	assert.Equal(t, int64(3), summary.Counters[stats.RecordsStored])
	assert.Equal(t, summary.RunID, publisher.runID)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "XYZ3")

	assert.Equal(t, int64(2), countRows(t, dbPath, &entity.AssetPrice{}))
	assert.Equal(t, int64(1), countRows(t, dbPath, &entity.AssetEarnings{}))

	for _, name := range []string{"XYZ3.csv", "earnings_XYZ3.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	// a second run finds every record already stored
	summary, err = svc.Run(ctx, dto.CrawlParams{Assets: []string{"XYZ3"}})
	require.NoError(t, err)
	assert.Zero(t, summary.Counters[stats.RecordsStored])
	assert.Equal(t, int64(2), summary.Counters[stats.DuplicateKey("price", "XYZ3")])
	assert.Equal(t, int64(1), summary.Counters[stats.DuplicateKey("earnings", "XYZ3")])
	assert.Equal(t, int64(2), countRows(t, dbPath, &entity.AssetPrice{}))
}

func TestCrawlService_UpstreamUnreachable(t *testing.T) {
	site := httptest.NewServer(http.NotFoundHandler())
	base := site.URL
	site.Close()

	openRepo, _ := fileRepository(t)
	svc := NewCrawlService(testConfig(base, t.TempDir()), openRepo, nil, nil, logger.NewNop())

	summary, err := svc.Run(context.Background(), dto.CrawlParams{Assets: []string{"XYZ3"}})
	assert.ErrorIs(t, err, ErrUpstreamUnreachable)
	assert.Equal(t, int64(2), summary.Counters[stats.Requests])
	assert.Zero(t, summary.Counters[stats.Responses])
	assert.Equal(t, int64(1), summary.Counters[stats.RetriesExhausted])
}

func TestCrawlService_InvalidParams(t *testing.T) {
	openRepo := func(ctx context.Context) (repository.AssetRepository, error) {
		t.Fatal("no session is opened for invalid parameters")
		return nil, nil
	}
	svc := NewCrawlService(testConfig("http://127.0.0.1:1", t.TempDir()), openRepo, nil, nil, logger.NewNop())

	_, err := svc.Run(context.Background(), dto.CrawlParams{StartDate: "2021-01-01"})
	assert.Error(t, err)
	_, err = svc.Run(context.Background(), dto.CrawlParams{StartDate: "10/01/2021", EndDate: "01/01/2021"})
	assert.Error(t, err)
}

func TestCrawlService_RepositoryFailure(t *testing.T) {
	openRepo := func(ctx context.Context) (repository.AssetRepository, error) {
		return nil, errors.New("connection refused")
	}
	svc := NewCrawlService(testConfig("http://127.0.0.1:1", t.TempDir()), openRepo, nil, nil, logger.NewNop())

	_, err := svc.Run(context.Background(), dto.CrawlParams{Assets: []string{"XYZ3"}})
	assert.ErrorContains(t, err, "connection refused")
}
