package discovery

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wxarchiver/pkg/auth"
	"wxarchiver/pkg/browser/browsertest"
	"wxarchiver/pkg/checkpoint"
	"wxarchiver/pkg/config"
	"wxarchiver/pkg/errors"
	"wxarchiver/pkg/logger"
	"wxarchiver/pkg/storage"
	"wxarchiver/pkg/wechat"
)

const historyURL = "https://mp.weixin.qq.com/mp/profile_ext?action=home&__biz=MzA5NjYwOTg0Mg==&scene=124#wechat_redirect"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Discovery.LoginTimeout = time.Second
	cfg.Discovery.LoginPollInterval = time.Millisecond
	cfg.Discovery.VerificationTimeout = 20 * time.Millisecond
	cfg.Discovery.VerificationInterval = time.Millisecond
	cfg.Discovery.PageDelayMin = 0
	cfg.Discovery.PageDelayMax = 0
	cfg.Discovery.RateLimitStep = time.Millisecond
	cfg.Discovery.ProfileSettle = 0
	cfg.Discovery.ScrollDelay = 0
	cfg.Discovery.LoadMoreDelay = 0
	cfg.Discovery.RoundDelay = 0
	return cfg
}

func newLedger(t *testing.T) *storage.Ledger {
	t.Helper()
	ledger, err := storage.LoadLedger(filepath.Join(t.TempDir(), "links.jsonl"), wechat.NormalizeArticleURL)
	require.NoError(t, err)
	return ledger
}

func reload(t *testing.T, ledger *storage.Ledger) []storage.LinkRecord {
	t.Helper()
	fresh, err := storage.LoadLedger(ledger.Path(), wechat.NormalizeArticleURL)
	require.NoError(t, err)
	return fresh.Records()
}

func articleURL(mid int) string {
	return "http://mp.weixin.qq.com/s?__biz=MzA5&amp;mid=" + strconv.Itoa(mid) + "&amp;idx=1#rd"
}

func canonicalURL(mid int) string {
	return "https://mp.weixin.qq.com/s?__biz=MzA5&mid=" + strconv.Itoa(mid) + "&idx=1"
}

func TestContainsAny(t *testing.T) {
	assert.True(t, containsAny("请先绑定公众号", wechat.NotEligiblePhrases))
	assert.False(t, containsAny("扫码登录", wechat.NotEligiblePhrases))
	assert.False(t, containsAny("anything", nil))
}

func TestNewStrategySelection(t *testing.T) {
	cfg := testConfig()
	launcher := browsertest.NewFakeLauncher(browsertest.NewFakeSession())

	assert.Equal(t, PlatformStrategyName, NewStrategy(launcher, cfg, nil, logger.NewNopLogger()).Name())
	cookies := []auth.Cookie{{Name: "wap_sid2", Value: "x", Domain: auth.CookieDomain, Path: auth.CookiePath}}
	assert.Equal(t, ProfileStrategyName, NewStrategy(launcher, cfg, cookies, logger.NewNopLogger()).Name())
}

type stubStrategy struct {
	batches [][]storage.LinkRecord
	err     error
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Discover(ctx context.Context, historyURL string, emit Emitter) error {
	for _, b := range s.batches {
		if _, err := emit(b); err != nil {
			return err
		}
	}
	return s.err
}

func TestEngineMergesEveryBatch(t *testing.T) {
	ledger := newLedger(t)
	late, early := "2024-02-01T00:00:00", "2024-01-01T00:00:00"
	strategy := &stubStrategy{batches: [][]storage.LinkRecord{
		{{URL: articleURL(2), PublishTime: &late}, {URL: "https://example.com/not-an-article"}},
		{{URL: canonicalURL(2) + "#again"}, {URL: articleURL(1), PublishTime: &early}},
	}}

	result, err := NewEngine(ledger, logger.NewNopLogger()).Run(context.Background(), strategy, historyURL)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 2, result.Total)

	records := reload(t, ledger)
	require.Len(t, records, 2)
	assert.Equal(t, canonicalURL(1), records[0].URL)
	assert.Equal(t, canonicalURL(2), records[1].URL)
}

func TestEngineKeepsFlushedBatchesOnError(t *testing.T) {
	ledger := newLedger(t)
	strategy := &stubStrategy{
		batches: [][]storage.LinkRecord{{{URL: articleURL(1)}}},
		err:     assert.AnError,
	}
	log := logger.NewTestLogger()

	result, err := NewEngine(ledger, log).Run(context.Background(), strategy, historyURL)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, result.Total)
	assert.Len(t, reload(t, ledger), 1)
	assert.True(t, log.HasError())
}

func TestEngineIsIdempotent(t *testing.T) {
	ledger := newLedger(t)
	published := "2024-01-01T00:00:00"
	strategy := &stubStrategy{batches: [][]storage.LinkRecord{{{URL: articleURL(1), PublishTime: &published}, {URL: articleURL(2)}}}}
	engine := NewEngine(ledger, logger.NewNopLogger())

	_, err := engine.Run(context.Background(), strategy, historyURL)
	require.NoError(t, err)
	first := reload(t, ledger)

	second, err := engine.Run(context.Background(), strategy, historyURL)
	require.NoError(t, err)
	assert.Zero(t, second.Added)
	assert.Equal(t, first, reload(t, ledger))
}

var beginParam = regexp.MustCompile(`begin=(\d+)`)

func appMsgReply(ret, total int, items ...wechat.AppMsgItem) json.RawMessage {
	if items == nil {
		items = []wechat.AppMsgItem{}
	}
	data, _ := json.Marshal(map[string]interface{}{
		"base_resp":    map[string]interface{}{"ret": ret, "err_msg": "x"},
		"app_msg_cnt":  total,
		"app_msg_list": items,
	})
	return data
}

func loggedInPage() *browsertest.FakePage {
	page := browsertest.NewFakePage()
	page.URLs = []string{
		"https://mp.weixin.qq.com/",
		"https://mp.weixin.qq.com/",
		"https://mp.weixin.qq.com/cgi-bin/home?t=home/index&lang=zh_CN&token=998877",
	}
	return page
}

func runPlatform(t *testing.T, page *browsertest.FakePage, ledger *storage.Ledger) (*browsertest.FakeLauncher, error) {
	t.Helper()
	launcher := browsertest.NewFakeLauncher(browsertest.NewFakeSession(page))
	cfg := testConfig()
	strategy := NewPlatformStrategy(launcher, &cfg.Browser, &cfg.Discovery, logger.NewNopLogger())
	_, err := NewEngine(ledger, logger.NewNopLogger()).Run(context.Background(), strategy, historyURL)
	return launcher, err
}

func TestPlatformTwoPageEnumeration(t *testing.T) {
	page := loggedInPage()
	var begins []int
	page.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		assert.Contains(t, expr, "token=998877")
		assert.Contains(t, expr, "fakeid=MzA5NjYwOTg0Mg")
		begin, _ := strconv.Atoi(beginParam.FindStringSubmatch(expr)[1])
		begins = append(begins, begin)
		if begin > 0 {
			return appMsgReply(0, 10), nil
		}
		var items []wechat.AppMsgItem
		for mid := 5; mid >= 1; mid-- {
			items = append(items, wechat.AppMsgItem{
				Title:      "Article " + strconv.Itoa(mid),
				Link:       articleURL(mid),
				CreateTime: int64(1700000000 + mid*86400),
			})
		}
		return appMsgReply(0, 10, items...), nil
	}
	ledger := newLedger(t)

	launcher, err := runPlatform(t, page, ledger)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 5}, begins)
	require.Len(t, launcher.Launches, 1)
	assert.False(t, launcher.Launches[0].Headless)
	assert.Equal(t, []string{wechat.BaseURL}, page.Navigations)
	assert.True(t, page.Closed())

	records := reload(t, ledger)
	require.Len(t, records, 5)
	for i, r := range records {
		assert.Equal(t, canonicalURL(i+1), r.URL)
		assert.Equal(t, storage.SourcePlatformAPI, r.Source)
		require.NotNil(t, r.PublishTime)
	}
}

func TestPlatformStopsAtReportedTotal(t *testing.T) {
	page := loggedInPage()
	calls := 0
	page.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		calls++
		return appMsgReply(0, 2, wechat.AppMsgItem{Link: articleURL(1)}, wechat.AppMsgItem{Link: articleURL(2)}), nil
	}
	ledger := newLedger(t)

	_, err := runPlatform(t, page, ledger)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, ledger.Len())
}

func TestPlatformRateLimitEscalation(t *testing.T) {
	page := loggedInPage()
	calls := 0
	page.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		calls++
		return appMsgReply(wechat.RetRateLimited, 0), nil
	}
	ledger := newLedger(t)

	_, err := runPlatform(t, page, ledger)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Zero(t, ledger.Len())
}

func TestPlatformRateLimitResetsAfterSuccess(t *testing.T) {
	page := loggedInPage()
	replies := []json.RawMessage{
		appMsgReply(wechat.RetRateLimited, 0),
		appMsgReply(wechat.RetRateLimited, 0),
		appMsgReply(0, 20, wechat.AppMsgItem{Link: articleURL(1)}),
		appMsgReply(wechat.RetRateLimited, 0),
		appMsgReply(wechat.RetRateLimited, 0),
		appMsgReply(0, 20, wechat.AppMsgItem{Link: articleURL(2)}),
		appMsgReply(0, 20),
	}
	calls := 0
	page.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		reply := replies[calls]
		calls++
		return reply, nil
	}
	ledger := newLedger(t)

	_, err := runPlatform(t, page, ledger)
	require.NoError(t, err)
	assert.Equal(t, len(replies), calls)
	assert.Equal(t, 2, ledger.Len())
}

func TestPlatformSessionExpiredIsFatalButKeepsProgress(t *testing.T) {
	page := loggedInPage()
	calls := 0
	page.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		calls++
		if calls == 1 {
			return appMsgReply(0, 10, wechat.AppMsgItem{Link: articleURL(1)}), nil
		}
		return appMsgReply(wechat.RetSessionExpired, 0), nil
	}
	ledger := newLedger(t)

	_, err := runPlatform(t, page, ledger)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSessionExpired))
	assert.True(t, errors.RequiresOperator(err))
	assert.Len(t, reload(t, ledger), 1)
}

func TestPlatformOtherErrorsStopQuietly(t *testing.T) {
	page := loggedInPage()
	page.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		return appMsgReply(-1, 0), nil
	}
	_, err := runPlatform(t, page, newLedger(t))
	assert.NoError(t, err)

	page = loggedInPage()
	page.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		return `{"unexpected": true}`, nil
	}
	_, err = runPlatform(t, page, newLedger(t))
	assert.NoError(t, err)
}

func TestPlatformLoginFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want errors.ErrorType
	}{
		{"not eligible", "该微信号尚未绑定公众号，请先注册", errors.ErrorTypeAccountNotEligible},
		{"timeout", "使用微信扫一扫登录", errors.ErrorTypeLoginTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.NewFakePage()
			page.URLs = []string{"https://mp.weixin.qq.com/"}
			page.BodyTexts = []string{tt.body}
			launcher := browsertest.NewFakeLauncher(browsertest.NewFakeSession(page))
			cfg := testConfig()
			cfg.Discovery.LoginTimeout = 5 * time.Millisecond

			err := NewPlatformStrategy(launcher, &cfg.Browser, &cfg.Discovery, logger.NewNopLogger()).
				Discover(context.Background(), historyURL, func([]storage.LinkRecord) (int, error) { return 0, nil })
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.TypeOf(err))
			assert.Empty(t, page.Evaluations)
		})
	}
}

func TestPlatformRejectsHistoryURLWithoutBiz(t *testing.T) {
	launcher := browsertest.NewFakeLauncher(browsertest.NewFakeSession())
	cfg := testConfig()

	err := NewPlatformStrategy(launcher, &cfg.Browser, &cfg.Discovery, logger.NewNopLogger()).
		Discover(context.Background(), "https://mp.weixin.qq.com/mp/profile_ext?action=home", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParsing))
	assert.Empty(t, launcher.Launches)
}

func TestPlatformResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	ledger := newLedger(t)
	cfg := testConfig()

	pageOf := func(begin int) []wechat.AppMsgItem {
		var items []wechat.AppMsgItem
		for mid := begin + 1; mid <= begin+5 && mid <= 12; mid++ {
			items = append(items, wechat.AppMsgItem{Link: articleURL(mid)})
		}
		return items
	}
	run := func(page *browsertest.FakePage, resume bool) error {
		launcher := browsertest.NewFakeLauncher(browsertest.NewFakeSession(page))
		strategy := NewPlatformStrategy(launcher, &cfg.Browser, &cfg.Discovery, logger.NewNopLogger()).
			WithCheckpoints(dir, resume)
		_, err := NewEngine(ledger, logger.NewNopLogger()).Run(context.Background(), strategy, historyURL)
		return err
	}

	first := loggedInPage()
	first.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		begin, _ := strconv.Atoi(beginParam.FindStringSubmatch(expr)[1])
		if begin == 0 {
			return appMsgReply(0, 12, pageOf(0)...), nil
		}
		return appMsgReply(wechat.RetSessionExpired, 0), nil
	}
	require.Error(t, run(first, true))

	progress, err := checkpoint.NewManager(dir, "MzA5NjYwOTg0Mg==", logger.NewNopLogger())
	require.NoError(t, err)
	cp, err := progress.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 5, cp.Begin)
	assert.Equal(t, 12, cp.Total)

	var begins []int
	second := loggedInPage()
	second.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		begin, _ := strconv.Atoi(beginParam.FindStringSubmatch(expr)[1])
		begins = append(begins, begin)
		return appMsgReply(0, 12, pageOf(begin)...), nil
	}
	require.NoError(t, run(second, true))

	assert.Equal(t, []int{5, 10}, begins)
	assert.Equal(t, 12, ledger.Len())
	assert.False(t, progress.Exists())
}

func TestPlatformRestartIgnoresCheckpoint(t *testing.T) {
	dir := t.TempDir()
	progress, err := checkpoint.NewManager(dir, "MzA5NjYwOTg0Mg==", logger.NewNopLogger())
	require.NoError(t, err)
	cp, err := progress.Create("MzA5NjYwOTg0Mg==", PlatformStrategyName)
	require.NoError(t, err)
	require.NoError(t, progress.Advance(cp, 40, 50, 5))

	var begins []int
	page := loggedInPage()
	page.EvaluateFunc = func(_ *browsertest.FakePage, expr string) (interface{}, error) {
		begin, _ := strconv.Atoi(beginParam.FindStringSubmatch(expr)[1])
		begins = append(begins, begin)
		return appMsgReply(0, 1, wechat.AppMsgItem{Link: articleURL(1)}), nil
	}

	cfg := testConfig()
	launcher := browsertest.NewFakeLauncher(browsertest.NewFakeSession(page))
	strategy := NewPlatformStrategy(launcher, &cfg.Browser, &cfg.Discovery, logger.NewNopLogger()).
		WithCheckpoints(dir, false)
	_, err = NewEngine(newLedger(t), logger.NewNopLogger()).Run(context.Background(), strategy, historyURL)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, begins)
	assert.False(t, progress.Exists())
}
