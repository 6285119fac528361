package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/clock/system"
	"github.com/JakeFAU/job-crawler/internal/crawler"
)

var now = time.Date(2025, 4, 2, 18, 0, 0, 0, time.UTC)

type fakeSources struct {
	crawler.SourceStore
	latest *time.Time
	err    error
}

func (f fakeSources) LatestCrawl(context.Context) (*time.Time, error) {
	return f.latest, f.err
}

type fakeCrawler struct {
	calls  atomic.Int32
	report crawler.Report
	err    error
}

func (f *fakeCrawler) Run(context.Context) (crawler.Report, error) {
	f.calls.Add(1)
	return f.report, f.err
}

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func newGate(sources crawler.SourceStore, c Crawler) *Gate {
	return New(Config{}, sources, c, system.NewFixed(now), zap.NewNop())
}

func TestCheckSkipsRecentCrawl(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{}
	resp := newGate(fakeSources{latest: ago(6 * time.Hour)}, c).Check(context.Background())

	assert.True(t, resp.Success)
	assert.False(t, resp.Ran)
	assert.Equal(t, "Skipped crawl. Last crawl was 6.0 hours ago", resp.Message)
	assert.Equal(t, "6.0 hours", resp.NextCrawlIn)
	assert.Nil(t, resp.CrawlerResult)
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestCheckRunsWhenDue(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{report: crawler.Report{Success: true, RunID: "run-1", TotalJobsFound: 4}}
	resp := newGate(fakeSources{latest: ago(13 * time.Hour)}, c).Check(context.Background())

	require.True(t, resp.Success)
	assert.True(t, resp.Ran)
	assert.Equal(t, "Scheduled job crawl completed", resp.Message)
	require.NotNil(t, resp.CrawlerResult)
	assert.Equal(t, 4, resp.CrawlerResult.TotalJobsFound)
	require.NotNil(t, resp.ScheduledAt)
	assert.Equal(t, now, *resp.ScheduledAt)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestCheckAssumesDueWithoutHistory(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{report: crawler.Report{Success: true}}
	resp := newGate(fakeSources{}, c).Check(context.Background())
	assert.True(t, resp.Ran)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestCheckHonorsCustomInterval(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{}
	g := New(Config{MinInterval: 48 * time.Hour}, fakeSources{}, c, system.NewFixed(now), nil)
	resp := g.Check(context.Background())
	assert.False(t, resp.Ran)
	assert.Equal(t, "24.0 hours", resp.NextCrawlIn)
}

func TestCheckReportsLookupFailure(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{}
	resp := newGate(fakeSources{err: errors.New("db down")}, c).Check(context.Background())
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to check last crawl time", resp.Error)
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestCheckReportsCrawlFailure(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{err: crawler.ErrRunInProgress}
	resp := newGate(fakeSources{latest: ago(20 * time.Hour)}, c).Check(context.Background())
	assert.False(t, resp.Success)
	assert.True(t, resp.Ran)
	assert.Equal(t, crawler.ErrRunInProgress.Error(), resp.Error)
}
