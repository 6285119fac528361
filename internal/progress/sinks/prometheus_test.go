package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/job-crawler/internal/progress"
)

const runID = "0195d5f0-0000-7000-8000-000000000001"

func sourceBatch(now time.Time) []progress.Event {
	return []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageSourceStart, Source: "Naukri"},
		{RunID: runID, TS: now, Stage: progress.StageSourceStart, Source: "Indeed"},
		{
			RunID:       runID,
			TS:          now,
			Stage:       progress.StagePageDone,
			Source:      "Naukri",
			Site:        "www.naukri.com",
			URL:         "https://www.naukri.com/golang-jobs-in-india",
			Bytes:       2048,
			StatusClass: progress.Status2xx,
			Dur:         300 * time.Millisecond,
		},
		{RunID: runID, TS: now, Stage: progress.StagePageError, Source: "Indeed", Site: "in.indeed.com", Note: "timeout"},
		{RunID: runID, TS: now, Stage: progress.StageSourceDone, Source: "Naukri", Jobs: 12, Dur: 4 * time.Second},
	}
}

// TestPrometheusSinkRecordsMetrics ensures gauges, counters and histograms follow the events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), sourceBatch(time.Now())))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourcesInFlight))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetchRequests.WithLabelValues("www.naukri.com", "2xx")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetchRequests.WithLabelValues("in.indeed.com", "other")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "crawler_fetch_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.sourceDuration, "crawler_source_duration_seconds"))

	// A duplicate finish must not push the gauge below the real count.
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageSourceDone, Source: "Naukri"},
		{RunID: runID, TS: time.Now(), Stage: progress.StageSourceError, Source: "Indeed", Note: "all 1 page fetches failed"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sourcesInFlight))
}

func TestPrometheusSinkReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	second, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	require.Same(t, first.fetchRequests, second.fetchRequests)
}

func TestLogSinkWritesEvents(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), sourceBatch(time.Now())))
	require.NoError(t, sink.Close(context.Background()))

	require.Equal(t, 6, logs.Len())
	require.Equal(t, 2, logs.FilterLevelExact(zap.DebugLevel).Len())
	done := logs.FilterField(zap.Int("jobs", 12)).All()
	require.Len(t, done, 1)
	require.Equal(t, "Naukri", done[0].ContextMap()["source"])
}
