package sinks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/job-crawler/internal/progress"
)

// PrometheusSink derives per-source and per-site collectors from progress events.
type PrometheusSink struct {
	sourcesInFlight prometheus.Gauge
	sourceDuration  *prometheus.HistogramVec
	sourceJobs      prometheus.Histogram
	fetchRequests   *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec

	tracker *inFlight
}

// NewPrometheusSink registers the collectors against reg (the default registerer
// when nil). Collectors already registered by an earlier sink are reused.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	s := &PrometheusSink{tracker: newInFlight()}
	if s.sourcesInFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_sources_in_flight",
		Help: "Job sources currently being crawled.",
	})); err != nil {
		return nil, err
	}
	if s.sourceDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_source_duration_seconds",
		Help:    "Wall time per crawled source partitioned by result.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if s.sourceJobs, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_source_jobs",
		Help:    "Jobs saved per successful source.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})); err != nil {
		return nil, err
	}
	if s.fetchRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_fetch_requests_total",
		Help: "Page fetches partitioned by site and status class.",
	}, []string{"site", "status_class"})); err != nil {
		return nil, err
	}
	if s.fetchDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_fetch_duration_seconds",
		Help:    "Page fetch duration partitioned by site and status class.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"site", "status_class"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register progress collector: %w", err)
	}
	return c, nil
}

// Consume updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageSourceStart:
			if s.tracker.start(evt.RunID, evt.Source) {
				s.sourcesInFlight.Inc()
			}
		case progress.StageSourceDone, progress.StageSourceError:
			result := "success"
			if evt.Stage == progress.StageSourceError {
				result = "error"
			} else {
				s.sourceJobs.Observe(float64(evt.Jobs))
			}
			if evt.Dur > 0 {
				s.sourceDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
			if s.tracker.finish(evt.RunID, evt.Source) {
				s.sourcesInFlight.Dec()
			}
		case progress.StagePageDone, progress.StagePageError:
			class := string(evt.StatusClass)
			if evt.Stage == progress.StagePageError || class == "" {
				class = string(progress.StatusOther)
			}
			s.fetchRequests.WithLabelValues(evt.Site, class).Inc()
			if evt.Dur > 0 {
				s.fetchDuration.WithLabelValues(evt.Site, class).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// inFlight keeps the gauge balanced when a finish arrives without its start.
type inFlight struct {
	mu      sync.Mutex
	running map[[2]string]struct{}
}

func newInFlight() *inFlight {
	return &inFlight{running: make(map[[2]string]struct{})}
}

func (t *inFlight) start(runID, source string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := [2]string{runID, source}
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *inFlight) finish(runID, source string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := [2]string{runID, source}
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
