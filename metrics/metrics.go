// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	MetricsNamespace            = "annotator"
	MetricsSubsystemSystem      = "system"
	MetricsSubsystemHTTP        = "http"
	MetricsSubsystemAPI         = "api"
	MetricsSubsystemLLM         = "llm"
	MetricsSubsystemAnnotations = "annotations"
	MetricsSubsystemUpstream    = "upstream"

	MetricsInstanceLabel = "instanceId"
	MetricsVersionLabel  = "version"
)

// Cache lookup results.
const (
	CacheResultHit    = "hit"
	CacheResultMiss   = "miss"
	CacheResultShared = "shared"
)

type Metrics interface {
	GetRegistry() *prometheus.Registry

	ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64)

	IncrementHTTPRequests()
	IncrementHTTPErrors()

	IncrementLLMRequests(llmName string)
	ObserveTokenUsage(llmName string, inputTokens, outputTokens int)

	IncrementAnnotationOutcome(status string)
	IncrementCacheLookup(result string)
	ObserveUpstreamDuration(statusCode string, elapsed float64)
	IncrementUpstreamErrors(reason string)
}

type InstanceInfo struct {
	InstanceID string
	Version    string
}

// metrics used to instrumentate metrics in prometheus.
type metrics struct {
	registry *prometheus.Registry

	startTime prometheus.Gauge
	info      prometheus.Gauge

	apiTime *prometheus.HistogramVec

	httpRequestsTotal prometheus.Counter
	httpErrorsTotal   prometheus.Counter

	llmRequestsTotal *prometheus.CounterVec
	llmTokensTotal   *prometheus.CounterVec

	annotationOutcomesTotal *prometheus.CounterVec
	cacheLookupsTotal       *prometheus.CounterVec
	upstreamTime            *prometheus.HistogramVec
	upstreamErrorsTotal     *prometheus.CounterVec
}

// NewMetrics Factory method to create a new metrics collector.
func NewMetrics(info InstanceInfo) Metrics {
	m := &metrics{}

	m.registry = prometheus.NewRegistry()
	options := collectors.ProcessCollectorOpts{
		Namespace: MetricsNamespace,
	}
	m.registry.MustRegister(collectors.NewProcessCollector(options))
	m.registry.MustRegister(collectors.NewGoCollector())

	additionalLabels := map[string]string{}
	if info.InstanceID != "" {
		additionalLabels[MetricsInstanceLabel] = info.InstanceID
	}

	m.startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemSystem,
		Name:        "start_timestamp_seconds",
		Help:        "The time the service started.",
		ConstLabels: additionalLabels,
	})
	m.startTime.SetToCurrentTime()
	m.registry.MustRegister(m.startTime)

	m.info = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemSystem,
		Name:      "info",
		Help:      "The service version.",
		ConstLabels: map[string]string{
			MetricsInstanceLabel: info.InstanceID,
			MetricsVersionLabel:  info.Version,
		},
	})
	m.info.Set(1)
	m.registry.MustRegister(m.info)

	m.apiTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   MetricsNamespace,
			Subsystem:   MetricsSubsystemAPI,
			Name:        "time_seconds",
			Help:        "Time to execute the api handler",
			ConstLabels: additionalLabels,
		},
		[]string{"handler", "method", "status_code"},
	)
	m.registry.MustRegister(m.apiTime)

	m.httpRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemHTTP,
		Name:        "requests_total",
		Help:        "The total number of http API requests.",
		ConstLabels: additionalLabels,
	})
	m.registry.MustRegister(m.httpRequestsTotal)

	m.httpErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemHTTP,
		Name:        "errors_total",
		Help:        "The total number of http API errors.",
		ConstLabels: additionalLabels,
	})
	m.registry.MustRegister(m.httpErrorsTotal)

	m.llmRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemLLM,
		Name:        "requests_total",
		Help:        "The total number of LLM requests.",
		ConstLabels: additionalLabels,
	}, []string{"llm_name"})
	m.registry.MustRegister(m.llmRequestsTotal)

	m.llmTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemLLM,
		Name:        "tokens_total",
		Help:        "The total number of LLM tokens by direction.",
		ConstLabels: additionalLabels,
	}, []string{"llm_name", "direction"})
	m.registry.MustRegister(m.llmTokensTotal)

	m.annotationOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemAnnotations,
		Name:        "outcomes_total",
		Help:        "The total number of annotated answers by terminal status.",
		ConstLabels: additionalLabels,
	}, []string{"status"})
	m.registry.MustRegister(m.annotationOutcomesTotal)

	m.cacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemAnnotations,
		Name:        "cache_lookups_total",
		Help:        "The total number of annotation cache lookups by result.",
		ConstLabels: additionalLabels,
	}, []string{"result"})
	m.registry.MustRegister(m.cacheLookupsTotal)

	m.upstreamTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemUpstream,
		Name:        "time_seconds",
		Help:        "Time spent waiting for the reference classifier.",
		ConstLabels: additionalLabels,
	}, []string{"status_code"})
	m.registry.MustRegister(m.upstreamTime)

	m.upstreamErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   MetricsNamespace,
		Subsystem:   MetricsSubsystemUpstream,
		Name:        "errors_total",
		Help:        "The total number of failed reference classifier calls.",
		ConstLabels: additionalLabels,
	}, []string{"reason"})
	m.registry.MustRegister(m.upstreamErrorsTotal)

	return m
}

func (m *metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *metrics) ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64) {
	if m != nil {
		m.apiTime.With(prometheus.Labels{"handler": handler, "method": method, "status_code": statusCode}).Observe(elapsed)
	}
}

func (m *metrics) IncrementHTTPRequests() {
	if m != nil {
		m.httpRequestsTotal.Inc()
	}
}

func (m *metrics) IncrementHTTPErrors() {
	if m != nil {
		m.httpErrorsTotal.Inc()
	}
}

func (m *metrics) IncrementLLMRequests(llmName string) {
	if m != nil {
		m.llmRequestsTotal.With(prometheus.Labels{"llm_name": llmName}).Inc()
	}
}

func (m *metrics) ObserveTokenUsage(llmName string, inputTokens, outputTokens int) {
	if m != nil {
		m.llmTokensTotal.With(prometheus.Labels{"llm_name": llmName, "direction": "input"}).Add(float64(inputTokens))
		m.llmTokensTotal.With(prometheus.Labels{"llm_name": llmName, "direction": "output"}).Add(float64(outputTokens))
	}
}

func (m *metrics) IncrementAnnotationOutcome(status string) {
	if m != nil {
		m.annotationOutcomesTotal.With(prometheus.Labels{"status": status}).Inc()
	}
}

func (m *metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.cacheLookupsTotal.With(prometheus.Labels{"result": result}).Inc()
	}
}

func (m *metrics) ObserveUpstreamDuration(statusCode string, elapsed float64) {
	if m != nil {
		m.upstreamTime.With(prometheus.Labels{"status_code": statusCode}).Observe(elapsed)
	}
}

func (m *metrics) IncrementUpstreamErrors(reason string) {
	if m != nil {
		m.upstreamErrorsTotal.With(prometheus.Labels{"reason": reason}).Inc()
	}
}
