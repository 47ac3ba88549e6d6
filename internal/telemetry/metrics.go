package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/patientenakte"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Transport metrics
	HTTPRequestsTotal       metric.Int64Counter
	HTTPRequestErrorsTotal  metric.Int64Counter
	HTTPRequestDuration     metric.Float64Histogram
	SessionInvalidatedTotal metric.Int64Counter

	// Query metrics
	QueryCacheHitsTotal   metric.Int64Counter
	QueryCacheMissesTotal metric.Int64Counter
	QueryRetriesTotal     metric.Int64Counter

	// Login metrics
	LoginAttemptsTotal metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.HTTPRequestsTotal, _ = meter.Int64Counter(
		"patientenakte.http.requests.total",
		metric.WithDescription("Total number of backend requests dispatched"),
		metric.WithUnit("{request}"),
	)

	m.HTTPRequestErrorsTotal, _ = meter.Int64Counter(
		"patientenakte.http.requests.errors.total",
		metric.WithDescription("Total number of backend requests that failed"),
		metric.WithUnit("{error}"),
	)

	m.HTTPRequestDuration, _ = meter.Float64Histogram(
		"patientenakte.http.requests.duration",
		metric.WithDescription("Duration of backend requests"),
		metric.WithUnit("ms"),
	)

	m.SessionInvalidatedTotal, _ = meter.Int64Counter(
		"patientenakte.session.invalidated.total",
		metric.WithDescription("Total number of sessions cleared after a 401 response"),
		metric.WithUnit("{event}"),
	)

	m.QueryCacheHitsTotal, _ = meter.Int64Counter(
		"patientenakte.query.cache.hits.total",
		metric.WithDescription("Total number of queries served from the read cache"),
		metric.WithUnit("{query}"),
	)

	m.QueryCacheMissesTotal, _ = meter.Int64Counter(
		"patientenakte.query.cache.misses.total",
		metric.WithDescription("Total number of queries that reached the backend"),
		metric.WithUnit("{query}"),
	)

	m.QueryRetriesTotal, _ = meter.Int64Counter(
		"patientenakte.query.retries.total",
		metric.WithDescription("Total number of query retries after transient failures"),
		metric.WithUnit("{retry}"),
	)

	m.LoginAttemptsTotal, _ = meter.Int64Counter(
		"patientenakte.login.attempts.total",
		metric.WithDescription("Total number of login submissions"),
		metric.WithUnit("{attempt}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"patientenakte.login.failures.total",
		metric.WithDescription("Total number of failed login submissions"),
		metric.WithUnit("{attempt}"),
	)

	return m
}
