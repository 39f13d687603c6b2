// Package metrics wraps Prometheus collectors for seed assignment and
// conditions database traffic.
//
// All recording methods are safe to call on a nil *Collector, so library
// code can take an optional collector without guarding every call site.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the registered collectors.
type Collector struct {
	registry *prometheus.Registry

	seedsAssigned *prometheus.CounterVec
	reseeds       *prometheus.CounterVec

	webRequests *prometheus.CounterVec
	webRetries  prometheus.Counter

	rowsLoaded   *prometheus.CounterVec
	rowsWritten  *prometheus.CounterVec
	hostFailures prometheus.Counter
}

// NewCollector creates a collector registered on a private registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "nutools"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.seedsAssigned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seed",
			Name:      "assigned_total",
			Help:      "Job-level seeds handed to engines",
		},
		[]string{"policy", "frozen"},
	)
	c.reseeds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "seed",
			Name:      "reseeds_total",
			Help:      "Event-level reseeds applied to engines",
		},
		[]string{"policy"},
	)
	c.webRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conddb",
			Name:      "web_requests_total",
			Help:      "HTTP requests sent to the conditions web services",
		},
		[]string{"method", "status"},
	)
	c.webRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conddb",
			Name:      "web_retries_total",
			Help:      "Retries after a gateway timeout",
		},
	)
	c.rowsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conddb",
			Name:      "rows_loaded_total",
			Help:      "Rows loaded into tables",
		},
		[]string{"table", "source"},
	)
	c.rowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conddb",
			Name:      "rows_written_total",
			Help:      "Rows written from tables",
		},
		[]string{"table", "kind"},
	)
	c.hostFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conddb",
			Name:      "db_host_failures_total",
			Help:      "Database hosts that refused a connection",
		},
	)

	c.registry.MustRegister(
		c.seedsAssigned,
		c.reseeds,
		c.webRequests,
		c.webRetries,
		c.rowsLoaded,
		c.rowsWritten,
		c.hostFailures,
	)
	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// SeedAssigned counts a job-level seed.
func (c *Collector) SeedAssigned(policy string, frozen bool) {
	if c == nil {
		return
	}
	c.seedsAssigned.WithLabelValues(policy, strconv.FormatBool(frozen)).Inc()
}

// Reseeded counts an event-level reseed.
func (c *Collector) Reseeded(policy string) {
	if c == nil {
		return
	}
	c.reseeds.WithLabelValues(policy).Inc()
}

// WebRequest counts one HTTP round trip by method and status code.
// A status of 0 records a transport failure.
func (c *Collector) WebRequest(method string, status int) {
	if c == nil {
		return
	}
	c.webRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// WebRetry counts one backoff retry.
func (c *Collector) WebRetry() {
	if c == nil {
		return
	}
	c.webRetries.Inc()
}

// RowsLoaded adds n rows loaded into table from source (sql, web, qe, csv).
func (c *Collector) RowsLoaded(table, source string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.rowsLoaded.WithLabelValues(table, source).Add(float64(n))
}

// RowsWritten adds n rows written from table by kind (insert, update, conditions).
func (c *Collector) RowsWritten(table, kind string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.rowsWritten.WithLabelValues(table, kind).Add(float64(n))
}

// HostFailure counts a database host that could not be reached.
func (c *Collector) HostFailure() {
	if c == nil {
		return
	}
	c.hostFailures.Inc()
}
