package services

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricLinesTotal      = "lines_total"
	MetricRowsFlushed     = "rows_flushed_total"
	MetricFlushesTotal    = "flushes_total"
	MetricFileErrorsTotal = "file_errors_total"
	MetricRequestsTotal   = "requests_total"
)

// CounterLines counts input lines by outcome: "parsed" or "skipped".
var CounterLines = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ingester",
		Name:      MetricLinesTotal,
		Help:      "Input lines read, by parse outcome.",
	},
	[]string{"result"},
)

var CounterRowsFlushed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ingester",
		Name:      MetricRowsFlushed,
		Help:      "Rows written to the store, by table.",
	},
	[]string{"table"},
)

var CounterFlushes = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "ingester",
		Name:      MetricFlushesTotal,
		Help:      "Batch flushes completed.",
	},
)

var CounterFileErrors = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "ingester",
		Name:      MetricFileErrorsTotal,
		Help:      "Input files abandoned after a read error.",
	},
)

var CounterRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "api",
		Name:      MetricRequestsTotal,
		Help:      "HTTP requests served, by route and status code.",
	},
	[]string{"route", "code"},
)

func init() {
	prometheus.MustRegister(CounterLines)
	prometheus.MustRegister(CounterRowsFlushed)
	prometheus.MustRegister(CounterFlushes)
	prometheus.MustRegister(CounterFileErrors)
	prometheus.MustRegister(CounterRequests)
}
