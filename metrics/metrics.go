package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum-optimism/infra/op-rerun/runner"
	"github.com/ethereum-optimism/infra/op-rerun/tracker"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

const (
	Namespace = "op_rerun"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)
)

// Metricer is everything op-rerun records
type Metricer interface {
	tracker.Metricer
	runner.Metricer
	RecordErrorDetails(label string, err error)
}

var (
	_ Metricer = (*Metrics)(nil)
	_ Metricer = NoopMetrics
)

// Metrics records to a dedicated prometheus registry
type Metrics struct {
	registry *prometheus.Registry
	factory  opmetrics.Factory

	errorsTotal     *prometheus.CounterVec
	testResults     *prometheus.CounterVec
	testDuration    *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	lastRunDuration prometheus.Gauge
	skiplisted      prometheus.Counter
	passesRecorded  prometheus.Counter
	flushesTotal    prometheus.Counter
	flushedIDs      prometheus.Counter
}

// NewMetrics registers every metric on a new registry
func NewMetrics() *Metrics {
	registry := opmetrics.NewRegistry()
	factory := opmetrics.With(registry)

	return &Metrics{
		registry: registry,
		factory:  factory,

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Count of errors",
		}, []string{
			"error",
		}),
		testResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "test_results_total",
			Help:      "Count of test results by status",
		}, []string{
			"status",
		}),
		testDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "test_duration_seconds",
			Help:      "Duration of executed tests",
			Buckets:   []float64{.01, .1, .5, 1, 5, 15, 60, 300, 900},
		}, []string{
			"status",
		}),
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Count of completed runs by status",
		}, []string{
			"status",
		}),
		lastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last run",
		}),
		skiplisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "skiplist_matches_total",
			Help:      "Number of collected tests skipped because of the skiplist",
		}),
		passesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "passlist_records_total",
			Help:      "Number of passed tests recorded for the passlist",
		}),
		flushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "passlist_flushes_total",
			Help:      "Number of passlist flushes",
		}),
		flushedIDs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "passlist_flushed_ids_total",
			Help:      "Number of identifiers appended to the passlist",
		}),
	}
}

// Registry returns the registry the metrics are served from
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func (m *Metrics) RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	m.errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func (m *Metrics) RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	m.RecordError(label)
}

func (m *Metrics) RecordTestResult(status types.TestStatus, duration time.Duration) {
	if !isValidResult(status) {
		log.Error("RecordTestResult - invalid result", "result", status)
		return
	}
	m.testResults.WithLabelValues(string(status)).Inc()
	if status != types.TestStatusSkip {
		m.testDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	}
}

func (m *Metrics) RecordRun(status types.TestStatus, duration time.Duration) {
	if !isValidResult(status) {
		log.Error("RecordRun - invalid result", "result", status)
		return
	}
	m.runsTotal.WithLabelValues(string(status)).Inc()
	m.lastRunDuration.Set(duration.Seconds())
}

func (m *Metrics) RecordSkiplisted(n int) {
	m.skiplisted.Add(float64(n))
}

func (m *Metrics) RecordPassRecorded() {
	m.passesRecorded.Inc()
}

func (m *Metrics) RecordFlush(ids int) {
	if Debug {
		log.Debug("metric inc", "m", "passlist_flushes_total", "ids", ids)
	}
	m.flushesTotal.Inc()
	m.flushedIDs.Add(float64(ids))
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}

type noopMetrics struct{}

// NoopMetrics records nothing
var NoopMetrics Metricer = noopMetrics{}

func (noopMetrics) RecordErrorDetails(string, error)                  {}
func (noopMetrics) RecordTestResult(types.TestStatus, time.Duration) {}
func (noopMetrics) RecordRun(types.TestStatus, time.Duration)        {}
func (noopMetrics) RecordSkiplisted(int)                              {}
func (noopMetrics) RecordPassRecorded()                               {}
func (noopMetrics) RecordFlush(int)                                   {}
