package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-rerun/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
		{
			name: "error with multiple underscores",
			err:  errors.New("test__error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordErrorDetails(t *testing.T) {
	m := NewMetrics()
	m.RecordErrorDetails("flush", nil)
	m.RecordErrorDetails("flush", errors.New("disk full"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("flush.disk_full")))
}

func TestRecordTestResult(t *testing.T) {
	m := NewMetrics()
	m.RecordTestResult(types.TestStatusPass, time.Second)
	m.RecordTestResult(types.TestStatusPass, 2*time.Second)
	m.RecordTestResult(types.TestStatusFail, time.Second)
	m.RecordTestResult(types.TestStatusSkip, 0)
	m.RecordTestResult("bogus", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.testResults.WithLabelValues("pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.testResults.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.testResults.WithLabelValues("skip")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.testDuration), "skips have no duration")
}

func TestRecordRun(t *testing.T) {
	m := NewMetrics()
	m.RecordRun(types.TestStatusFail, 90*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("fail")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.lastRunDuration))
}

func TestTrackerMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordSkiplisted(3)
	m.RecordPassRecorded()
	m.RecordPassRecorded()
	m.RecordFlush(2)
	m.RecordFlush(0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.skiplisted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.passesRecorded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.flushesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.flushedIDs))
}

func TestRegistryIsolation(t *testing.T) {
	// each instance owns its registry, so creating two must not panic on
	// duplicate registration
	a := NewMetrics()
	b := NewMetrics()
	a.RecordPassRecorded()

	families, err := b.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == Namespace+"_passlist_records_total" {
			assert.Equal(t, 0.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestNoopMetrics(t *testing.T) {
	assert.NotPanics(t, func() {
		NoopMetrics.RecordTestResult(types.TestStatusPass, time.Second)
		NoopMetrics.RecordRun(types.TestStatusPass, time.Second)
		NoopMetrics.RecordSkiplisted(1)
		NoopMetrics.RecordPassRecorded()
		NoopMetrics.RecordFlush(1)
		NoopMetrics.RecordErrorDetails("x", errors.New("y"))
	})
}
