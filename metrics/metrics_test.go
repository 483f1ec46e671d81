package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	// Metrics are global and registered on import; assert they exist
	assert.NotNil(t, LogRecordsEmitted)
	assert.NotNil(t, LogRecordsPersisted)
	assert.NotNil(t, LogRecordsDeduplicated)
	assert.NotNil(t, LogPipelineFaults)
	assert.NotNil(t, LogQueueDepth)
	assert.NotNil(t, LogWriteDuration)
	assert.NotNil(t, HTTPRateLimited)
	assert.NotNil(t, StoragePoolOpenConnections)
}

func TestLogPipelineFaults_Labels(t *testing.T) {
	before := testutil.ToFloat64(LogPipelineFaults.WithLabelValues("write"))
	LogPipelineFaults.WithLabelValues("write").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(LogPipelineFaults.WithLabelValues("write")))
}
