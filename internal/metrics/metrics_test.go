package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		ObserveSyncRun("success", 0.1)
		IncSyncEntry("CREATE")
		IncConflict()
	})
}

func TestGauges(t *testing.T) {
	SetPending(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(outboxPending))

	before := testutil.ToFloat64(transitions)
	SetOnline(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(online))
	SetOnline(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(online))
	IncTransition()
	assert.Equal(t, before+1, testutil.ToFloat64(transitions))
}
