package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector("test")

	c.SeedAssigned("autoIncrement", false)
	c.SeedAssigned("autoIncrement", false)
	c.SeedAssigned("autoIncrement", true)
	c.Reseeded("perEvent")
	c.WebRequest("GET", 504)
	c.WebRequest("GET", 200)
	c.WebRetry()
	c.RowsLoaded("calib.pedestals", "web", 3)
	c.RowsLoaded("calib.pedestals", "web", 0)
	c.RowsWritten("hw.crates", "insert", 2)
	c.HostFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.seedsAssigned.WithLabelValues("autoIncrement", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.seedsAssigned.WithLabelValues("autoIncrement", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reseeds.WithLabelValues("perEvent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.webRequests.WithLabelValues("GET", "504")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.webRetries))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.rowsLoaded.WithLabelValues("calib.pedestals", "web")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rowsWritten.WithLabelValues("hw.crates", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.hostFailures))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.SeedAssigned("x", false)
		c.Reseeded("x")
		c.WebRequest("GET", 200)
		c.WebRetry()
		c.RowsLoaded("t", "sql", 1)
		c.RowsWritten("t", "insert", 1)
		c.HostFailure()
	})
	assert.Nil(t, c.Registry())
}
