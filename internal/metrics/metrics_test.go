package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorMethodsAreNoOps(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.SetDiscoveredBrokers("default", 3)
		c.SetActiveConnections("default", "connected", 1)
		c.RecordConnectAttempt("default", "ok")
		c.RecordLLRPProbeSent("eth0")
		c.RecordLLRPTargetsFound("eth0", 2)
		c.ObserveLLRPDiscoveryCycle(time.Second)
		c.RecordReassemblyChain("default")
		c.RecordReassemblyDropped("default")
		c.RecordRDMCommandSent("default", "get_command")
		c.ObserveRDMCommandDuration("default", 10*time.Millisecond)
	})
}

func TestCollector_RecordsAgainstOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SetDiscoveredBrokers("default", 2)
	c.RecordConnectAttempt("default", "ok")
	c.RecordConnectAttempt("default", "ok")
	c.RecordLLRPTargetsFound("eth0", 5)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.discoveredBrokers.WithLabelValues("default")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.connectAttempts.WithLabelValues("default", "ok")))
	assert.Equal(t, float64(5), testutil.ToFloat64(c.llrpTargetsFound.WithLabelValues("eth0")))
}

func TestTwoCollectorsOnDistinctRegistriesDoNotCollide(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	require.NotPanics(t, func() {
		New(reg1)
		New(reg2)
	})
}
