package connection

import (
	"testing"
	"time"

	"github.com/marmos91/rdmnetcore/internal/discovery"
	"github.com/marmos91/rdmnetcore/internal/mdns"
	"github.com/marmos91/rdmnetcore/internal/metrics"
	"github.com/marmos91/rdmnetcore/internal/protocol/acn"
	"github.com/marmos91/rdmnetcore/internal/protocol/broker"
	"github.com/marmos91/rdmnetcore/internal/protocol/rdm"
	"github.com/marmos91/rdmnetcore/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.ConnectionConfig {
	return config.ConnectionConfig{
		ConnectReplyTimeout: 2 * time.Second,
		HeartbeatTimeout:    15 * time.Second,
		HeartbeatInterval:   5 * time.Second,
		BackoffInitial:      1 * time.Second,
		BackoffMax:          8 * time.Second,
	}
}

func testIdentity() Identity {
	return Identity{
		CID:         acn.NewCID(),
		UID:         rdm.UID{Manufacturer: 0x1234, Device: 0x01},
		ClientType:  broker.ClientTypeRPTController,
		E133Version: 1,
	}
}

func newTestCollector() *metrics.Collector {
	return metrics.New(prometheus.NewRegistry())
}

func TestActivateWithStaticBrokerSkipsToConnecting(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "192.168.1.10:5569", reg, testConfig(), newTestCollector())

	effects := c.Activate(time.Unix(0, 0))
	require.Len(t, effects, 1)
	assert.Equal(t, EffectDial, effects[0].Kind)
	assert.Equal(t, "192.168.1.10:5569", effects[0].Address)
	assert.Equal(t, StateConnecting, c.State())
}

func TestActivateWithoutStaticBrokerEntersDiscovery(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "", reg, testConfig(), newTestCollector())

	effects := c.Activate(time.Unix(0, 0))
	assert.Empty(t, effects)
	assert.Equal(t, StateDiscovery, c.State())
	assert.Equal(t, 1, reg.RefCount("default"))
}

func encodeA(t *testing.T, name string, ip [4]byte, ttl uint32) mdns.ResourceRecord {
	t.Helper()
	return mdns.ResourceRecord{Name: name, Type: mdns.TypeA, Class: mdns.ClassIN, TTL: ttl, RData: ip[:]}
}

func encodeSRV(t *testing.T, name, target string, port uint16, ttl uint32) mdns.ResourceRecord {
	t.Helper()
	encodedTarget, err := mdns.EncodeName(target)
	require.NoError(t, err)

	rdata := make([]byte, 6, 6+len(encodedTarget))
	rdata[4] = byte(port >> 8)
	rdata[5] = byte(port)
	rdata = append(rdata, encodedTarget...)
	return mdns.ResourceRecord{Name: name, Type: mdns.TypeSRV, Class: mdns.ClassIN, TTL: ttl, RData: rdata}
}

func encodeTXT(t *testing.T, name string, ttl uint32, kv map[string]string) mdns.ResourceRecord {
	t.Helper()
	var rdata []byte
	for k, v := range kv {
		entry := k + "=" + v
		rdata = append(rdata, byte(len(entry)))
		rdata = append(rdata, entry...)
	}
	return mdns.ResourceRecord{Name: name, Type: mdns.TypeTXT, Class: mdns.ClassIN, TTL: ttl, RData: rdata}
}

func encodePTR(t *testing.T, ownerName, instance string, ttl uint32) mdns.ResourceRecord {
	t.Helper()
	rdata, err := mdns.EncodeName(instance)
	require.NoError(t, err)
	return mdns.ResourceRecord{Name: ownerName, Type: mdns.TypePTR, Class: mdns.ClassIN, TTL: ttl, RData: rdata}
}

func TestDiscoveryAdvancesToConnectingOnceResolved(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "", reg, testConfig(), newTestCollector())
	c.Activate(time.Unix(0, 0))

	now := time.Unix(0, 0)
	instance := "Broker One._rdmnet._tcp.local"
	ptr := encodePTR(t, mdns.ServiceTypeForScope("default"), instance, 4500)
	srv := encodeSRV(t, instance, "broker1.local", 5569, 4500)
	txt := encodeTXT(t, instance, 4500, map[string]string{"E133Scope": "default"})
	a := encodeA(t, "broker1.local", [4]byte{10, 0, 0, 5}, 4500)
	reg.HandleMessage("default", &mdns.Message{Answers: []mdns.ResourceRecord{ptr, srv, txt, a}}, now)

	effects := c.Tick(now.Add(1 * time.Second))
	require.Len(t, effects, 1)
	assert.Equal(t, EffectDial, effects[0].Kind)
	assert.Equal(t, "broker1.local:5569", effects[0].Address)
	assert.Equal(t, StateConnecting, c.State())
}

func TestDialFailedAdvancesThroughAddressesThenBacksOff(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "", reg, testConfig(), newTestCollector())
	c.mu.Lock()
	c.state = StateConnecting
	c.addrs = []string{"10.0.0.1:5569", "10.0.0.2:5569"}
	c.addrIdx = 0
	c.mu.Unlock()

	now := time.Unix(0, 0)
	effects := c.DialFailed(now)
	require.Len(t, effects, 2)
	assert.Equal(t, EffectCloseSocket, effects[0].Kind)
	assert.Equal(t, EffectDial, effects[1].Kind)
	assert.Equal(t, "10.0.0.2:5569", effects[1].Address)
	assert.Equal(t, StateConnecting, c.State())

	effects = c.DialFailed(now)
	require.Len(t, effects, 2)
	assert.Equal(t, EffectCloseSocket, effects[0].Kind)
	assert.Equal(t, EffectConnectFailed, effects[1].Kind)
	assert.Equal(t, StateDiscovery, c.State())
}

func TestConnectReplyTimeoutDemotesToDiscovery(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "", reg, testConfig(), newTestCollector())
	c.mu.Lock()
	c.state = StateConnecting
	c.addrs = []string{"10.0.0.1:5569"}
	c.mu.Unlock()

	now := time.Unix(0, 0)
	_, err := c.DialSucceeded(now)
	require.NoError(t, err)

	effects := c.Tick(now.Add(3 * time.Second))
	require.NotEmpty(t, effects)
	var sawFailed bool
	for _, e := range effects {
		if e.Kind == EffectConnectFailed {
			sawFailed = true
			assert.Equal(t, "connect_reply_timeout", e.Reason)
		}
	}
	assert.True(t, sawFailed)
	assert.Equal(t, StateDiscovery, c.State())
}

func TestConnectReplyOKMovesToConnected(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "", reg, testConfig(), newTestCollector())
	c.mu.Lock()
	c.state = StateConnecting
	c.addrs = []string{"10.0.0.1:5569"}
	c.mu.Unlock()

	now := time.Unix(0, 0)
	_, err := c.DialSucceeded(now)
	require.NoError(t, err)

	reply := &broker.ConnectReply{
		Status:      broker.ConnectStatusOK,
		E133Version: 1,
		BrokerUID:   rdm.UID{Manufacturer: 0xAAAA, Device: 1},
		ClientUID:   rdm.UID{Manufacturer: 0x1234, Device: 0x01},
	}
	payload, err := reply.Marshal()
	require.NoError(t, err)
	pdu := &broker.PDU{Vector: broker.VectorConnectReply, Payload: payload}

	effects, err := c.HandleFrame(pdu, now)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectConnected, effects[0].Kind)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, reply.BrokerUID, c.BrokerUID())
}

func TestConnectReplyRejectionLoopsBackToDiscovery(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "", reg, testConfig(), newTestCollector())
	c.mu.Lock()
	c.state = StateConnecting
	c.addrs = []string{"10.0.0.1:5569"}
	c.mu.Unlock()

	now := time.Unix(0, 0)
	_, err := c.DialSucceeded(now)
	require.NoError(t, err)

	reply := &broker.ConnectReply{Status: broker.ConnectStatusScopeMismatch}
	payload, err := reply.Marshal()
	require.NoError(t, err)
	pdu := &broker.PDU{Vector: broker.VectorConnectReply, Payload: payload}

	effects, err := c.HandleFrame(pdu, now)
	require.NoError(t, err)
	require.Len(t, effects, 2)
	assert.Equal(t, EffectCloseSocket, effects[0].Kind)
	assert.Equal(t, EffectConnectFailed, effects[1].Kind)
	assert.Equal(t, "scope_mismatch", effects[1].Reason)
	assert.Equal(t, StateDiscovery, c.State())
}

func TestRedirectPreservesScopeAndRestartsConnecting(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "", reg, testConfig(), newTestCollector())
	c.mu.Lock()
	c.state = StateConnecting
	c.addrs = []string{"10.0.0.1:5569"}
	c.mu.Unlock()

	redirect := &broker.RedirectV4{Addr: [4]byte{10, 0, 0, 9}, Port: 5569}
	payload, err := redirect.Marshal()
	require.NoError(t, err)
	pdu := &broker.PDU{Vector: broker.VectorRedirectV4, Payload: payload}

	effects, err := c.HandleFrame(pdu, time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, effects, 3)
	assert.Equal(t, EffectCloseSocket, effects[0].Kind)
	assert.Equal(t, EffectRedirected, effects[1].Kind)
	assert.Equal(t, EffectDial, effects[2].Kind)
	assert.Equal(t, "10.0.0.9:5569", effects[2].Address)
	assert.Equal(t, "default", c.Scope())
	assert.Equal(t, StateConnecting, c.State())
}

func TestHeartbeatTimeoutDemotesConnectedToDiscovery(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "", reg, testConfig(), newTestCollector())
	c.mu.Lock()
	c.state = StateConnected
	c.lastHeartbeatSeen = time.Unix(0, 0)
	c.mu.Unlock()

	effects := c.Tick(time.Unix(0, 0).Add(20 * time.Second))
	require.NotEmpty(t, effects)
	var sawDisconnect bool
	for _, e := range effects {
		if e.Kind == EffectDisconnected {
			sawDisconnect = true
			assert.Equal(t, "heartbeat_timeout", e.Reason)
		}
	}
	assert.True(t, sawDisconnect)
	assert.Equal(t, StateDiscovery, c.State())
}

func TestDisconnectFromConnectedEmitsCloseAndNotification(t *testing.T) {
	reg := discovery.NewRegistry()
	c := New("default", testIdentity(), "", reg, testConfig(), newTestCollector())
	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()

	effects := c.Disconnect("remove_scope", time.Unix(0, 0))
	require.Len(t, effects, 2)
	assert.Equal(t, EffectCloseSocket, effects[0].Kind)
	assert.Equal(t, EffectDisconnected, effects[1].Kind)
	assert.Equal(t, StateMarkedForDestruction, c.State())

	c.Destroy()
}
