package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for RDMnet operations, following OpenTelemetry
// semantic-convention naming style (dotted namespaces).
const (
	// ========================================================================
	// Component identity attributes
	// ========================================================================
	AttrCID   = "rdmnet.cid"
	AttrUID   = "rdmnet.uid"
	AttrScope = "rdmnet.scope"

	// ========================================================================
	// Connection attributes
	// ========================================================================
	AttrBrokerAddr   = "rdmnet.broker_address"
	AttrConnectionID = "rdmnet.connection_id"
	AttrConnState    = "rdmnet.connection_state"

	// ========================================================================
	// LLRP attributes
	// ========================================================================
	AttrLLRPRangeLo      = "llrp.range_lo"
	AttrLLRPRangeHi      = "llrp.range_hi"
	AttrLLRPCleanProbes  = "llrp.clean_probes"
	AttrLLRPTransNum     = "llrp.transaction_number"
	AttrLLRPTargetsFound = "llrp.targets_found"

	// ========================================================================
	// RDM / RPT message attributes
	// ========================================================================
	AttrRDMPID       = "rdm.pid"
	AttrRDMCmdClass  = "rdm.command_class"
	AttrRPTSeqNum    = "rpt.sequence_number"
	AttrMessageBytes = "rdmnet.message_bytes"
)

// Span names for operations. Format: <component>.<operation>.
const (
	SpanConnect          = "connection.connect"
	SpanHandshake        = "connection.handshake"
	SpanHeartbeat        = "connection.heartbeat"
	SpanReconnect        = "connection.reconnect"
	SpanDiscoveryBrowse  = "discovery.browse"
	SpanDiscoveryResolve = "discovery.resolve"
	SpanLLRPDiscovery    = "llrpmgr.discovery_cycle"
	SpanLLRPProbe        = "llrpmgr.probe_request"
	SpanLLRPReply        = "llrptarget.probe_reply"
	SpanSessionSend      = "session.send_rdm_command"
	SpanSessionReceive   = "session.receive_response"
	SpanSessionReassemble = "session.reassemble_overflow"
)

// CID returns an attribute for a component identifier.
func CID(cid string) attribute.KeyValue {
	return attribute.String(AttrCID, cid)
}

// UID returns an attribute for an RDM UID.
func UID(uid string) attribute.KeyValue {
	return attribute.String(AttrUID, uid)
}

// Scope returns an attribute for a scope string.
func Scope(scope string) attribute.KeyValue {
	return attribute.String(AttrScope, scope)
}

// BrokerAddr returns an attribute for a broker listen address.
func BrokerAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrBrokerAddr, addr)
}

// ConnectionID returns an attribute for an opaque connection identifier.
func ConnectionID(id string) attribute.KeyValue {
	return attribute.String(AttrConnectionID, id)
}

// ConnState returns an attribute for the connection state machine's current state.
func ConnState(state string) attribute.KeyValue {
	return attribute.String(AttrConnState, state)
}

// LLRPRange returns attributes for the current UID bisection range.
func LLRPRange(lo, hi uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrLLRPRangeLo, int64(lo)),
		attribute.Int64(AttrLLRPRangeHi, int64(hi)),
	}
}

// LLRPCleanProbes returns an attribute for the consecutive clean-probe counter.
func LLRPCleanProbes(n int) attribute.KeyValue {
	return attribute.Int(AttrLLRPCleanProbes, n)
}

// RDMPID returns an attribute for an RDM parameter ID.
func RDMPID(pid uint16) attribute.KeyValue {
	return attribute.Int64(AttrRDMPID, int64(pid))
}

// RPTSeqNum returns an attribute for an RPT sequence number.
func RPTSeqNum(seq uint32) attribute.KeyValue {
	return attribute.Int64(AttrRPTSeqNum, int64(seq))
}

// StartConnectionSpan starts a span for a connection-state-machine operation.
func StartConnectionSpan(ctx context.Context, spanName, scope string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Scope(scope)}, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartLLRPSpan starts a span for an LLRP manager/target operation.
func StartLLRPSpan(ctx context.Context, spanName string, cid string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{CID(cid)}, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartSessionSpan starts a span for a client session layer operation.
func StartSessionSpan(ctx context.Context, spanName, scope string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Scope(scope)}, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}
