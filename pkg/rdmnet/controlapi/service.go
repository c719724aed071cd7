// Package controlapi is an optional, read-only gRPC introspection
// service over a running rdmnet.Context: ListScopes,
// ListDiscoveredBrokers and ListLLRPTargets let an operator see what a
// process is doing without instrumenting its Callbacks (SPEC_FULL.md §4
// "Operational introspection"). It carries no RPC that can add a
// scope, send an RDM command, or otherwise drive the protocol state
// machine — that split belongs to §6's synchronous/asynchronous API,
// not to this service.
//
// No .proto file backs this service: its request/response types are
// plain Go structs carried over gRPC using a JSON codec (see codec.go)
// rather than protoc-generated bindings, so the service tree here is
// the only source of truth for its wire shape.
package controlapi

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/marmos91/rdmnetcore/internal/logger"
	"github.com/marmos91/rdmnetcore/pkg/rdmnet"
)

// serviceName identifies this service on the gRPC wire and in the
// health service's per-service status map.
const serviceName = "rdmnetcore.controlapi.Introspection"

// ListScopesRequest is empty: ListScopes always reports every scope of
// every Controller/Device the target Context owns.
type ListScopesRequest struct{}

// ListScopesResponse carries ListScopes's result.
type ListScopesResponse struct {
	Scopes []rdmnet.ScopeSummary `json:"scopes"`
}

// ListDiscoveredBrokersRequest is empty: ListDiscoveredBrokers always
// reports every broker known to the target Context's discovery
// registry, across every monitored scope.
type ListDiscoveredBrokersRequest struct{}

// ListDiscoveredBrokersResponse carries ListDiscoveredBrokers's result.
type ListDiscoveredBrokersResponse struct {
	Brokers []rdmnet.DiscoveredBrokerSummary `json:"brokers"`
}

// ListLLRPTargetsRequest is empty: ListLLRPTargets always reports every
// target found by every standalone LLRPManager's most recent discovery
// cycle.
type ListLLRPTargetsRequest struct{}

// ListLLRPTargetsResponse carries ListLLRPTargets's result.
type ListLLRPTargetsResponse struct {
	Targets []rdmnet.LLRPTargetSummary `json:"targets"`
}

// IntrospectionServer is the interface controlapi's ServiceDesc
// dispatches to; Server is its only implementation, but a test fake can
// satisfy it too.
type IntrospectionServer interface {
	ListScopes(context.Context, *ListScopesRequest) (*ListScopesResponse, error)
	ListDiscoveredBrokers(context.Context, *ListDiscoveredBrokersRequest) (*ListDiscoveredBrokersResponse, error)
	ListLLRPTargets(context.Context, *ListLLRPTargetsRequest) (*ListLLRPTargetsResponse, error)
}

// ContextView is the slice of rdmnet.Context's API Server needs.
// *rdmnet.Context satisfies it; tests supply a fake instead of paying
// for a real Context's multicast sockets.
type ContextView interface {
	ListScopes() []rdmnet.ScopeSummary
	ListDiscoveredBrokers() []rdmnet.DiscoveredBrokerSummary
	ListLLRPTargets() []rdmnet.LLRPTargetSummary
}

// Server implements IntrospectionServer by reading straight off a
// live ContextView; it holds no state of its own.
type Server struct {
	ctx ContextView
}

// NewServer wraps ctx for introspection.
func NewServer(ctx ContextView) *Server {
	return &Server{ctx: ctx}
}

func (s *Server) ListScopes(context.Context, *ListScopesRequest) (*ListScopesResponse, error) {
	return &ListScopesResponse{Scopes: s.ctx.ListScopes()}, nil
}

func (s *Server) ListDiscoveredBrokers(context.Context, *ListDiscoveredBrokersRequest) (*ListDiscoveredBrokersResponse, error) {
	return &ListDiscoveredBrokersResponse{Brokers: s.ctx.ListDiscoveredBrokers()}, nil
}

func (s *Server) ListLLRPTargets(context.Context, *ListLLRPTargetsRequest) (*ListLLRPTargetsResponse, error) {
	return &ListLLRPTargetsResponse{Targets: s.ctx.ListLLRPTargets()}, nil
}

// ServiceDesc is controlapi's hand-written equivalent of a
// protoc-gen-go-grpc ServiceDesc: one RPC per IntrospectionServer
// method, all unary, all dispatched through jsonCodec rather than
// protobuf.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*IntrospectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListScopes", Handler: listScopesHandler},
		{MethodName: "ListDiscoveredBrokers", Handler: listDiscoveredBrokersHandler},
		{MethodName: "ListLLRPTargets", Handler: listLLRPTargetsHandler},
	},
}

func listScopesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListScopesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionServer).ListScopes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ListScopes"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IntrospectionServer).ListScopes(ctx, req.(*ListScopesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listDiscoveredBrokersHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListDiscoveredBrokersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionServer).ListDiscoveredBrokers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ListDiscoveredBrokers"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IntrospectionServer).ListDiscoveredBrokers(ctx, req.(*ListDiscoveredBrokersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listLLRPTargetsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListLLRPTargetsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionServer).ListLLRPTargets(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/ListLLRPTargets"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IntrospectionServer).ListLLRPTargets(ctx, req.(*ListLLRPTargetsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Listener wraps a *grpc.Server bound to one TCP listener, for
// rdmnet.Context to own alongside its scheduler and LLRP sockets.
type Listener struct {
	grpcServer *grpc.Server
	lis        net.Listener
	log        *logger.Logger
}

// Listen starts a controlapi gRPC server on addr, serving ctx's live
// state. The caller must call Close when done.
func Listen(ctx ContextView, addr string, log *logger.Logger) (*Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("controlapi: listen %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&ServiceDesc, NewServer(ctx))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	l := &Listener{grpcServer: grpcServer, lis: lis, log: log}
	go l.serve()
	return l, nil
}

func (l *Listener) serve() {
	if err := l.grpcServer.Serve(l.lis); err != nil && l.log != nil {
		l.log.Warn("controlapi: serve exited", logger.KeyError, err.Error())
	}
}

// Close stops accepting new RPCs, waits for in-flight ones to finish,
// and closes the listener.
func (l *Listener) Close() {
	l.grpcServer.GracefulStop()
}
