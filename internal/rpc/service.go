// Package rpc serves the moderation analyzer over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON fields as the HTTP
// API, so no generated stubs are needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tributeguard.v1.ModerationService"

// Full method names.
const (
	AnalyzeMethod       = "/" + ServiceName + "/Analyze"
	DefaultPolicyMethod = "/" + ServiceName + "/DefaultPolicy"
)

// RequestIDHeader is the metadata key carrying the request id.
const RequestIDHeader = "x-request-id"

// ModerationServer is the server API for ModerationService.
//
//	Analyze:       {text, policy?} -> {flaggedContent}
//	DefaultPolicy: {}              -> {policy, hash}
type ModerationServer interface {
	Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	DefaultPolicy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes ModerationService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ModerationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
		{MethodName: "DefaultPolicy", Handler: defaultPolicyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tributeguard/v1/moderation.proto",
}

// RegisterModerationServer registers srv on s.
func RegisterModerationServer(s grpc.ServiceRegistrar, srv ModerationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func analyzeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ModerationServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AnalyzeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ModerationServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func defaultPolicyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ModerationServer).DefaultPolicy(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DefaultPolicyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ModerationServer).DefaultPolicy(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
