package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/WangQiHao-Charlie/thc6gw/internal/gateway"
)

// GRPCServiceName is the fully qualified name of the gateway service.
// Messages are protobuf well-known types, so no generated code is involved:
//
//	service Gateway {
//	  rpc Invoke(google.protobuf.Struct) returns (google.protobuf.StringValue);
//	  rpc Discover(google.protobuf.Empty) returns (google.protobuf.Struct);
//	}
const GRPCServiceName = "thc6.v1.Gateway"

const (
	invokeMethod   = "/" + GRPCServiceName + "/Invoke"
	discoverMethod = "/" + GRPCServiceName + "/Discover"
)

// GatewayServiceServer is the server API for thc6.v1.Gateway.
type GatewayServiceServer interface {
	Invoke(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error)
	Discover(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// GatewayServer adapts Gateway to the gRPC service.
type GatewayServer struct {
	gw *gateway.Gateway
}

func NewGatewayServer(gw *gateway.Gateway) *GatewayServer {
	return &GatewayServer{gw: gw}
}

// Invoke expects {"endpoint": string, "params": {string: string}, "args": [string]}.
func (s *GatewayServer) Invoke(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	fields := req.GetFields()
	endpoint := fields["endpoint"].GetStringValue()
	if endpoint == "" {
		return nil, status.Error(codes.InvalidArgument, "endpoint is required")
	}

	params := map[string]string{}
	for k, v := range fields["params"].GetStructValue().GetFields() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "params.%s must be a string", k)
		}
		params[k] = sv.StringValue
	}

	var args []string
	for i, v := range fields["args"].GetListValue().GetValues() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "args[%d] must be a string", i)
		}
		args = append(args, sv.StringValue)
	}

	out, err := s.gw.Invoke(ctx, endpoint, params, args)
	switch {
	case errors.Is(err, gateway.ErrUnknownEndpoint):
		return nil, status.Error(codes.NotFound, err.Error())
	case err != nil:
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return wrapperspb.String(out), nil
}

// Discover lists the endpoint table.
func (s *GatewayServer) Discover(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	eps := gateway.Endpoints()
	list := make([]any, 0, len(eps))
	for _, ep := range eps {
		params := make([]any, 0, len(ep.Params))
		for _, p := range ep.Params {
			params = append(params, p.Name)
		}
		list = append(list, map[string]any{
			"name":        ep.Name,
			"description": ep.Description,
			"params":      params,
			"variadic":    ep.Variadic,
		})
	}
	out, err := structpb.NewStruct(map[string]any{"endpoints": list})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*GatewayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
		{MethodName: "Discover", Handler: discoverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "thc6/v1/gateway.proto",
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServiceServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: invokeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GatewayServiceServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func discoverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServiceServer).Discover(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: discoverMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GatewayServiceServer).Discover(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterGatewayServer registers impl on s.
func RegisterGatewayServer(s grpc.ServiceRegistrar, impl GatewayServiceServer) {
	s.RegisterService(&gatewayServiceDesc, impl)
}

// NewGRPCServer builds a gRPC server exposing gw with panic recovery.
func NewGRPCServer(gw *gateway.Gateway, logger zerolog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(recoveryInterceptor(logger)))
	s := grpc.NewServer(opts...)
	RegisterGatewayServer(s, NewGatewayServer(gw))
	return s
}

func recoveryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Str("method", info.FullMethod).Interface("panic", r).Msg("grpc handler panicked")
				err = status.Error(codes.Internal, fmt.Sprintf("panic: %v", r))
			}
		}()
		return handler(ctx, req)
	}
}

// GatewayClient calls thc6.v1.Gateway.
type GatewayClient struct {
	cc grpc.ClientConnInterface
}

func NewGatewayClient(cc grpc.ClientConnInterface) *GatewayClient {
	return &GatewayClient{cc: cc}
}

// Invoke calls endpoint and returns the gateway result string.
func (c *GatewayClient) Invoke(ctx context.Context, endpoint string, params map[string]string, args []string, opts ...grpc.CallOption) (string, error) {
	p := make(map[string]any, len(params))
	for k, v := range params {
		p[k] = v
	}
	a := make([]any, 0, len(args))
	for _, v := range args {
		a = append(a, v)
	}
	in, err := structpb.NewStruct(map[string]any{"endpoint": endpoint, "params": p, "args": a})
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, invokeMethod, in, out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *GatewayClient) Discover(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, discoverMethod, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
