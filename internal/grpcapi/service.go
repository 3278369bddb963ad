// Package grpcapi serves the wave ledger over gRPC.
//
// Messages are protobuf well-known types, so the service needs no generated
// code: requests and records travel as google.protobuf.Struct, counts as
// Int64Value. A caller authenticates with "authorization: Bearer <token>"
// metadata carrying a waver session token.
package grpcapi

import (
	"context"
	"errors"

	"github.com/jmerrifield20/WavePortal/internal/portal/service"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "waveportal.v1.WaveService"

// Full method names.
const (
	MethodWave              = "/" + ServiceName + "/Wave"
	MethodGetAllWaves       = "/" + ServiceName + "/GetAllWaves"
	MethodGetTotalWaves     = "/" + ServiceName + "/GetTotalWaves"
	MethodSetApproveMessage = "/" + ServiceName + "/SetApproveMessage"
	MethodSubscribe         = "/" + ServiceName + "/Subscribe"
)

// WaveServiceServer is the server API for waveportal.v1.WaveService.
type WaveServiceServer interface {
	Wave(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetAllWaves(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetTotalWaves(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	SetApproveMessage(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
}

// Server implements WaveServiceServer on top of the portal service.
type Server struct {
	svc    *service.PortalService
	buffer int
	logger *zap.Logger
}

// NewServer creates a Server. buffer is the per-stream event buffer (0 = broker default).
func NewServer(svc *service.PortalService, buffer int, logger *zap.Logger) *Server {
	return &Server{svc: svc, buffer: buffer, logger: logger}
}

// Wave appends a wave from the authenticated caller and returns the stored record.
func (s *Server) Wave(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	sender, ok := AddressFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "bearer token required")
	}
	rec, err := s.svc.Wave(ctx, sender, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return recordToStruct(rec)
}

// GetAllWaves returns every wave in append order.
func (s *Server) GetAllWaves(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	records, err := s.svc.Waves(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return recordsToList(records)
}

// GetTotalWaves returns the number of waves.
func (s *Server) GetTotalWaves(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	n, err := s.svc.TotalWaves(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(int64(n)), nil
}

// SetApproveMessage sets the approval flag. The request is {"index": n, "approved": bool}.
func (s *Server) SetApproveMessage(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	caller, ok := AddressFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "bearer token required")
	}
	index, approved, err := approvalFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.svc.SetApproval(ctx, caller, index, approved); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Subscribe streams a Struct for each wave accepted after the call starts.
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	sub := s.svc.Subscribe(s.buffer)
	if sub == nil {
		return status.Error(codes.Unavailable, "notifications disabled")
	}
	defer sub.Close()

	ctx := stream.Context()
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			msg, err := eventToStruct(ev)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// toStatus maps ledger errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, waveledger.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, waveledger.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, waveledger.ErrIndexOutOfRange):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, waveledger.ErrMessageTooLong):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// RegisterWaveServiceServer registers srv on s.
func RegisterWaveServiceServer(s grpc.ServiceRegistrar, srv WaveServiceServer) {
	s.RegisterService(&WaveService_ServiceDesc, srv)
}

// WaveService_ServiceDesc is the grpc.ServiceDesc for waveportal.v1.WaveService.
var WaveService_ServiceDesc = grpc.ServiceDesc{ //nolint:revive
	ServiceName: ServiceName,
	HandlerType: (*WaveServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Wave", Handler: waveHandler},
		{MethodName: "GetAllWaves", Handler: getAllWavesHandler},
		{MethodName: "GetTotalWaves", Handler: getTotalWavesHandler},
		{MethodName: "SetApproveMessage", Handler: setApproveMessageHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
}

func waveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WaveServiceServer).Wave(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodWave}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(WaveServiceServer).Wave(ctx, req.(*wrapperspb.StringValue))
	})
}

func getAllWavesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WaveServiceServer).GetAllWaves(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetAllWaves}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(WaveServiceServer).GetAllWaves(ctx, req.(*emptypb.Empty))
	})
}

func getTotalWavesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WaveServiceServer).GetTotalWaves(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetTotalWaves}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(WaveServiceServer).GetTotalWaves(ctx, req.(*emptypb.Empty))
	})
}

func setApproveMessageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WaveServiceServer).SetApproveMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodSetApproveMessage}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(WaveServiceServer).SetApproveMessage(ctx, req.(*structpb.Struct))
	})
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(WaveServiceServer).Subscribe(in, stream)
}
