package grpcapi

import (
	"context"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/identity"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type addressKey struct{}

// AddressFromContext returns the caller address attached by the auth interceptors.
func AddressFromContext(ctx context.Context) (waveledger.Address, bool) {
	addr, ok := ctx.Value(addressKey{}).(waveledger.Address)
	return addr, ok
}

// authenticate attaches the caller address when a bearer token is present.
// A present but invalid token is rejected; a missing one leaves the call anonymous.
func authenticate(ctx context.Context, tokens *identity.TokenIssuer) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, nil
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ctx, nil
	}
	tokenStr, ok := identity.BearerToken(vals[0])
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authorization must be a Bearer token")
	}
	addr, err := tokens.VerifyAddress(tokenStr)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token: "+err.Error())
	}
	return context.WithValue(ctx, addressKey{}, addr), nil
}

// AuthUnaryInterceptor resolves bearer tokens on unary calls.
func AuthUnaryInterceptor(tokens *identity.TokenIssuer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, tokens)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// AuthStreamInterceptor resolves bearer tokens on streaming calls.
func AuthStreamInterceptor(tokens *identity.TokenIssuer) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), tokens)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

// LoggingInterceptor returns a gRPC unary server interceptor that logs each call.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}

// NewGRPCServer builds a grpc.Server with the wave service, auth and logging
// interceptors installed. Extra options are appended.
func NewGRPCServer(srv *Server, tokens *identity.TokenIssuer, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(LoggingInterceptor(logger), AuthUnaryInterceptor(tokens)),
		grpc.ChainStreamInterceptor(AuthStreamInterceptor(tokens)),
	}
	gs := grpc.NewServer(append(base, opts...)...)
	RegisterWaveServiceServer(gs, srv)
	return gs
}
