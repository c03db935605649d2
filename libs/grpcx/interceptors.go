package grpcx

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/md-rashed-zaman/slotfinder/libs/httpx"
	"github.com/md-rashed-zaman/slotfinder/libs/runtime"
)

// RequestIDMetadataKey carries the request id over gRPC metadata. It is the lowercase form
// of the HTTP header so ids survive an HTTP to gRPC hop unchanged.
var RequestIDMetadataKey = strings.ToLower(httpx.RequestIDHeader)

// UnaryClientRequestIDInterceptor forwards the request id found in ctx, if any.
func UnaryClientRequestIDInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if id := httpx.RequestIDFromContext(ctx); id != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor adopts the caller's request id (minting one when absent), echoes
// it in the response header and hands the handler a logger scoped to the call.
func UnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := incomingRequestID(ctx)
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, id))

		callLogger := logger.With("request_id", id, "rpc", info.FullMethod)
		ctx = runtime.WithLogger(httpx.ContextWithRequestID(ctx, id), callLogger)

		start := time.Now()
		resp, err := handler(ctx, req)
		callLogger.Debug("rpc handled",
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}
