package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/server/auth"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const PrincipalKey ctxKey = "principal"

// AccessTokenHeaderName is the metadata key carrying the principal JWT.
const AccessTokenHeaderName = "access_token"

const healthServicePrefix = "/grpc.health.v1.Health/"

// accessTokenInterceptor requires a principal token on every method except
// the health service and stores the principal in the context.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := auth.ParseToken(accessToken, s.jwtSecret)
	if err != nil || claims.Kind != "" {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	ctx = context.WithValue(ctx, PrincipalKey, claims.Principal())

	return handler(ctx, req)
}

// PrincipalFromContext returns the principal stored by the interceptor.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(models.Principal)
	return p, ok
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	if code != codes.OK {
		s.logger.Warn(ctx, "rpc failed", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
	} else {
		s.logger.Debug(ctx, "rpc", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}
