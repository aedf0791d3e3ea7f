package grpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/auth"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// helper to build server
func newTestServer(secret string) *GRPCServer {
	return NewGRPCServer("127.0.0.1:0", nopLogger{}, secret)
}

const protectedMethod = "/clouddrive.Files/List"

func TestInterceptor_Health_AllowsWithoutToken(t *testing.T) {
	s := newTestServer("secret")

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	handlerCalled := false

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
}

func TestInterceptor_MissingToken(t *testing.T) {
	s := newTestServer("secret")

	info := &grpc.UnaryServerInfo{FullMethod: protectedMethod}

	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called when token missing")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
	}
	if status.Convert(err).Message() != "missing token" {
		t.Fatalf("expected 'missing token', got %q", status.Convert(err).Message())
	}
}

func TestInterceptor_InvalidToken(t *testing.T) {
	secret := "secret"
	s := newTestServer(secret)

	scoped, err := auth.GenerateScopedToken("u1", models.TokenVideo, "c", "jti", []byte(secret), time.Hour)
	if err != nil {
		t.Fatalf("GenerateScopedToken error: %v", err)
	}

	for _, tok := range []string{"not-a-valid-jwt", scoped} {
		md := metadata.New(map[string]string{AccessTokenHeaderName: tok})
		ctx := metadata.NewIncomingContext(context.Background(), md)
		info := &grpc.UnaryServerInfo{FullMethod: protectedMethod}

		h := func(ctx context.Context, req interface{}) (interface{}, error) {
			t.Fatal("handler should not be called for invalid token")
			return nil, nil
		}

		_, err := s.accessTokenInterceptor(ctx, nil, info, h)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected Unauthenticated, got %v", status.Code(err))
		}
	}
}

func TestInterceptor_ValidToken_SetsPrincipal(t *testing.T) {
	secret := "super-secret"
	s := newTestServer(secret)

	want := models.Principal{ID: "user-123", Email: "u@example.com", EmailVerified: true}
	token, err := auth.GeneratePrincipalToken(want, []byte(secret), time.Hour)
	if err != nil {
		t.Fatalf("GeneratePrincipalToken error: %v", err)
	}

	md := metadata.New(map[string]string{AccessTokenHeaderName: token})
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: protectedMethod}

	var got models.Principal
	var ok bool
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		got, ok = PrincipalFromContext(ctx)
		return "ok", nil
	}

	if _, err := s.accessTokenInterceptor(ctx, nil, info, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || got != want {
		t.Fatalf("principal not propagated in context: got %+v want %+v", got, want)
	}
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: protectedMethod}
	boom := status.Error(codes.Internal, "boom")

	_, err := s.loggingInterceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}
