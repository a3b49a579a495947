package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Guard checks a shared API key carried in a header.
type Guard struct {
	header string
	key    string
}

// NewGuard returns a Guard. A mode other than "apikey" or an empty key
// yields a Guard that allows everything.
//
// header is matched case-insensitively on HTTP; for gRPC it is lowercased,
// as metadata keys always are.
func NewGuard(mode, header, key string) *Guard {
	if mode != "apikey" || key == "" {
		return &Guard{}
	}
	return &Guard{header: strings.ToLower(header), key: key}
}

// Enabled reports whether requests are being checked.
func (g *Guard) Enabled() bool { return g.key != "" }

// Header returns the header the key is read from, or "" when disabled.
func (g *Guard) Header() string { return g.header }

func (g *Guard) valid(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(g.key)) == 1
}

func (g *Guard) checkContext(ctx context.Context) error {
	if !g.Enabled() {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(g.header)
	if len(vals) == 0 || !g.valid(vals[0]) {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}

// UnaryInterceptor enforces the key on every unary gRPC call.
func (g *Guard) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if err := g.checkContext(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor enforces the key when a gRPC stream is opened
// (health Watch).
func (g *Guard) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := g.checkContext(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// Middleware rejects HTTP requests without the key with 401.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	if !g.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.valid(r.Header.Get(g.header)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid api key"}` + "\n")) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r)
	})
}
