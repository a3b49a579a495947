// Package auth guards the relay's admin surfaces with an API key.
//
// NewGuard(mode, header, key) builds a Guard from the auth config section.
// The same Guard provides a gRPC unary and stream interceptor (for the
// health service) and an HTTP middleware (for the REST introspection API
// and /metrics). WebSocket joins are never guarded: room membership is
// trusted upstream.
//
// When mode != "apikey" or key == "", every request passes through. A
// missing or wrong key yields codes.Unauthenticated over gRPC and 401 over
// HTTP.
package auth
