// Package probe serves the standard gRPC health service
// (grpc.health.v1.Health) for orchestrators and load balancers.
//
// Both the overall status ("") and the "relay" service report SERVING
// while the hub accepts connections. Shutdown flips them to NOT_SERVING
// before the hub starts draining, so health checks fail first.
//
// Calls go through the auth.Guard interceptors when auth.mode is apikey.
package probe
