// Package api implements the relay's plain HTTP surface.
//
// New(hub, opts) returns an http.Handler that serves:
//
//	GET /                     banner naming the WebSocket endpoint, or the
//	                          static UI when Options.UIDir is set
//	GET /health               {"status","rooms","connections"}; 503 while draining
//	GET /api/v1/rooms         live rooms with member counts, sorted by id
//	GET /api/v1/rooms/{id}    one room; 404 if it has no members
//	GET /api/v1/rooms?id=<id> same, for ids the path cannot carry
//	GET /api/v1/snapshot      rooms plus hub counters and generated_at
//
// The /api/v1 routes go through Options.Guard when one is set; / and
// /health never do. JSON endpoints return 405 for non-GET methods.
//
// The static UI is served from a directory. Paths that do not name a file
// fall back to index.html so client-side routing works.
package api
