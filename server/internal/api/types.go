package api

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	// Status is "ok", or "draining" once shutdown has begun.
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

// RoomResponse is one room in GET /api/v1/rooms or GET /api/v1/rooms/{id}.
type RoomResponse struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Rooms       []RoomResponse `json:"rooms"`
	Sessions    int            `json:"sessions"`
	Active      int            `json:"active"`
	QueueSize   int            `json:"queue_size"`
	Draining    bool           `json:"draining"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
