// Package ws is the WebSocket transport for the relay.
//
// Handler upgrades requests and resolves the room a connection joins, in
// this order:
//
//	GET /ws?room=<id>
//	GET /ws/<id>
//	GET /ws, then a first text frame {"type":"join","room":"<id>"}
//
// The join frame is consumed and never relayed. A missing or malformed join
// frame closes the socket with 1008 (policy violation). Room identifiers
// longer than Options.MaxRoomLen are rejected with 400 before the upgrade.
//
// Each upgraded socket is wrapped in a relay.Conn and served by relay.Hub
// until either side closes. Text and binary frames are relayed unchanged
// and keep their frame type. The server pings every PingPeriod and drops
// connections that stay silent for PongWait.
//
// Close codes sent by the server:
//
//	1000  normal closure
//	1001  server shutting down
//	1008  bad handshake
//	1011  internal error
//	1013  slow consumer (outbound queue overflowed)
package ws
