// Package relay implements the room/session broadcast hub at the centre of
// the relay server.
//
// Components, leaves first:
//   - Conn: a duplex channel to one client (Receive, Send, Close).
//     The ws package adapts gorilla/websocket connections to it.
//   - Session: one Conn plus a SessionID, its RoomID and a bounded
//     outbound queue drained by a dedicated send goroutine. Only that
//     goroutine writes to the Conn.
//   - Room: a named set of sessions. Broadcast(from, msg) queues msg on
//     every member except from and never waits for delivery.
//   - Registry: RoomID → Room. Rooms are created on first join and removed
//     in the same critical section that removes their last member.
//   - Hub: Serve(ctx, roomID, conn) drives one connection through
//     Connecting → Joined → Relaying → Closing → Closed.
//
// Payloads are opaque: the relay never parses, merges or stores them.
//
// Backpressure: every session queue is bounded. A recipient whose queue is
// full is evicted (ErrSlowConsumer) and its connection closed; the
// broadcaster and the other members carry on.
package relay
