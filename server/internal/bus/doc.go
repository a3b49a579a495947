// Package bus fans relay messages out across instances through Redis
// pub/sub.
//
// Every message a local client sends is published on
// "<channel_prefix><room>" as a JSON Envelope stamped with this instance's
// origin id. Each instance pattern-subscribes to "<channel_prefix>*" and
// delivers envelopes from other origins to every local member of the room
// (relay.NoSender as sender, so nobody is skipped). Envelopes from its own
// origin are dropped; those were already broadcast locally.
//
// Delivery across instances is best effort: Redis pub/sub does not buffer
// for subscribers that are down.
package bus
