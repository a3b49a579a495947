// Package metrics counts relay activity and exposes it in the Prometheus
// text format.
//
// Collector implements relay.Observer; pass it to relay.NewRegistry and the
// hub, rooms and registry report into it. The bus reports through
// BusPublished, BusReceived and BusError. Handler(c, registry) serves
// GET /metrics, reading the room and session gauges from the registry at
// scrape time.
//
// Fetch and Summarize are the client side, used by `relay stats` to read a
// running instance.
package metrics
