package metrics

import (
	"errors"
	"sync/atomic"

	"github.com/drafftink/relay/server/internal/relay"
)

// Close causes used as the "cause" label of relay_sessions_closed_total.
const (
	CausePeer         = "peer"
	CauseSlowConsumer = "slow_consumer"
	CauseShutdown     = "shutdown"
	CauseError        = "error"
)

// Collector counts relay events. It implements relay.Observer and is safe
// for concurrent use; every method is a handful of atomic adds.
type Collector struct {
	sessionsOpened atomic.Uint64
	closedPeer     atomic.Uint64
	closedSlow     atomic.Uint64
	closedShutdown atomic.Uint64
	closedError    atomic.Uint64

	roomsCreated   atomic.Uint64
	roomsDestroyed atomic.Uint64

	messagesReceived  atomic.Uint64
	messagesDelivered atomic.Uint64
	bytesReceived     atomic.Uint64
	slowEvictions     atomic.Uint64

	busPublished atomic.Uint64
	busReceived  atomic.Uint64
	busErrors    atomic.Uint64
}

var _ relay.Observer = (*Collector)(nil)

// NewCollector returns a zeroed Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) SessionOpened(string) { c.sessionsOpened.Add(1) }

func (c *Collector) SessionClosed(_ string, cause error) {
	switch closeCause(cause) {
	case CausePeer:
		c.closedPeer.Add(1)
	case CauseSlowConsumer:
		c.closedSlow.Add(1)
	case CauseShutdown:
		c.closedShutdown.Add(1)
	default:
		c.closedError.Add(1)
	}
}

func (c *Collector) RoomCreated(string)   { c.roomsCreated.Add(1) }
func (c *Collector) RoomDestroyed(string) { c.roomsDestroyed.Add(1) }

func (c *Collector) MessageRelayed(_ string, recipients, size int) {
	c.messagesReceived.Add(1)
	c.messagesDelivered.Add(uint64(recipients))
	c.bytesReceived.Add(uint64(size))
}

func (c *Collector) SlowConsumer(string) { c.slowEvictions.Add(1) }

// BusPublished counts a message handed to the cluster bus.
func (c *Collector) BusPublished() { c.busPublished.Add(1) }

// BusReceived counts a message taken from the cluster bus for local delivery.
func (c *Collector) BusReceived() { c.busReceived.Add(1) }

// BusError counts a failed publish or a malformed bus payload.
func (c *Collector) BusError() { c.busErrors.Add(1) }

func closeCause(err error) string {
	switch {
	case err == nil:
		return CausePeer
	case errors.Is(err, relay.ErrSlowConsumer):
		return CauseSlowConsumer
	case errors.Is(err, relay.ErrShuttingDown):
		return CauseShutdown
	default:
		return CauseError
	}
}
