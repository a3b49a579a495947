package relay

// Observer receives lifecycle and traffic events from the hub, rooms and
// registry. Implementations must be safe for concurrent use and must not
// block: they are called on the relaying path.
type Observer interface {
	SessionOpened(room string)
	SessionClosed(room string, cause error)
	RoomCreated(room string)
	RoomDestroyed(room string)
	// MessageRelayed is called once per broadcast with the number of
	// sessions the message was queued for and its payload size.
	MessageRelayed(room string, recipients, size int)
	SlowConsumer(room string)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) SessionOpened(string)            {}
func (NopObserver) SessionClosed(string, error)     {}
func (NopObserver) RoomCreated(string)              {}
func (NopObserver) RoomDestroyed(string)            {}
func (NopObserver) MessageRelayed(string, int, int) {}
func (NopObserver) SlowConsumer(string)             {}
