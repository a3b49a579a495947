package relay

// SessionID identifies a session within the process. IDs are assigned from a
// monotonic counter starting at 1; NoSender (0) marks messages that did not
// originate from a local session and therefore exclude nobody.
type SessionID uint64

// NoSender is the From value of messages injected from outside the local
// sessions, e.g. by the cluster bus.
const NoSender SessionID = 0

// MessageType mirrors the frame type a payload arrived with so that it is
// forwarded unchanged.
type MessageType uint8

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one opaque update. Data must not be modified once the message
// has been handed to the relay: the same slice is shared by every recipient.
type Message struct {
	From SessionID
	Type MessageType
	Data []byte
}

// Conn is the transport primitive consumed by the hub.
//
// Receive blocks until the next inbound message arrives. It returns an error
// on peer close, protocol error or after Close; ErrConnClosed (or anything
// wrapping it) denotes an orderly close.
//
// Send writes one message. The hub guarantees that Send is never called
// concurrently for the same Conn.
//
// Close must be safe to call more than once and concurrently with Receive
// and Send, and must make any blocked Receive or Send return.
type Conn interface {
	Receive() (Message, error)
	Send(Message) error
	Close() error
}

// reasonCloser is implemented by transports able to tell the peer why the
// connection is being closed (e.g. a WebSocket close frame).
type reasonCloser interface {
	CloseWithError(reason error) error
}
