package bus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/drafftink/relay/server/internal/relay"
)

var errNoRoom = errors.New("bus: envelope has no room")

// Envelope is the wire format on the Redis channel. Payload is base64 in
// JSON, so binary CRDT updates survive unchanged.
type Envelope struct {
	Origin  string `json:"origin"`
	Room    string `json:"room"`
	Binary  bool   `json:"binary,omitempty"`
	Payload []byte `json:"payload"`
}

func encode(origin, room string, msg relay.Message) ([]byte, error) {
	return json.Marshal(Envelope{
		Origin:  origin,
		Room:    room,
		Binary:  msg.Type == relay.BinaryMessage,
		Payload: msg.Data,
	})
}

func decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("bus: decode envelope: %w", err)
	}
	if env.Room == "" {
		return Envelope{}, errNoRoom
	}
	return env, nil
}

// Message converts the envelope into a message with no local sender.
func (e Envelope) Message() relay.Message {
	typ := relay.TextMessage
	if e.Binary {
		typ = relay.BinaryMessage
	}
	return relay.Message{From: relay.NoSender, Type: typ, Data: e.Payload}
}
