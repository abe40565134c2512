// Package hub fans dashboard messages out to websocket clients.
package hub

// MessageType selects the websocket frame type.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame (JPEG frames).
	BinaryMessage
)

// Message is one broadcast payload.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
