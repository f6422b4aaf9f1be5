package eventbus

// Event types published on the bus. The scheduling core emits only
// TypeMessageSent and TypeTaskFailed; the rest belong to the delivery
// channel (connection lifecycle) and the logging notify sink.
const (
	TypeMessageSent  = "message_sent"
	TypeTaskFailed   = "task_failed"
	TypeReady        = "ready"
	TypeDisconnected = "disconnected"
	TypeQRCode       = "qr_code"
	TypeLog          = "log"
)

// MessageSent is the payload for TypeMessageSent.
type MessageSent struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
}

// TaskFailed is the payload for TypeTaskFailed. Emitted when a delivery
// attempt fails at fire time; the task is discarded without retry.
type TaskFailed struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Error       string `json:"error"`
}

// Ready is the payload for TypeReady.
type Ready struct {
	Ready bool `json:"ready"`
}

// Disconnected is the payload for TypeDisconnected.
type Disconnected struct {
	Reason string `json:"reason"`
}

// QRCode is the payload for TypeQRCode, used by transports that pair
// through a scannable code. The Telegram transport never emits it.
type QRCode struct {
	Payload string `json:"payload"`
}

// LogNotice is the payload for TypeLog, forwarded by the logging sink.
type LogNotice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}
