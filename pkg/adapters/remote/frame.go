package remote

// FrameType discriminates websocket frames.
type FrameType string

const (
	// FrameStart is the first frame sent by a client.
	FrameStart FrameType = "start"
	// FrameLine carries one protocol line, in either direction.
	FrameLine FrameType = "line"
	// FrameClosed is sent by the hub before it drops a session.
	FrameClosed FrameType = "closed"
)

// Frame is the envelope of every websocket text message.
type Frame struct {
	Type   FrameType `json:"type"`
	Mode   string    `json:"mode,omitempty"`
	Image  string    `json:"image,omitempty"`
	Line   string    `json:"line,omitempty"`
	Reason string    `json:"reason,omitempty"`
}
