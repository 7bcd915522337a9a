package gateway

import (
	"encoding/json"

	"github.com/gorilla/websocket"
)

// decodeFrame validates one raw socket frame and parses it into an envelope.
// The transport is text-only: binary frames, unparsable JSON and frames
// without an eventName are all protocol violations that close the connection.
func decodeFrame(messageType int, data []byte) (*Envelope, *WireError) {
	if messageType != websocket.TextMessage {
		return nil, wireErr(ErrNameInvalid, "Not accepting binary.")
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, wireErr(ErrNameInvalid, "Invalid JSON received.")
	}
	if env.EventName == "" {
		return nil, wireErr(ErrNameInvalid, "No eventName received.")
	}
	return &env, nil
}
