package room

import "encoding/json"

// Frame type discriminators for server-originated messages.
const (
	frameTypeConnected = "connected"
	frameTypePing      = "ping"
	frameTypePong      = "pong"
)

const malformedFrameError = "Invalid message format"

func connectedFrame(sessionID string, timestampMillis int64) []byte {
	frame, _ := json.Marshal(map[string]any{
		"type":      frameTypeConnected,
		"sessionId": sessionID,
		"timestamp": timestampMillis,
	})
	return frame
}

func pongFrame(timestampMillis int64) []byte {
	frame, _ := json.Marshal(map[string]any{
		"type":      frameTypePong,
		"timestamp": timestampMillis,
	})
	return frame
}

func errorFrame(message string) []byte {
	frame, _ := json.Marshal(map[string]any{
		"error": message,
	})
	return frame
}
