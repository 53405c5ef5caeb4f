package infrastructure

import "time"

// Transport is the part of *websocket.Conn a Connection needs. Only the
// owning Connection writes data frames to it; control frames may be sent
// concurrently.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}
