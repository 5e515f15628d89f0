// Package venue implements the wire protocol and WebSocket client for the
// brokerage venue. The client owns the socket: one reader goroutine per
// live session, writes serialized through Send, and incoming frames
// surfaced on the Messages channel. Connection liveness, request
// correlation, and reconnection live one layer up in the bridge package.
package venue
