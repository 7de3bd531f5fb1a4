// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room socket.
const (
	BadSubprotocolError  = 3000 // Client connected with an unsupported subprotocol.
	InvalidRoomCodeError = 3003 // Room in the WS URL no longer exists.
	NotInRoomError       = 3004 // Caller left the room while connected.
)
