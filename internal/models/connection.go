package models

// ConnectionState is the lifecycle state of the realtime subscription. It is
// owned exclusively by the connection manager; everything else only reads it.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateErrored      ConnectionState = "errored"
)
