package ws

import (
	"time"

	"focuschat/internal/models"
)

type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
	Presence    models.PresenceRecord
}
