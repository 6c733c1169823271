package domain

import "time"

type NotificationType string

const (
	NotificationStatus  NotificationType = "status"
	NotificationSession NotificationType = "session"
)

// StatusNotification được đẩy tới frontend qua WebSocket và mirror lên IoT.
type StatusNotification struct {
	Type      NotificationType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	State     *ParkingState    `json:"state,omitempty"`
	Session   *ParkingSession  `json:"session,omitempty"`
	Message   string           `json:"message,omitempty"`
}
