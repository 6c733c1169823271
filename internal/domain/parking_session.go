package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type ParkingSessionStatus string

const (
	SessionActive    ParkingSessionStatus = "active"
	SessionCompleted ParkingSessionStatus = "completed"
	SessionCancelled ParkingSessionStatus = "cancelled" // admin hủy
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFree    PaymentStatus = "free"
)

type ParkingSession struct {
	ID              int                  `json:"id"`
	SlotID          int                  `json:"slot_id"`
	UserID          null.Int             `json:"user_id"`
	VehiclePlate    null.String          `json:"vehicle_plate"`
	EntryTime       time.Time            `json:"entry_time"`
	ExitTime        null.Time            `json:"exit_time"`
	DurationMinutes null.Int             `json:"duration_minutes"`
	Status          ParkingSessionStatus `json:"status"`
	Notes           string               `json:"notes,omitempty"`
	FeeAmount       int64                `json:"fee_amount"`
	PaymentStatus   PaymentStatus        `json:"payment_status"`
	PaymentTime     null.Time            `json:"payment_time"`
	PaymentMethod   null.String          `json:"payment_method"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// StartSessionDTO dùng cho API bắt đầu phiên thủ công.
type StartSessionDTO struct {
	SlotID       *int   `json:"slot_id" binding:"required,min=0"`
	VehiclePlate string `json:"vehicle_plate,omitempty"`
}

type EndSessionDTO struct {
	SlotID *int `json:"slot_id" binding:"required,min=0"`
}

type PaySessionDTO struct {
	PaymentMethod string `json:"payment_method,omitempty"`
}

type FeeQuoteDTO struct {
	SessionID       int   `json:"session_id"`
	DurationMinutes int64 `json:"duration_minutes"`
	Fee             int64 `json:"fee"`
}

// ParkingStatistics tổng hợp số liệu cho dashboard.
type ParkingStatistics struct {
	TotalSessions     int   `json:"total_sessions"`
	ActiveSessions    int   `json:"active_sessions"`
	CompletedSessions int   `json:"completed_sessions"`
	TodaySessions     int   `json:"today_sessions"`
	TotalRevenue      int64 `json:"total_revenue"`
	TodayRevenue      int64 `json:"today_revenue"`
}
