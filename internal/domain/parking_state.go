package domain

import (
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"
)

type OperationMode string

const (
	ModeAuto   OperationMode = "auto"
	ModeManual OperationMode = "manual"
)

// ParseOperationMode chấp nhận "auto"/"manual" (không phân biệt hoa thường).
func ParseOperationMode(s string) (OperationMode, bool) {
	switch OperationMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAuto:
		return ModeAuto, true
	case ModeManual:
		return ModeManual, true
	}
	return "", false
}

type GateState string

const (
	GateOpen   GateState = "open"
	GateClosed GateState = "closed"
)

func ParseGateState(s string) (GateState, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "opened":
		return GateOpen, true
	case "closed", "close":
		return GateClosed, true
	}
	return "", false
}

type LEDStatus string

const (
	LEDOff   LEDStatus = "off"
	LEDOn    LEDStatus = "on"
	LEDBlink LEDStatus = "blink"
)

// ParkingState là snapshot trạng thái bãi đỗ. Free luôn được tính lại từ Slots
// khi snapshot được tạo ra, không bao giờ lưu độc lập.
type ParkingState struct {
	Slots              []bool        `json:"slots"`
	Gate               GateState     `json:"gate"`
	Free               int           `json:"free"`
	TotalSlots         int           `json:"total_slots"`
	OperationMode      OperationMode `json:"operation_mode"`
	ModeLockedBy       null.String   `json:"mode_locked_by"`
	Errors             []string      `json:"errors"`
	ButtonPressed      bool          `json:"button_pressed"`
	LEDStatus          LEDStatus     `json:"led_status,omitempty"`
	DeviceReportedFree null.Int      `json:"device_reported_free"`
	LastUpdate         time.Time     `json:"last_update"`
}

func NewParkingState(totalSlots int, mode OperationMode, now time.Time) ParkingState {
	return ParkingState{
		Slots:         make([]bool, totalSlots),
		Gate:          GateClosed,
		Free:          totalSlots,
		TotalSlots:    totalSlots,
		OperationMode: mode,
		Errors:        []string{},
		LEDStatus:     LEDOff,
		LastUpdate:    now,
	}
}

func (s ParkingState) Occupied() int {
	n := 0
	for _, o := range s.Slots {
		if o {
			n++
		}
	}
	return n
}

// Clone trả về bản sao độc lập, kể cả các slice.
func (s ParkingState) Clone() ParkingState {
	c := s
	c.Slots = append([]bool(nil), s.Slots...)
	c.Errors = append([]string{}, s.Errors...)
	c.Free = s.TotalSlots - s.Occupied()
	return c
}

// SlotBits trả về slots dạng 0/1 như thiết bị gửi lên.
func (s ParkingState) SlotBits() []int {
	bits := make([]int, len(s.Slots))
	for i, o := range s.Slots {
		if o {
			bits[i] = 1
		}
	}
	return bits
}

// InboundFrame là một frame trạng thái đã được giải mã một phần từ thiết bị.
// Trường vắng mặt giữ nguyên trạng thái trước đó.
type InboundFrame struct {
	Slots         []bool
	HasSlots      bool
	Gate          null.String
	FreeSlots     null.Int
	TotalSlots    null.Int
	Errors        []string
	HasErrors     bool
	ButtonPressed null.Bool
	LEDStatus     null.String
	OperationMode null.String
	// ModeLockedBy hợp lệ + rỗng khi thiết bị gửi null tường minh.
	ModeLockedBy    null.String
	HasModeLockedBy bool
	ReceivedAt      time.Time
}

// StripMode bỏ các trường chế độ; chỉ Mode Arbiter được đổi chế độ.
func (f InboundFrame) StripMode() InboundFrame {
	f.OperationMode = null.String{}
	f.ModeLockedBy = null.String{}
	f.HasModeLockedBy = false
	return f
}

// DeviceLinkStatus mô tả tình trạng kết nối serial.
type DeviceLinkStatus struct {
	Connected      bool      `json:"connected"`
	Simulated      bool      `json:"simulated"`
	Port           string    `json:"port,omitempty"`
	LastReceivedAt null.Time `json:"last_received_at"`
}
