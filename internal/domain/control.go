package domain

import "gopkg.in/guregu/null.v4"

// Các DTO điều khiển thủ công từ operator.

type ModeChangeDTO struct {
	Mode string `json:"mode" binding:"required"`
}

type GateControlDTO struct {
	State string `json:"state" binding:"required,oneof=open closed"`
}

type SlotControlDTO struct {
	Occupied *bool `json:"occupied" binding:"required"`
}

// RemoteCommand là lệnh operator gửi qua hàng đợi SQS.
type RemoteCommand struct {
	Type      string `json:"type"` // "mode", "gate", "slot"
	Mode      string `json:"mode,omitempty"`
	Gate      string `json:"gate,omitempty"`
	SlotIndex *int   `json:"slot_index,omitempty"`
	Occupied  *bool  `json:"occupied,omitempty"`
	Actor     string `json:"actor,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ControlResponseDTO trả về sau mỗi lệnh điều khiển.
type ControlResponseDTO struct {
	RequestID string       `json:"request_id"`
	Command   string       `json:"command,omitempty"`
	Delivered bool         `json:"delivered"`
	State     ParkingState `json:"state"`
}

// Actor là người (hoặc hệ thống) thực hiện một thao tác được audit.
type Actor struct {
	UserID   null.Int
	Username string
}

// SystemActor đại diện cho các thao tác tự động.
var SystemActor = Actor{Username: "system"}

func (a Actor) IsZero() bool {
	return !a.UserID.Valid && a.Username == ""
}
