package domain

import (
	"encoding/json"
	"time"

	"gopkg.in/guregu/null.v4"
)

// Các loại sự kiện audit.
const (
	EventModeChange       = "mode_change"
	EventSessionStart     = "session_start"
	EventSessionEnd       = "session_end"
	EventPaymentCompleted = "payment_completed"
	EventGateControl      = "gate_control"
	EventSlotControl      = "slot_control"
	EventPricingRule      = "pricing_rule"
)

// SystemLog là một bản ghi audit, Metadata lưu dạng JSONB.
type SystemLog struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	Message   string          `json:"message"`
	UserID    null.Int        `json:"user_id"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

type SystemLogFilterDTO struct {
	EventType string `form:"event_type"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=500"`
}
