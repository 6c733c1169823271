package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

// ErrMalformedLine: dòng không phải JSON object.
var ErrMalformedLine = errors.New("dòng không phải JSON object")

const (
	CmdPing = "PING"
)

// ParseFrame giải mã một dòng JSON thành InboundFrame. Từng trường được đọc
// riêng: trường sai kiểu bị bỏ qua, không làm hỏng cả frame.
func ParseFrame(line []byte, receivedAt time.Time) (domain.InboundFrame, error) {
	frame := domain.InboundFrame{ReceivedAt: receivedAt}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return frame, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	if raw == nil {
		return frame, ErrMalformedLine
	}

	if v, ok := raw["slots"]; ok {
		var items []any
		if json.Unmarshal(v, &items) == nil && len(items) > 0 {
			frame.Slots = make([]bool, len(items))
			for i, item := range items {
				frame.Slots[i] = truthy(item)
			}
			frame.HasSlots = true
		}
	}

	gate := decodeString(raw["gate"])
	if !gate.Valid {
		gate = decodeString(raw["barrier"])
	}
	if gate.Valid {
		if g, ok := domain.ParseGateState(gate.String); ok {
			frame.Gate = null.StringFrom(string(g))
		}
	}

	frame.FreeSlots = decodeInt(raw["free_slots"])
	frame.TotalSlots = decodeInt(raw["total_slots"])

	if v, ok := raw["errors"]; ok {
		var items []any
		if json.Unmarshal(v, &items) == nil {
			frame.Errors = make([]string, 0, len(items))
			for _, item := range items {
				if s, ok := item.(string); ok {
					frame.Errors = append(frame.Errors, s)
					continue
				}
				b, _ := json.Marshal(item)
				frame.Errors = append(frame.Errors, string(b))
			}
			frame.HasErrors = true
		}
	}

	if v, ok := raw["button_pressed"]; ok {
		var item any
		if json.Unmarshal(v, &item) == nil {
			frame.ButtonPressed = null.BoolFrom(truthy(item))
		}
	}

	if led := decodeString(raw["led_status"]); led.Valid {
		frame.LEDStatus = null.StringFrom(strings.ToLower(strings.TrimSpace(led.String)))
	}
	frame.OperationMode = decodeString(raw["operation_mode"])

	if v, ok := raw["mode_locked_by"]; ok {
		if string(v) == "null" {
			frame.HasModeLockedBy = true
		} else if s := decodeString(v); s.Valid {
			frame.ModeLockedBy = s
			frame.HasModeLockedBy = true
		}
	}
	return frame, nil
}

func decodeString(v json.RawMessage) null.String {
	if v == nil {
		return null.String{}
	}
	var s string
	if json.Unmarshal(v, &s) != nil {
		return null.String{}
	}
	return null.StringFrom(s)
}

func decodeInt(v json.RawMessage) null.Int {
	if v == nil {
		return null.Int{}
	}
	var f float64
	if json.Unmarshal(v, &f) != nil || f != math.Trunc(f) {
		return null.Int{}
	}
	return null.IntFrom(int64(f))
}

// truthy theo quy ước của firmware: 0, false, "", null, [] và {} là rỗng.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func ModeCommand(mode domain.OperationMode) string {
	return "MODE:" + strings.ToUpper(string(mode))
}

func BarrierCommand(gate domain.GateState) string {
	if gate == domain.GateOpen {
		return "BARRIER:OPEN"
	}
	return "BARRIER:CLOSE"
}

// SlotCommand nhận index 0-based, gửi số thứ tự 1-based. Slot 0 là slot cảm
// biến nên không có lệnh.
func SlotCommand(index int, occupied bool) (string, error) {
	if index < 1 {
		return "", fmt.Errorf("slot %d không điều khiển được bằng lệnh", index)
	}
	bit := 0
	if occupied {
		bit = 1
	}
	return fmt.Sprintf("SLOT:%d:%d", index+1, bit), nil
}

var lcdReplacer = strings.NewReplacer("|", "/", "\n", " ", "\r", " ")

func LCDCommand(line1, line2 string) string {
	return "LCD:UPDATE:" + lcdReplacer.Replace(line1) + "|" + lcdReplacer.Replace(line2)
}

// CommandKind trả về phần đầu của lệnh, dùng làm nhãn metrics.
func CommandKind(cmd string) string {
	parts := strings.SplitN(cmd, ":", 3)
	if len(parts) >= 2 && parts[0] == "LCD" {
		return "LCD:" + parts[1]
	}
	return parts[0]
}
