package state

import (
	"sync"
	"time"

	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
)

// Source cho biết ai tạo ra bản vá.
type Source int

const (
	SourceDevice Source = iota
	// SourceOperator: bản vá đã được Mode Arbiter cho phép trước khi gọi Update.
	SourceOperator
)

// Patch là tập trường cần gộp vào trạng thái; trường vắng mặt giữ nguyên.
type Patch struct {
	Source Source

	Slots    []bool
	HasSlots bool
	// SlotOverrides: index -> occupied, chỉ dùng cho operator.
	SlotOverrides map[int]bool

	Gate          null.String
	FreeSlots     null.Int
	Errors        []string
	HasErrors     bool
	ButtonPressed null.Bool
	LEDStatus     null.String

	OperationMode   null.String
	ModeLockedBy    null.String
	HasModeLockedBy bool
}

// FromFrame chuyển frame thiết bị thành bản vá.
func FromFrame(f domain.InboundFrame) Patch {
	return Patch{
		Source:          SourceDevice,
		Slots:           f.Slots,
		HasSlots:        f.HasSlots,
		Gate:            f.Gate,
		FreeSlots:       f.FreeSlots,
		Errors:          f.Errors,
		HasErrors:       f.HasErrors,
		ButtonPressed:   f.ButtonPressed,
		LEDStatus:       f.LEDStatus,
		OperationMode:   f.OperationMode,
		ModeLockedBy:    f.ModeLockedBy,
		HasModeLockedBy: f.HasModeLockedBy,
	}
}

// Store giữ trạng thái bãi đỗ. Mọi thay đổi đi qua Update, mọi lần đọc nhận
// bản sao độc lập.
type Store struct {
	mu    sync.Mutex
	state domain.ParkingState
	now   func() time.Time
}

func NewStore(totalSlots int, mode domain.OperationMode) *Store {
	return &Store{
		state: domain.NewParkingState(totalSlots, mode, time.Now().UTC()),
		now:   time.Now,
	}
}

// Snapshot trả về bản sao trạng thái hiện tại.
func (s *Store) Snapshot() domain.ParkingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) Mode() domain.OperationMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.OperationMode
}

// Update gộp bản vá một cách nguyên tử, trả về trạng thái trước và sau.
func (s *Store) Update(p Patch) (prev, next domain.ParkingState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev = s.state.Clone()
	st := &s.state
	auto := st.OperationMode == domain.ModeAuto

	if p.HasSlots {
		incoming := normalizeSlots(p.Slots, st.TotalSlots)
		switch {
		case auto || p.Source == SourceOperator:
			st.Slots = incoming
		case len(st.Slots) > 0:
			// MANUAL: chỉ slot cảm biến (slot 0) lấy theo thiết bị
			st.Slots[0] = incoming[0]
		}
	}
	if p.Source == SourceOperator {
		for idx, occupied := range p.SlotOverrides {
			if idx >= 0 && idx < len(st.Slots) {
				st.Slots[idx] = occupied
			}
		}
	}

	if p.Gate.Valid && (auto || p.Source == SourceOperator) {
		if g, ok := domain.ParseGateState(p.Gate.String); ok {
			st.Gate = g
		}
	}

	if p.Source == SourceDevice {
		if auto && p.FreeSlots.Valid {
			st.DeviceReportedFree = p.FreeSlots
		} else if !auto {
			st.DeviceReportedFree = null.Int{}
		}
	}

	if p.HasErrors {
		st.Errors = append([]string{}, p.Errors...)
	}
	if p.ButtonPressed.Valid {
		st.ButtonPressed = p.ButtonPressed.Bool
	}
	if p.LEDStatus.Valid {
		st.LEDStatus = domain.LEDStatus(p.LEDStatus.String)
	}

	if p.OperationMode.Valid {
		if m, ok := domain.ParseOperationMode(p.OperationMode.String); ok {
			st.OperationMode = m
		}
	}
	if p.HasModeLockedBy {
		st.ModeLockedBy = p.ModeLockedBy
	}

	st.LastUpdate = s.now().UTC()
	next = st.Clone()
	return prev, next
}

// normalizeSlots cắt hoặc đệm 0 cho đủ total phần tử.
func normalizeSlots(in []bool, total int) []bool {
	out := make([]bool, total)
	copy(out, in)
	return out
}
