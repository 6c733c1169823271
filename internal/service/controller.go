package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/device"
	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/metrics"
	"github.com/xrl111/smart-eparking-pi4/internal/mode"
	"github.com/xrl111/smart-eparking-pi4/internal/state"
)

const (
	frameTimeout    = 5 * time.Second
	staleHeartbeats = 3
)

// CommandSender là phía gửi lệnh của Device Link.
type CommandSender interface {
	SendCommand(cmd string, retries int) bool
	IsConnected() bool
	LastReceivedAt() (time.Time, bool)
}

// StatusObserver nhận snapshot sau mỗi lần trạng thái thay đổi.
type StatusObserver func(state domain.ParkingState)

// Controller nối Device Link, State Store, Mode Arbiter và bộ suy diễn phiên.
type Controller struct {
	store   *state.Store
	arbiter *mode.Arbiter
	link    CommandSender
	deriver *SessionDeriver
	audit   AuditSink
	retries int
	log     zerolog.Logger

	lcdMu   sync.Mutex
	lastLCD string

	obsMu     sync.RWMutex
	observers []StatusObserver

	newRequestID func() string
}

func NewController(
	store *state.Store,
	arbiter *mode.Arbiter,
	link CommandSender,
	deriver *SessionDeriver,
	audit AuditSink,
	retries int,
	log zerolog.Logger,
) *Controller {
	return &Controller{
		store:        store,
		arbiter:      arbiter,
		link:         link,
		deriver:      deriver,
		audit:        audit,
		retries:      retries,
		log:          log.With().Str("component", "controller").Logger(),
		newRequestID: uuid.NewString,
	}
}

func (c *Controller) AddObserver(fn StatusObserver) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) Snapshot() domain.ParkingState {
	return c.store.Snapshot()
}

func (c *Controller) Mode() domain.OperationMode {
	return c.arbiter.Mode()
}

// HandleFrame là listener đăng ký với Device Link.
func (c *Controller) HandleFrame(frame domain.InboundFrame) error {
	if frame.OperationMode.Valid || frame.HasModeLockedBy {
		c.log.Debug().Str("device_mode", frame.OperationMode.String).Msg("Bỏ qua chế độ do thiết bị báo lên")
	}
	frame = frame.StripMode()

	prev, next := c.store.Update(state.FromFrame(frame))
	if frame.TotalSlots.Valid && int(frame.TotalSlots.Int64) != next.TotalSlots {
		c.log.Warn().Int64("device_total", frame.TotalSlots.Int64).Int("configured_total", next.TotalSlots).
			Msg("Số slot thiết bị báo khác cấu hình, bỏ qua")
	}
	if next.OperationMode == domain.ModeAuto && next.DeviceReportedFree.Valid &&
		int(next.DeviceReportedFree.Int64) != next.Free {
		c.log.Warn().Int64("device_free", next.DeviceReportedFree.Int64).Int("derived_free", next.Free).
			Msg("free_slots của thiết bị không khớp với slots")
	}
	c.log.Debug().Ints("slots", next.SlotBits()).Str("gate", string(next.Gate)).Int("free", next.Free).
		Msg("Snapshot mới")

	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	c.deriver.Derive(ctx, prev.Slots, next.Slots)

	if next.OperationMode == domain.ModeAuto {
		c.syncLCD(next)
	}
	c.publish(next)
	return nil
}

// SetMode đổi chế độ qua Arbiter, rồi đồng bộ MODE:* xuống thiết bị.
// MODE:* được gửi trong lúc Arbiter còn giữ khoá nên không xen với lệnh thủ công.
func (c *Controller) SetMode(ctx context.Context, raw string, actor domain.Actor) (domain.ControlResponseDTO, error) {
	var resp domain.ControlResponseDTO
	changed, st, err := c.arbiter.SetModeThen(ctx, raw, actor, func(next domain.ParkingState) {
		resp.Command = device.ModeCommand(next.OperationMode)
		resp.Delivered = c.send(resp.Command)
	})
	if err != nil {
		return domain.ControlResponseDTO{}, err
	}
	resp.RequestID = c.newRequestID()
	resp.State = st
	if !changed {
		return resp, nil
	}
	if st.OperationMode == domain.ModeAuto {
		c.syncLCD(st)
	}
	c.publish(st)
	return resp, nil
}

// ManualSetGate chỉ được phép ở MANUAL.
func (c *Controller) ManualSetGate(ctx context.Context, raw string, actor domain.Actor) (domain.ControlResponseDTO, error) {
	gate, ok := parseManualGate(raw)
	if !ok {
		return domain.ControlResponseDTO{}, ErrInvalidGateState
	}

	var next domain.ParkingState
	resp := domain.ControlResponseDTO{Command: device.BarrierCommand(gate)}
	allowed := c.arbiter.WithOperatorAuthority(func(domain.ParkingState) {
		_, next = c.store.Update(state.Patch{Source: state.SourceOperator, Gate: null.StringFrom(string(gate))})
		resp.Delivered = c.send(resp.Command)
	})
	if !allowed {
		c.log.Warn().Str("actor", actor.Username).Msg("Không thể điều khiển cổng: đang ở AUTO mode")
		return domain.ControlResponseDTO{}, ErrNotPermitted
	}
	resp.RequestID = c.newRequestID()
	resp.State = next
	if !resp.Delivered {
		c.log.Warn().Str("command", resp.Command).Msg("Không thể gửi lệnh cổng xuống thiết bị")
	}
	c.log.Info().Str("gate", string(gate)).Str("actor", actor.Username).Msg("Điều khiển cổng thủ công")

	c.appendAudit(ctx, domain.EventGateControl, "Điều khiển cổng thủ công: "+string(gate), actor,
		map[string]any{"gate": gate, "request_id": resp.RequestID, "delivered": resp.Delivered})
	c.publish(next)
	return resp, nil
}

// ManualSetSlot đặt trạng thái slot index (0-based); slot 0 luôn do cảm biến quyết định.
func (c *Controller) ManualSetSlot(ctx context.Context, index int, occupied bool, actor domain.Actor) (domain.ControlResponseDTO, error) {
	total := c.store.Snapshot().TotalSlots
	if index < 0 || index >= total {
		return domain.ControlResponseDTO{}, fmt.Errorf("%w: %d (0..%d)", ErrSlotOutOfRange, index, total-1)
	}
	if index == 0 {
		return domain.ControlResponseDTO{}, ErrSensorSlot
	}
	cmd, err := device.SlotCommand(index, occupied)
	if err != nil {
		return domain.ControlResponseDTO{}, err
	}

	var prev, next domain.ParkingState
	resp := domain.ControlResponseDTO{Command: cmd}
	allowed := c.arbiter.WithOperatorAuthority(func(domain.ParkingState) {
		prev, next = c.store.Update(state.Patch{
			Source:        state.SourceOperator,
			SlotOverrides: map[int]bool{index: occupied},
		})
		resp.Delivered = c.send(cmd)
	})
	if !allowed {
		c.log.Warn().Str("actor", actor.Username).Int("slot", index).Msg("Không thể điều khiển slot: đang ở AUTO mode")
		return domain.ControlResponseDTO{}, ErrNotPermitted
	}
	resp.RequestID = c.newRequestID()
	resp.State = next
	c.log.Info().Int("slot", index).Bool("occupied", occupied).Str("actor", actor.Username).
		Msg("Đặt slot thủ công")

	c.appendAudit(ctx, domain.EventSlotControl, fmt.Sprintf("Đặt slot %d thủ công: %t", index, occupied), actor,
		map[string]any{"slot": index, "occupied": occupied, "request_id": resp.RequestID, "delivered": resp.Delivered})
	c.deriver.Derive(ctx, prev.Slots, next.Slots)
	c.publish(next)
	return resp, nil
}

// SyncMode gửi chế độ hiện tại xuống thiết bị (lúc khởi động và mỗi nhịp heartbeat).
func (c *Controller) SyncMode() bool {
	var ok bool
	c.arbiter.Hold(func(st domain.ParkingState) {
		ok = c.send(device.ModeCommand(st.OperationMode))
	})
	return ok
}

// RunHeartbeat gửi PING và đồng bộ lại chế độ theo chu kỳ cho tới khi ctx bị hủy.
func (c *Controller) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Dừng heartbeat")
			return
		case now := <-ticker.C:
			c.heartbeat(now, interval)
		}
	}
}

func (c *Controller) heartbeat(now time.Time, interval time.Duration) {
	if !c.link.IsConnected() {
		c.log.Debug().Msg("Heartbeat: thiết bị chưa kết nối")
		return
	}
	c.send(device.CmdPing)
	c.SyncMode()
	last, ok := c.link.LastReceivedAt()
	if !ok || now.Sub(last) > staleHeartbeats*interval {
		c.log.Warn().Time("last_received", last).Msg("Không nhận được dữ liệu từ thiết bị trong thời gian dài")
	}
}

// syncLCD chỉ gửi khi nội dung màn hình thay đổi.
func (c *Controller) syncLCD(st domain.ParkingState) {
	line1, line2 := lcdLines(st)
	text := line1 + "|" + line2
	c.lcdMu.Lock()
	if text == c.lastLCD {
		c.lcdMu.Unlock()
		return
	}
	c.lastLCD = text
	c.lcdMu.Unlock()
	c.send(device.LCDCommand(line1, line2))
}

func lcdLines(st domain.ParkingState) (string, string) {
	return fmt.Sprintf("Free: %d/%d", st.Free, st.TotalSlots),
		fmt.Sprintf("Gate: %s [%s]", st.Gate, strings.ToUpper(string(st.OperationMode)))
}

func (c *Controller) send(cmd string) bool {
	return c.link.SendCommand(cmd, c.retries)
}

func (c *Controller) publish(st domain.ParkingState) {
	metrics.RecordState(st.Free, st.Gate == domain.GateOpen, st.OperationMode == domain.ModeManual)

	c.obsMu.RLock()
	observers := append([]StatusObserver(nil), c.observers...)
	c.obsMu.RUnlock()
	for _, fn := range observers {
		fn(st.Clone())
	}
}

func (c *Controller) appendAudit(ctx context.Context, eventType, msg string, actor domain.Actor, meta map[string]any) {
	if c.audit == nil {
		return
	}
	meta["actor"] = actor.Username
	if err := c.audit.Append(ctx, eventType, msg, actor.UserID, meta); err != nil {
		c.log.Warn().Err(err).Str("event_type", eventType).Msg("Không ghi được audit")
	}
}

// parseManualGate chỉ nhận đúng "open" hoặc "closed".
func parseManualGate(raw string) (domain.GateState, bool) {
	switch domain.GateState(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.GateOpen:
		return domain.GateOpen, true
	case domain.GateClosed:
		return domain.GateClosed, true
	}
	return "", false
}
