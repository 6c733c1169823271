package mode

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/state"
)

var ErrInvalidMode = errors.New("chế độ hoạt động không hợp lệ, chỉ chấp nhận auto hoặc manual")

// AuditSink ghi một sự kiện audit. Lỗi chỉ được log.
type AuditSink interface {
	Append(ctx context.Context, eventType, message string, actorID null.Int, metadata map[string]any) error
}

// Arbiter quyết định nguồn nào (thiết bị hay operator) được điều khiển phần cứng.
type Arbiter struct {
	store *state.Store
	audit AuditSink
	log   zerolog.Logger

	// mu giữ chế độ cố định trong suốt một lần đổi chế độ hoặc một lệnh thủ công,
	// kể cả lúc gửi lệnh xuống thiết bị.
	mu sync.Mutex
}

func NewArbiter(store *state.Store, audit AuditSink, log zerolog.Logger) *Arbiter {
	return &Arbiter{
		store: store,
		audit: audit,
		log:   log.With().Str("component", "mode_arbiter").Logger(),
	}
}

func (a *Arbiter) Mode() domain.OperationMode {
	return a.store.Mode()
}

// CanDeviceControl: chỉ ở AUTO thiết bị mới được đồng bộ cổng và slot.
func (a *Arbiter) CanDeviceControl() bool {
	return a.store.Mode() == domain.ModeAuto
}

// CanOperatorControl: chỉ ở MANUAL operator mới được điều khiển tay.
func (a *Arbiter) CanOperatorControl() bool {
	return a.store.Mode() == domain.ModeManual
}

// Hold chạy fn với snapshot hiện tại trong khi chế độ không thể đổi.
func (a *Arbiter) Hold(fn func(st domain.ParkingState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.store.Snapshot())
}

// WithOperatorAuthority chỉ chạy fn khi đang ở MANUAL, và giữ MANUAL cho tới khi fn xong.
// Trả về false (không gọi fn) nếu đang ở AUTO.
func (a *Arbiter) WithOperatorAuthority(fn func(st domain.ParkingState)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.store.Snapshot()
	if st.OperationMode != domain.ModeManual {
		return false
	}
	fn(st)
	return true
}

// SetMode đổi chế độ. Trả về changed=false nếu đã ở chế độ đó (không audit).
func (a *Arbiter) SetMode(ctx context.Context, raw string, actor domain.Actor) (bool, domain.ParkingState, error) {
	return a.SetModeThen(ctx, raw, actor, nil)
}

// SetModeThen giống SetMode, nhưng gọi apply (nếu có) ngay sau khi đổi chế độ,
// trước khi nhả khoá. apply không được gọi khi chế độ không đổi.
func (a *Arbiter) SetModeThen(ctx context.Context, raw string, actor domain.Actor, apply func(next domain.ParkingState)) (bool, domain.ParkingState, error) {
	target, ok := domain.ParseOperationMode(raw)
	if !ok {
		return false, domain.ParkingState{}, ErrInvalidMode
	}

	a.mu.Lock()
	current := a.store.Snapshot()
	if current.OperationMode == target {
		a.mu.Unlock()
		return false, current, nil
	}

	patch := state.Patch{
		Source:          state.SourceOperator,
		OperationMode:   null.StringFrom(string(target)),
		HasModeLockedBy: true,
	}
	if target == domain.ModeManual {
		patch.ModeLockedBy = null.StringFrom(actorName(actor))
	}
	prev, next := a.store.Update(patch)
	if apply != nil {
		apply(next)
	}
	a.mu.Unlock()

	a.log.Info().
		Str("old_mode", string(prev.OperationMode)).
		Str("new_mode", string(next.OperationMode)).
		Str("actor", actorName(actor)).
		Msg("Đã chuyển chế độ hoạt động")

	if a.audit != nil {
		msg := "Chuyển chế độ " + string(prev.OperationMode) + " -> " + string(next.OperationMode)
		meta := map[string]any{
			"old_mode": prev.OperationMode,
			"new_mode": next.OperationMode,
			"actor":    actorName(actor),
		}
		if err := a.audit.Append(ctx, domain.EventModeChange, msg, actor.UserID, meta); err != nil {
			a.log.Warn().Err(err).Msg("Không ghi được audit đổi chế độ")
		}
	}
	return true, next, nil
}

func actorName(a domain.Actor) string {
	if a.IsZero() {
		return domain.SystemActor.Username
	}
	return a.Username
}
