package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/mode"
	"github.com/xrl111/smart-eparking-pi4/internal/state"
)

type controllerFixture struct {
	ctrl   *Controller
	store  *state.Store
	sender *fakeSender
	audit  *fakeAudit
	lc     *fakeLifecycle
}

func newControllerFixture(initial domain.OperationMode) *controllerFixture {
	store := state.NewStore(3, initial)
	audit := &fakeAudit{}
	sender := &fakeSender{connected: true}
	lc := &fakeLifecycle{}
	arb := mode.NewArbiter(store, audit, zerolog.Nop())
	ctrl := NewController(store, arb, sender, NewSessionDeriver(lc, zerolog.Nop()), audit, 2, zerolog.Nop())
	ctrl.newRequestID = func() string { return "req-1" }
	return &controllerFixture{ctrl: ctrl, store: store, sender: sender, audit: audit, lc: lc}
}

func frame(slots []bool, gate string) domain.InboundFrame {
	f := domain.InboundFrame{Slots: slots, HasSlots: slots != nil, ReceivedAt: time.Now()}
	if gate != "" {
		f.Gate = null.StringFrom(gate)
	}
	return f
}

func TestHandleFrameAutoMode(t *testing.T) {
	fx := newControllerFixture(domain.ModeAuto)
	var observed []domain.ParkingState
	fx.ctrl.AddObserver(func(st domain.ParkingState) { observed = append(observed, st) })

	f := frame([]bool{true, false, true}, "open")
	f.FreeSlots = null.IntFrom(1)
	if err := fx.ctrl.HandleFrame(f); err != nil {
		t.Fatal(err)
	}

	st := fx.store.Snapshot()
	if st.Gate != domain.GateOpen || st.Free != 1 {
		t.Errorf("state = %+v", st)
	}
	if !equalInts(fx.lc.starts, []int{0, 2}) {
		t.Errorf("starts = %v", fx.lc.starts)
	}
	cmds := fx.sender.Commands()
	if len(cmds) != 1 || cmds[0] != "LCD:UPDATE:Free: 1/3|Gate: open [AUTO]" {
		t.Errorf("commands = %v", cmds)
	}

	// frame lặp lại: không mở phiên mới, không gửi lại LCD
	if err := fx.ctrl.HandleFrame(f); err != nil {
		t.Fatal(err)
	}
	if len(fx.lc.starts) != 2 || len(fx.sender.Commands()) != 1 {
		t.Errorf("repeat frame: starts = %v commands = %v", fx.lc.starts, fx.sender.Commands())
	}
	if len(observed) != 2 || observed[0].Free != 1 {
		t.Errorf("observed = %+v", observed)
	}
}

func TestHandleFrameIgnoresDeviceMode(t *testing.T) {
	fx := newControllerFixture(domain.ModeAuto)
	f := frame(nil, "")
	f.OperationMode = null.StringFrom("manual")
	f.ModeLockedBy = null.StringFrom("device")
	f.HasModeLockedBy = true
	f.TotalSlots = null.IntFrom(8)
	_ = fx.ctrl.HandleFrame(f)

	st := fx.store.Snapshot()
	if st.OperationMode != domain.ModeAuto || st.ModeLockedBy.Valid || st.TotalSlots != 3 {
		t.Errorf("device changed mode fields: %+v", st)
	}
}

func TestManualControlRejectedInAutoMode(t *testing.T) {
	fx := newControllerFixture(domain.ModeAuto)
	ctx := context.Background()
	before := fx.store.Snapshot()

	if _, err := fx.ctrl.ManualSetGate(ctx, "open", domain.Actor{Username: "op"}); !errors.Is(err, ErrNotPermitted) {
		t.Errorf("ManualSetGate err = %v, want ErrNotPermitted", err)
	}
	if _, err := fx.ctrl.ManualSetSlot(ctx, 1, true, domain.Actor{Username: "op"}); !errors.Is(err, ErrNotPermitted) {
		t.Errorf("ManualSetSlot err = %v, want ErrNotPermitted", err)
	}

	after := fx.store.Snapshot()
	if after.Gate != before.Gate || after.Occupied() != before.Occupied() {
		t.Errorf("state changed: %+v", after)
	}
	if len(fx.sender.Commands()) != 0 || len(fx.audit.records) != 0 {
		t.Errorf("side effects: commands = %v audit = %v", fx.sender.Commands(), fx.audit.records)
	}
}

func TestManualModeFlow(t *testing.T) {
	fx := newControllerFixture(domain.ModeAuto)
	ctx := context.Background()
	actor := domain.Actor{UserID: null.IntFrom(5), Username: "alice"}

	resp, err := fx.ctrl.SetMode(ctx, "MANUAL", actor)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Command != "MODE:MANUAL" || !resp.Delivered || resp.RequestID != "req-1" {
		t.Errorf("SetMode resp = %+v", resp)
	}
	if resp.State.ModeLockedBy.String != "alice" {
		t.Errorf("ModeLockedBy = %v", resp.State.ModeLockedBy)
	}

	// thiết bị báo gate open ở MANUAL: bỏ qua, không cập nhật LCD
	_ = fx.ctrl.HandleFrame(frame([]bool{false, true, true}, "open"))
	st := fx.store.Snapshot()
	if st.Gate != domain.GateClosed || st.Occupied() != 0 {
		t.Errorf("manual mode accepted device control: %+v", st)
	}
	if cmds := fx.sender.Commands(); len(cmds) != 1 {
		t.Errorf("commands = %v", cmds)
	}

	resp, err = fx.ctrl.ManualSetGate(ctx, "open", actor)
	if err != nil || resp.Command != "BARRIER:OPEN" || resp.State.Gate != domain.GateOpen {
		t.Errorf("ManualSetGate = %+v, %v", resp, err)
	}

	resp, err = fx.ctrl.ManualSetSlot(ctx, 2, true, actor)
	if err != nil || resp.Command != "SLOT:3:1" || !resp.State.Slots[2] {
		t.Errorf("ManualSetSlot = %+v, %v", resp, err)
	}
	if !equalInts(fx.lc.starts, []int{2}) {
		t.Errorf("starts = %v", fx.lc.starts)
	}

	if _, err := fx.ctrl.ManualSetSlot(ctx, 0, true, actor); !errors.Is(err, ErrSensorSlot) {
		t.Errorf("slot 0 err = %v", err)
	}
	if _, err := fx.ctrl.ManualSetSlot(ctx, 3, true, actor); !errors.Is(err, ErrSlotOutOfRange) {
		t.Errorf("slot 3 err = %v", err)
	}
	if _, err := fx.ctrl.ManualSetGate(ctx, "ajar", actor); !errors.Is(err, ErrInvalidGateState) {
		t.Errorf("gate ajar err = %v", err)
	}

	if n := len(fx.audit.byType(domain.EventGateControl)); n != 1 {
		t.Errorf("gate_control audits = %d", n)
	}
	if n := len(fx.audit.byType(domain.EventSlotControl)); n != 1 {
		t.Errorf("slot_control audits = %d", n)
	}
	if n := len(fx.audit.byType(domain.EventModeChange)); n != 1 {
		t.Errorf("mode_change audits = %d", n)
	}
}

func TestSetModeNoopSendsNothing(t *testing.T) {
	fx := newControllerFixture(domain.ModeAuto)
	resp, err := fx.ctrl.SetMode(context.Background(), "auto", domain.Actor{Username: "op"})
	if err != nil || resp.Command != "" || resp.Delivered {
		t.Errorf("SetMode = %+v, %v", resp, err)
	}
	if len(fx.sender.Commands()) != 0 || len(fx.audit.records) != 0 {
		t.Errorf("no-op had side effects")
	}
	if _, err := fx.ctrl.SetMode(context.Background(), "turbo", domain.Actor{}); !errors.Is(err, mode.ErrInvalidMode) {
		t.Errorf("invalid mode err = %v", err)
	}
}

func TestHeartbeat(t *testing.T) {
	fx := newControllerFixture(domain.ModeManual)
	now := time.Now()
	fx.sender.last = now.Add(-time.Minute)

	fx.ctrl.heartbeat(now, time.Second)
	cmds := fx.sender.Commands()
	if len(cmds) != 2 || cmds[0] != "PING" || cmds[1] != "MODE:MANUAL" {
		t.Errorf("heartbeat commands = %v", cmds)
	}

	fx.sender.mu.Lock()
	fx.sender.connected = false
	fx.sender.mu.Unlock()
	fx.ctrl.heartbeat(now, time.Second)
	if len(fx.sender.Commands()) != 2 {
		t.Errorf("heartbeat sent while disconnected")
	}
}

func TestRunHeartbeatStops(t *testing.T) {
	fx := newControllerFixture(domain.ModeAuto)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fx.ctrl.RunHeartbeat(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunHeartbeat did not stop")
	}
	if len(fx.sender.Commands()) == 0 {
		t.Errorf("no heartbeat sent")
	}
}

func TestManualControlNeverAppliedInAutoMode(t *testing.T) {
	fx := newControllerFixture(domain.ModeManual)
	ctx := context.Background()
	actor := domain.Actor{Username: "op"}

	stop := make(chan struct{})
	toggled := make(chan struct{})
	go func() {
		defer close(toggled)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			target := "auto"
			if i%2 == 1 {
				target = "manual"
			}
			if _, err := fx.ctrl.SetMode(ctx, target, actor); err != nil {
				t.Errorf("SetMode(%s): %v", target, err)
				return
			}
		}
	}()

	gates := []string{"open", "closed"}
	for i := 0; i < 2000; i++ {
		resp, err := fx.ctrl.ManualSetGate(ctx, gates[i%2], actor)
		if err == nil && resp.State.OperationMode != domain.ModeManual {
			t.Fatalf("iteration %d: gate %q applied with mode=%s", i, gates[i%2], resp.State.OperationMode)
		}
		if err != nil && !errors.Is(err, ErrNotPermitted) {
			t.Fatalf("iteration %d: err = %v", i, err)
		}
		resp, err = fx.ctrl.ManualSetSlot(ctx, 1+i%2, i%3 == 0, actor)
		if err == nil && resp.State.OperationMode != domain.ModeManual {
			t.Fatalf("iteration %d: slot applied with mode=%s", i, resp.State.OperationMode)
		}
	}
	close(stop)
	<-toggled

	// trên dây: sau MODE:AUTO không có lệnh thủ công nào cho tới MODE:MANUAL kế tiếp
	manual := true
	for i, cmd := range fx.sender.Commands() {
		switch {
		case cmd == "MODE:AUTO":
			manual = false
		case cmd == "MODE:MANUAL":
			manual = true
		case strings.HasPrefix(cmd, "BARRIER:") || strings.HasPrefix(cmd, "SLOT:"):
			if !manual {
				t.Fatalf("command %d %q sent after MODE:AUTO", i, cmd)
			}
		}
	}
}

func TestHandleFrameLCDFollowsMergedMode(t *testing.T) {
	fx := newControllerFixture(domain.ModeAuto)
	ctx := context.Background()

	stop := make(chan struct{})
	toggled := make(chan struct{})
	go func() {
		defer close(toggled)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			target := "manual"
			if i%2 == 1 {
				target = "auto"
			}
			_, _, _ = fx.ctrl.arbiter.SetMode(ctx, target, domain.Actor{Username: "op"})
		}
	}()

	for i := 0; i < 2000; i++ {
		slots := []bool{i%2 == 0, i%3 == 0, false}
		_ = fx.ctrl.HandleFrame(frame(slots, ""))
	}
	close(stop)
	<-toggled

	for _, cmd := range fx.sender.Commands() {
		if strings.HasPrefix(cmd, "LCD:UPDATE:") && !strings.HasSuffix(cmd, "[AUTO]") {
			t.Fatalf("LCD synced from a frame merged in MANUAL: %q", cmd)
		}
	}
}
