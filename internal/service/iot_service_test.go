package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/domain"
	"github.com/xrl111/smart-eparking-pi4/internal/mode"
)

type fakePublisher struct {
	mu     sync.Mutex
	inputs []*iotdataplane.PublishInput
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, in *iotdataplane.PublishInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return &iotdataplane.PublishOutput{}, f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func TestPublishStatus(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewIoTService(pub, "smart_parking/status", nil, zerolog.Nop())
	st := domain.NewParkingState(3, domain.ModeAuto, time.Now())

	if err := svc.PublishStatus(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	in := pub.inputs[0]
	if *in.Topic != "smart_parking/status" || in.Qos != 1 {
		t.Errorf("input = %+v", in)
	}
	var n domain.StatusNotification
	if err := json.Unmarshal(in.Payload, &n); err != nil {
		t.Fatal(err)
	}
	if n.Type != domain.NotificationStatus || n.State == nil || n.State.Free != 3 {
		t.Errorf("payload = %s", in.Payload)
	}

	pub.err = errors.New("throttled")
	if err := svc.PublishStatus(context.Background(), st); err == nil {
		t.Errorf("expected publish error")
	}
}

func TestObserveStatusRun(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewIoTService(pub, "t", nil, zerolog.Nop())
	for i := 0; i < 5; i++ {
		svc.ObserveStatus(domain.NewParkingState(3, domain.ModeAuto, time.Now()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done
	if n := pub.count(); n != 1 {
		t.Errorf("published %d snapshots, want only the latest", n)
	}
}

func TestHandleRemoteCommand(t *testing.T) {
	fx := newControllerFixture(domain.ModeAuto)
	svc := NewIoTService(nil, "", fx.ctrl, zerolog.Nop())
	ctx := context.Background()

	if err := svc.HandleRemoteCommand(ctx, `{"type":"gate","gate":"open"}`); !errors.Is(err, ErrCommandRejected) || !errors.Is(err, ErrNotPermitted) {
		t.Errorf("gate in auto err = %v", err)
	}
	if err := svc.HandleRemoteCommand(ctx, `{"type":"mode","mode":"manual","actor":"ops"}`); err != nil {
		t.Fatalf("mode err = %v", err)
	}
	if got := fx.store.Snapshot().ModeLockedBy.String; got != "ops" {
		t.Errorf("ModeLockedBy = %q", got)
	}
	if err := svc.HandleRemoteCommand(ctx, `{"type":"slot","slot_index":1,"occupied":true}`); err != nil {
		t.Fatalf("slot err = %v", err)
	}
	if !fx.store.Snapshot().Slots[1] {
		t.Errorf("slot 1 not set")
	}

	rejected := []string{
		`not json`,
		`{"type":"reboot"}`,
		`{"type":"slot","slot_index":1}`,
		`{"type":"mode","mode":"turbo"}`,
	}
	for _, body := range rejected {
		if err := svc.HandleRemoteCommand(ctx, body); !errors.Is(err, ErrCommandRejected) {
			t.Errorf("HandleRemoteCommand(%s) err = %v", body, err)
		}
	}
	if err := svc.HandleRemoteCommand(ctx, `{"type":"mode","mode":"turbo"}`); !errors.Is(err, mode.ErrInvalidMode) {
		t.Errorf("invalid mode err = %v", err)
	}
}
