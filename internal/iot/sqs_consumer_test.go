package iot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"

	"github.com/xrl111/smart-eparking-pi4/internal/service"
)

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]types.Message
	receives int
	deleted  []string
	failOnce bool
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	f.receives++
	if f.failOnce {
		f.failOnce = false
		f.mu.Unlock()
		return nil, errors.New("network")
	}
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: batch}, nil
	}
	f.mu.Unlock()
	// long polling
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return &sqs.ReceiveMessageOutput{}, nil
	}
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakeHandler struct {
	mu     sync.Mutex
	bodies []string
}

func (h *fakeHandler) HandleRemoteCommand(_ context.Context, body string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bodies = append(h.bodies, body)
	switch body {
	case "bad":
		return fmt.Errorf("%w: bad", service.ErrCommandRejected)
	case "transient":
		return errors.New("db down")
	}
	return nil
}

func msg(id, body string) types.Message {
	m := types.Message{MessageId: aws.String(id), ReceiptHandle: aws.String("rh-" + id)}
	if body != "" {
		m.Body = aws.String(body)
	}
	return m
}

func TestConsumerDeletesHandledMessages(t *testing.T) {
	client := &fakeSQS{
		failOnce: true,
		batches: [][]types.Message{{
			msg("1", `{"type":"mode","mode":"manual"}`),
			msg("2", "bad"),
			msg("3", "transient"),
			msg("4", ""),
		}},
	}
	handler := &fakeHandler{}
	consumer := NewSQSCommandConsumer(client, "https://sqs/queue", handler, zerolog.Nop())
	consumer.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(client.Deleted()) < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	want := map[string]bool{"rh-1": true, "rh-2": true, "rh-4": true}
	deleted := client.Deleted()
	if len(deleted) != len(want) {
		t.Fatalf("deleted = %v", deleted)
	}
	for _, rh := range deleted {
		if !want[rh] {
			t.Errorf("unexpected delete %s", rh)
		}
	}
	if len(handler.bodies) != 3 {
		t.Errorf("handled = %v", handler.bodies)
	}
}
