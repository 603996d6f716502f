package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

type sentMessage struct {
	phone   string
	message string
}

type stubSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	err   error
	calls chan struct{}
}

func newStubSender(err error) *stubSender {
	return &stubSender{err: err, calls: make(chan struct{}, 16)}
}

func (s *stubSender) Send(_ context.Context, phone, message string) (SendResult, error) {
	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{phone: phone, message: message})
	s.mu.Unlock()
	s.calls <- struct{}{}
	if s.err != nil {
		return SendResult{}, s.err
	}
	return SendResult{MessageID: "SM1"}, nil
}

func (s *stubSender) Sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func waitForCall(t *testing.T, sender *stubSender) {
	t.Helper()
	select {
	case <-sender.calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for send")
	}
}

func TestDispatcherSendsMessagePerKind(t *testing.T) {
	sender := newStubSender(nil)
	dispatcher := NewDispatcher(DispatcherConfig{Sender: sender})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	if !dispatcher.Enqueue(waitlist.NotificationRequest{
		Kind:      waitlist.NotificationJoinConfirmation,
		Slug:      "joes-diner",
		PartyName: "Ada",
		Phone:     "+15550001111",
		Position:  2,
	}) {
		t.Fatalf("expected request to be accepted")
	}
	waitForCall(t, sender)

	dispatcher.Enqueue(waitlist.NotificationRequest{
		Kind:  waitlist.NotificationTableReady,
		Slug:  "joes-diner",
		Phone: "+15550001111",
	})
	waitForCall(t, sender)

	sent := sender.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected two messages, got %d", len(sent))
	}
	if sent[0].message != JoinConfirmationMessage("Ada", "joes-diner", 2) {
		t.Fatalf("unexpected join message %q", sent[0].message)
	}
	if sent[1].message != TableReadyMessage("joes-diner") || sent[1].phone != "+15550001111" {
		t.Fatalf("unexpected ready message %#v", sent[1])
	}
}

func TestDispatcherLogsAndSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sender := newStubSender(errors.New("gateway down"))
	dispatcher := NewDispatcher(DispatcherConfig{Sender: sender, Logger: zap.New(core)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	dispatcher.Enqueue(waitlist.NotificationRequest{Kind: waitlist.NotificationTableReady, Slug: "joes-diner", Phone: "+1"})
	waitForCall(t, sender)

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("notification delivery failed").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected delivery failure to be logged")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(sender.Sent()) != 1 {
		t.Fatalf("expected a single attempt without retry, got %d", len(sender.Sent()))
	}
}

func TestDispatcherEnqueueDropsWhenFull(t *testing.T) {
	dispatcher := NewDispatcher(DispatcherConfig{Sender: newStubSender(nil), QueueSize: 1})
	request := waitlist.NotificationRequest{Kind: waitlist.NotificationTableReady, Slug: "joes-diner", Phone: "+1"}

	if !dispatcher.Enqueue(request) {
		t.Fatalf("expected first request to be accepted")
	}
	if dispatcher.Enqueue(request) {
		t.Fatalf("expected second request to be dropped")
	}
}
