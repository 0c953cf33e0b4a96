package outbound

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hiveswarm/hive/internal/callback"
	"github.com/hiveswarm/hive/internal/clientconfig"
	"github.com/hiveswarm/hive/internal/identity"
	"github.com/hiveswarm/hive/internal/serializer"
	"github.com/hiveswarm/hive/pkg/grain"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*grain.Message
}

func (r *recordingSender) SendMessage(ctx context.Context, msg *grain.Message) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) last() *grain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return nil
	}
	return r.sent[len(r.sent)-1]
}

func newTestPath(t *testing.T) (*Path, *recordingSender, *callback.Registry) {
	t.Helper()
	id, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	cfg := clientconfig.DefaultConfig()
	cfg.Gateways = []string{"gw:1"}
	cfg.ResponseTimeout = 50 * time.Millisecond
	cfg.MaxResendCount = 1

	cb := callback.New()
	sender := &recordingSender{}
	return New(id, cb, sender, cfg, nil), sender, cb
}

func TestInvokeStampsSenderAndTarget(t *testing.T) {
	p, sender, cb := newTestPath(t)
	target := grain.Reference{GrainID: grain.GrainID{Kind: grain.KindGrain, Type: "widget", Key: "w1"}}

	err := p.Invoke(context.Background(), target, []byte("hello"), grain.Options{}, "", "", func(*grain.Response, error) {})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	msg := sender.last()
	if msg == nil {
		t.Fatal("expected a message to be sent")
	}
	if msg.SendingGrain != p.identity.SelfGrainID {
		t.Fatalf("expected sending grain stamped with self id, got %+v", msg.SendingGrain)
	}
	if msg.TargetGrain != target.GrainID {
		t.Fatalf("expected target grain %+v, got %+v", target.GrainID, msg.TargetGrain)
	}
	if cb.Len() != 1 {
		t.Fatalf("expected a callback registered for a two-way request, got len %d", cb.Len())
	}
}

func TestInvokeOneWaySkipsCallbackRegistration(t *testing.T) {
	p, sender, cb := newTestPath(t)
	target := grain.Reference{GrainID: grain.GrainID{Kind: grain.KindGrain, Type: "widget", Key: "w2"}}

	err := p.Invoke(context.Background(), target, nil, grain.Options{OneWay: true}, "", "", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if cb.Len() != 0 {
		t.Fatalf("expected no callback registered for one-way, got len %d", cb.Len())
	}
	msg := sender.last()
	if msg.Direction != grain.OneWay {
		t.Fatalf("expected OneWay direction, got %v", msg.Direction)
	}
}

func TestTryResendStripsActivationForNonSystemTarget(t *testing.T) {
	p, _, _ := newTestPath(t)
	msg := &grain.Message{
		Direction:        grain.Request,
		TargetGrain:      grain.GrainID{Kind: grain.KindGrain, Type: "widget", Key: "w3"},
		TargetActivation: "act-1",
		TargetSilo:       "silo-1",
		Headers:          map[string]string{},
	}

	if !p.tryResend(msg) {
		t.Fatal("expected first resend to succeed")
	}
	if msg.ResendCount != 1 {
		t.Fatalf("expected resend count 1, got %d", msg.ResendCount)
	}
	if msg.TargetActivation != "" {
		t.Fatalf("expected target activation cleared for non-system target, got %q", msg.TargetActivation)
	}
	if msg.TargetSilo != "" {
		t.Fatalf("expected target silo cleared for non-system target, got %q", msg.TargetSilo)
	}
	if got := msg.Headers[grain.HeaderTargetHistory]; got != "act-1@silo-1" {
		t.Fatalf("expected target-history header to record the prior binding, got %q", got)
	}

	if p.tryResend(msg) {
		t.Fatal("expected second resend to be refused (max resend count 1)")
	}
}

func TestTryResendPreservesActivationForSystemTarget(t *testing.T) {
	p, _, _ := newTestPath(t)
	msg := &grain.Message{
		Direction:        grain.Request,
		TargetGrain:      grain.GrainID{Kind: grain.KindSystemTarget, Type: "catalog", Key: "sys1"},
		TargetActivation: "act-1",
		TargetSilo:       "silo-1",
		Headers:          map[string]string{},
	}

	if !p.tryResend(msg) {
		t.Fatal("expected resend to succeed")
	}
	if msg.TargetActivation != "act-1" {
		t.Fatalf("expected target activation preserved for system target, got %q", msg.TargetActivation)
	}
	if msg.TargetSilo != "silo-1" {
		t.Fatalf("expected target silo preserved for system target, got %q", msg.TargetSilo)
	}
}

type failingCopier struct{}

func (failingCopier) DeepCopy(any) (any, error) {
	return nil, errors.New("boom")
}

func TestSendValueResponseDeepCopiesPayload(t *testing.T) {
	id, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	cfg := clientconfig.DefaultConfig()
	sender := &recordingSender{}
	p := New(id, callback.New(), sender, cfg, serializer.GobCopier{})

	req := &grain.Message{ID: "corr-1", SendingGrain: grain.GrainID{Kind: grain.KindGrain, Type: "widget", Key: "w4"}}
	payload := []byte("result")
	if err := p.SendValueResponse(context.Background(), req, payload); err != nil {
		t.Fatalf("SendValueResponse: %v", err)
	}

	msg := sender.last()
	if msg.Headers[grain.HeaderResultKind] != "value" {
		t.Fatalf("expected a value response, got headers %+v", msg.Headers)
	}
	if string(msg.Body) != "result" {
		t.Fatalf("expected the deep-copied payload to round-trip, got %q", msg.Body)
	}
	if &msg.Body[0] == &payload[0] {
		t.Fatal("expected the response payload to be an independent copy")
	}
}

func TestSendValueResponseCopyFailureEmitsException(t *testing.T) {
	id, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	cfg := clientconfig.DefaultConfig()
	sender := &recordingSender{}
	p := New(id, callback.New(), sender, cfg, failingCopier{})

	req := &grain.Message{ID: "corr-2", SendingGrain: grain.GrainID{Kind: grain.KindGrain, Type: "widget", Key: "w5"}}
	if err := p.SendValueResponse(context.Background(), req, []byte("result")); err != nil {
		t.Fatalf("SendValueResponse: %v", err)
	}

	msg := sender.last()
	if msg.Headers[grain.HeaderResultKind] != "exception" {
		t.Fatalf("expected a copy failure to be reported as an exception response, got headers %+v", msg.Headers)
	}
	if !bytes.Contains(msg.Body, []byte("serialization failure")) {
		t.Fatalf("expected the exception payload to mention the serialization failure, got %q", msg.Body)
	}
}

func TestSendExceptionResponseCopyFailureIsReported(t *testing.T) {
	id, err := identity.New()
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	cfg := clientconfig.DefaultConfig()
	sender := &recordingSender{}
	p := New(id, callback.New(), sender, cfg, failingCopier{})

	req := &grain.Message{ID: "corr-3", SendingGrain: grain.GrainID{Kind: grain.KindGrain, Type: "widget", Key: "w6"}}
	if err := p.SendExceptionResponse(context.Background(), req, []byte("original failure")); err != nil {
		t.Fatalf("SendExceptionResponse: %v", err)
	}

	msg := sender.last()
	if msg.Headers[grain.HeaderResultKind] != "exception" {
		t.Fatalf("expected an exception response, got headers %+v", msg.Headers)
	}
	if !bytes.Contains(msg.Body, []byte("serialization failure")) {
		t.Fatalf("expected the copy failure to replace the original exception payload, got %q", msg.Body)
	}
}
