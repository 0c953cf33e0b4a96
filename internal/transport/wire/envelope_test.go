package wire

import (
	"testing"
	"time"

	"github.com/hiveswarm/hive/pkg/grain"
)

func TestToWireFromWireRoundTrip(t *testing.T) {
	exp := time.Now().Add(time.Minute)
	msg := &grain.Message{
		ID:               "corr-1",
		Direction:        grain.Request,
		SendingGrain:     grain.GrainID{Kind: grain.KindClientAddressable, Type: "client", Key: "a"},
		TargetGrain:      grain.GrainID{Kind: grain.KindGrain, Type: "widget", Key: "b"},
		TargetSilo:       "silo1",
		TargetActivation: "act1",
		GenericGrainType: "IWidget",
		DebugContext:     "dbg",
		Body:             []byte("payload"),
		Headers:          map[string]string{"k": "v"},
		Expiration:       &exp,
		ResendCount:      1,
	}

	env := ToWire(msg)
	if env.Kind != "message" {
		t.Fatalf("expected kind=message, got %q", env.Kind)
	}

	back := FromWire(env)
	if back.ID != msg.ID || back.Direction != msg.Direction {
		t.Fatalf("expected id/direction preserved, got %+v", back)
	}
	if back.SendingGrain != msg.SendingGrain || back.TargetGrain != msg.TargetGrain {
		t.Fatalf("expected grain ids preserved, got sending=%+v target=%+v", back.SendingGrain, back.TargetGrain)
	}
	if string(back.Body) != "payload" {
		t.Fatalf("expected body preserved, got %q", back.Body)
	}
	if back.Headers["k"] != "v" {
		t.Fatalf("expected headers preserved, got %+v", back.Headers)
	}
	if back.Expiration == nil || back.Expiration.UnixNano() != exp.UnixNano() {
		t.Fatalf("expected expiration preserved, got %v", back.Expiration)
	}
	if back.ResendCount != 1 {
		t.Fatalf("expected resend count preserved, got %d", back.ResendCount)
	}
}

func TestToWireOmitsEmptyBody(t *testing.T) {
	msg := &grain.Message{ID: "c1", Direction: grain.OneWay}
	env := ToWire(msg)
	if env.Body != nil {
		t.Fatalf("expected nil Body for empty message body, got %+v", env.Body)
	}
}

func TestFromWireTreatsMalformedGrainIDAsZero(t *testing.T) {
	env := &Envelope{ID: "c1", SendingGrain: "not-a-valid-id", TargetGrain: "also/not/valid/extra"}
	msg := FromWire(env)
	if !msg.SendingGrain.IsZero() {
		t.Fatalf("expected zero sending grain for malformed id, got %+v", msg.SendingGrain)
	}
}

func TestCodecMarshalUnmarshalRoundTrip(t *testing.T) {
	c := Codec{}
	env := &Envelope{ID: "x", Direction: 0, Kind: "message"}

	data, err := c.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out Envelope
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.ID != "x" || out.Kind != "message" {
		t.Fatalf("expected round-tripped envelope, got %+v", out)
	}
	if c.Name() != CodecName {
		t.Fatalf("expected codec name %q, got %q", CodecName, c.Name())
	}
}
