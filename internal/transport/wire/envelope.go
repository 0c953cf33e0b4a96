// Package wire defines the over-the-wire shape exchanged between
// grpctransport and the gateway, and a grpc codec to carry it without
// protoc-generated stubs. No FlamegraphChunk-style .pb.go message exists for
// this domain, so the envelope travels as JSON over a gRPC bidirectional
// stream, with the message body itself wrapped in protobuf's well-known Any
// type (internal/bodycodec) to keep a real protobuf dependency meaningfully
// exercised.
package wire

import (
	"time"

	"google.golang.org/protobuf/types/known/anypb"

	"github.com/hiveswarm/hive/pkg/grain"
)

// Envelope is the wire twin of grain.Message: same fields, JSON tags, and a
// protobuf Any in place of a raw byte body.
type Envelope struct {
	ID                string            `json:"id"`
	Direction         uint8             `json:"direction"`
	SendingGrain      string            `json:"sending_grain"`
	SendingActivation string            `json:"sending_activation,omitempty"`
	TargetGrain       string            `json:"target_grain"`
	TargetSilo        string            `json:"target_silo,omitempty"`
	TargetActivation  string            `json:"target_activation,omitempty"`
	GenericGrainType  string            `json:"generic_grain_type,omitempty"`
	DebugContext      string            `json:"debug_context,omitempty"`
	Body              *anypb.Any        `json:"body,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	ExpirationUnixNano int64            `json:"expiration_unix_nano,omitempty"`
	ResendCount        int              `json:"resend_count,omitempty"`

	// Kind distinguishes out-of-band control envelopes ("register_observer",
	// "unregister_observer", "type_code_map_request") from ordinary
	// application messages ("message"). Observer controls name the grain in
	// TargetGrain; the type-code-map reply comes back as a "message" envelope
	// whose Body holds the map.
	Kind string `json:"kind,omitempty"`
}

// ToWire converts an application-category grain.Message into its Envelope
// form, ready to hand to the JSON grpc codec.
func ToWire(msg *grain.Message) *Envelope {
	env := &Envelope{
		Kind:              "message",
		ID:                string(msg.ID),
		Direction:         uint8(msg.Direction),
		SendingGrain:      msg.SendingGrain.String(),
		SendingActivation: string(msg.SendingActivation),
		TargetGrain:       msg.TargetGrain.String(),
		TargetSilo:        string(msg.TargetSilo),
		TargetActivation:  string(msg.TargetActivation),
		GenericGrainType:  msg.GenericGrainType,
		DebugContext:      msg.DebugContext,
		Headers:           msg.Headers,
		ResendCount:       msg.ResendCount,
	}
	if len(msg.Body) > 0 {
		env.Body = &anypb.Any{TypeUrl: "type.googleapis.com/hive.OpaqueBody", Value: msg.Body}
	}
	if msg.Expiration != nil {
		env.ExpirationUnixNano = msg.Expiration.UnixNano()
	}
	return env
}

// FromWire reverses ToWire. Malformed grain ids are treated as zero values;
// the caller (inbound pump) is expected to drop messages targeting an
// unrecognized grain id anyway.
func FromWire(env *Envelope) *grain.Message {
	msg := &grain.Message{
		ID:                grain.CorrelationID(env.ID),
		Direction:         grain.Direction(env.Direction),
		GenericGrainType:  env.GenericGrainType,
		DebugContext:      env.DebugContext,
		Headers:           env.Headers,
		ResendCount:       env.ResendCount,
		TargetSilo:        grain.SiloID(env.TargetSilo),
		TargetActivation:  grain.ActivationID(env.TargetActivation),
		SendingActivation: grain.ActivationID(env.SendingActivation),
	}
	if gid, err := grain.ParseGrainID(env.SendingGrain); err == nil {
		msg.SendingGrain = gid
	}
	if gid, err := grain.ParseGrainID(env.TargetGrain); err == nil {
		msg.TargetGrain = gid
	}
	if env.Body != nil {
		msg.Body = env.Body.GetValue()
	}
	if env.ExpirationUnixNano != 0 {
		t := time.Unix(0, env.ExpirationUnixNano)
		msg.Expiration = &t
	}
	return msg
}
