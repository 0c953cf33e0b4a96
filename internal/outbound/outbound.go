// Package outbound implements C4: stamping, addressing, expiring,
// registering, and handing two-way requests and one-ways to the transport
// (spec.md §4.4). It also emits response/exception messages for C6
// (spec.md §4.7), since both paths end the same way: a Message handed to
// the transport.
package outbound

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/hiveswarm/hive/internal/callback"
	"github.com/hiveswarm/hive/internal/clientconfig"
	"github.com/hiveswarm/hive/internal/hiveerr"
	"github.com/hiveswarm/hive/internal/identity"
	"github.com/hiveswarm/hive/internal/metrics"
	"github.com/hiveswarm/hive/internal/otelspan"
	"github.com/hiveswarm/hive/internal/serializer"
	"github.com/hiveswarm/hive/internal/util"
	"github.com/hiveswarm/hive/pkg/grain"
)

// Sender is the slice of transport.Transport the outbound path depends on.
type Sender interface {
	SendMessage(ctx context.Context, msg *grain.Message) error
}

// Path is C4. One Path is constructed per runtime instance, wired with the
// identity, callback registry, transport, and config it needs.
type Path struct {
	identity   *identity.Identity
	callbacks  *callback.Registry
	transport  Sender
	cfg        clientconfig.ClientConfig
	serializer serializer.DeepCopier
}

// New constructs a Path. copier performs the deep-copy step SendValueResponse
// and SendExceptionResponse apply before handing a payload to the transport
// (spec.md §4.7); a nil copier disables the copy (payloads are forwarded
// as-is).
func New(id *identity.Identity, callbacks *callback.Registry, transport Sender, cfg clientconfig.ClientConfig, copier serializer.DeepCopier) *Path {
	return &Path{identity: id, callbacks: callbacks, transport: transport, cfg: cfg, serializer: copier}
}

// Invoke sends request to target, registering a completion sink unless
// opts.OneWay is set (spec.md §4.4 steps 1-8).
func (p *Path) Invoke(ctx context.Context, target grain.Reference, body []byte, opts grain.Options, debugContext string, genericArguments string, sink callback.CompletionSink) error {
	direction := grain.Request
	if opts.OneWay {
		direction = grain.OneWay
	}

	msg := &grain.Message{
		Direction:    direction,
		SendingGrain: p.identity.SelfGrainID,
		TargetGrain:  target.GrainID,
		Body:         body,
		Headers:      map[string]string{},
	}

	if target.IsSystemTarget() {
		msg.TargetSilo = target.Silo
		msg.TargetActivation = systemActivationID(target.GrainID, target.Silo)
	}

	if genericArguments == "" {
		genericArguments = opts.GenericArguments
	}
	if genericArguments != "" {
		msg.GenericGrainType = genericArguments
	}
	if debugContext != "" {
		msg.DebugContext = debugContext
	}

	expirable, clockSkew, responseTimeout := p.cfg.ExpirationPolicy()
	if msg.IsExpirable(grain.ExpirationPolicy{DropExpiredMessages: expirable}) {
		exp := time.Now().Add(responseTimeout + clockSkew)
		msg.Expiration = &exp
	}

	if !opts.OneWay {
		raw, err := util.New()
		if err != nil {
			return fmt.Errorf("outbound: mint correlation id: %w", err)
		}
		msg.ID = grain.CorrelationID(raw)
		p.callbacks.Register(msg, responseTimeout, sink, p.tryResend)
	}

	_, span := otelspan.StartOutboundSpan(ctx, target.GrainID, msg)
	defer span.End()

	metrics.RequestsSentTotal.Inc()
	return p.transport.SendMessage(ctx, msg)
}

// tryResend is the retry hook handed to callback.Registry.Register. It
// implements spec.md §4.4's TryResend policy: bounded by the message's
// resend budget, and only rebinding non-system targets. The binding a
// resend must clear lives in msg.TargetActivation/msg.TargetSilo (Invoke
// only ever sets those struct fields, never the identically-named headers),
// so those are what get cleared here; HeaderTargetHistory records what the
// message was bound to before the gateway rebinds it.
func (p *Path) tryResend(msg *grain.Message) bool {
	if !msg.MayResend(grain.ResendPolicy{MaxResendCount: p.cfg.MaxResendCount}) {
		return false
	}

	msg.ResendCount++
	msg.Headers[grain.HeaderTargetHistory] = fmt.Sprintf("%s@%s", msg.TargetActivation, msg.TargetSilo)
	if !msg.IsSystemTarget() {
		msg.TargetActivation = ""
		msg.TargetSilo = ""
	}

	metrics.ResendsTotal.Inc()
	return p.transport.SendMessage(context.Background(), msg) == nil
}

// SendValueResponse implements objects.ResponseSender: it deep-copies
// payload, wraps the copy in a Response(Value), and hands it to the
// transport, addressed back to req's sender (spec.md §4.7). A copy failure
// is reported to the caller as an ExceptionResponse wrapping
// hiveerr.ErrSerializationFailure rather than silently dropped.
func (p *Path) SendValueResponse(ctx context.Context, req *grain.Message, payload []byte) error {
	copied, err := p.deepCopy(payload)
	if err != nil {
		return p.sendCopyFailure(ctx, req, err)
	}
	resp := &grain.Response{CorrelationID: req.ID, Kind: grain.ResultValue, Payload: copied}
	return p.transport.SendMessage(ctx, grain.NewResponseMessage(resp, req, p.identity.SelfGrainID))
}

// SendExceptionResponse implements objects.ResponseSender for the Exception
// variant. If the exception payload itself fails to deep-copy, the copy
// failure is sent in its place rather than forwarding a possibly-aliased
// buffer.
func (p *Path) SendExceptionResponse(ctx context.Context, req *grain.Message, payload []byte) error {
	copied, err := p.deepCopy(payload)
	if err != nil {
		return p.sendCopyFailure(ctx, req, err)
	}
	resp := &grain.Response{CorrelationID: req.ID, Kind: grain.ResultException, Payload: copied}
	return p.transport.SendMessage(ctx, grain.NewResponseMessage(resp, req, p.identity.SelfGrainID))
}

// deepCopy applies the serializer's deep-copy step to a response payload
// (spec.md §4.7). A nil serializer disables the copy, matching a Path built
// without one.
func (p *Path) deepCopy(payload []byte) ([]byte, error) {
	if p.serializer == nil || payload == nil {
		return payload, nil
	}
	copied, err := p.serializer.DeepCopy(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", hiveerr.ErrSerializationFailure, err)
	}
	out, ok := copied.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: deep copy returned %T, want []byte", hiveerr.ErrSerializationFailure, copied)
	}
	return out, nil
}

// sendCopyFailure emits an ExceptionResponse reporting cause in place of a
// response whose payload could not be deep-copied (spec.md §4.7).
func (p *Path) sendCopyFailure(ctx context.Context, req *grain.Message, cause error) error {
	resp := &grain.Response{CorrelationID: req.ID, Kind: grain.ResultException, Payload: []byte(cause.Error())}
	return p.transport.SendMessage(ctx, grain.NewResponseMessage(resp, req, p.identity.SelfGrainID))
}

// systemActivationID derives a stable activation id for a system target
// bound to silo, so repeated calls to the same system target land on the
// same synthetic activation without a round trip (spec.md §4.4 step 3).
func systemActivationID(id grain.GrainID, silo grain.SiloID) grain.ActivationID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id.String()))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(silo))
	return grain.ActivationID(fmt.Sprintf("sys-%x", h.Sum64()))
}
