package grain

import "time"

// Direction classifies a Message's role on the wire.
type Direction uint8

const (
	Request Direction = iota
	Response
	OneWay
)

func (d Direction) String() string {
	switch d {
	case Request:
		return "request"
	case Response:
		return "response"
	case OneWay:
		return "oneway"
	default:
		return "unknown"
	}
}

// CorrelationID is an opaque, per-process-unique token minted for every
// outbound two-way request. It is globally unique for the lifetime of any
// outstanding request (internal/outbound mints it from internal/util's ULIDs).
type CorrelationID string

// Header keys used by the outbound path (§4.4) and TryResend policy.
const (
	HeaderTargetHistory    = "target-history"
	HeaderTargetActivation = "target-activation"
	HeaderTargetSilo       = "target-silo"
	HeaderDebugContext     = "debug-context"
	HeaderGenericGrainType = "generic-grain-type"
	HeaderTraceParent      = "traceparent"

	// HeaderResultKind and HeaderRejectionKind let a Response-direction
	// Message carry its ResultKind/RejectionKind discriminants over the
	// wire, since the wire envelope has no dedicated Response type
	// (see ToResponse/NewResponseMessage in response.go).
	HeaderResultKind    = "result-kind"
	HeaderRejectionKind = "rejection-kind"
)

// Message is the unit of exchange between the client and the gateway. Once
// handed to a Transport's SendMessage, ownership transfers to the transport
// and the caller must not mutate it further.
type Message struct {
	ID                CorrelationID
	Direction         Direction
	SendingGrain      GrainID
	SendingActivation ActivationID
	TargetGrain       GrainID
	TargetSilo        SiloID
	TargetActivation  ActivationID
	GenericGrainType  string
	DebugContext      string
	Body              []byte
	Headers           map[string]string
	Expiration        *time.Time
	ResendCount       int
}

// IsSystemTarget reports whether the message targets a system target grain,
// which is bound to a specific silo and never rebound on resend.
func (m *Message) IsSystemTarget() bool {
	return m.TargetGrain.Kind == KindSystemTarget
}

// IsExpired reports whether m carries an expiration in the past. Messages
// with no expiration are never considered expired.
func (m *Message) IsExpired() bool {
	return m.Expiration != nil && m.Expiration.Before(time.Now())
}

// IsExpirable reports whether m should be stamped with an expiration given
// cfg. Per spec.md §4.4 step 6, system targets are never stamped.
func (m *Message) IsExpirable(cfg ExpirationPolicy) bool {
	if m.Direction != Request || m.IsSystemTarget() {
		return false
	}
	return cfg.DropExpiredMessages
}

// MayResend reports whether m is still within its resend budget. The exact
// budget/backoff curve is delegated to cfg, per spec.md §9 Open Question (a).
func (m *Message) MayResend(cfg ResendPolicy) bool {
	if cfg.MaxResendCount <= 0 {
		return false
	}
	return m.ResendCount < cfg.MaxResendCount
}

// ExpirationPolicy is the subset of ClientConfig that IsExpirable consults.
type ExpirationPolicy struct {
	DropExpiredMessages bool
}

// ResendPolicy is the subset of ClientConfig that MayResend consults.
type ResendPolicy struct {
	MaxResendCount int
}

// Clone returns a shallow copy of m suitable for mutation by the outbound
// path's resend logic (headers map is copied so the original is untouched).
func (m *Message) Clone() *Message {
	cp := *m
	if m.Headers != nil {
		cp.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			cp.Headers[k] = v
		}
	}
	return &cp
}
