package grain

// RejectionKind enumerates well-known rejection reasons carried by a
// Response in the Rejection variant.
type RejectionKind uint8

const (
	RejectionUnknown RejectionKind = iota
	// RejectionDuplicateRequest marks a response to a resent message that
	// already completed once; it must never reach the completion sink
	// (spec.md §4.2, R4).
	RejectionDuplicateRequest
	RejectionGatewayTooBusy
	RejectionUnavailable
)

// ResultKind discriminates the Response.Result variant.
type ResultKind uint8

const (
	ResultValue ResultKind = iota
	ResultException
	ResultRejection
)

// Response carries the outcome of a two-way request. Exactly one of Payload
// (for Value/Exception) or Rejection is meaningful, selected by Kind.
type Response struct {
	CorrelationID CorrelationID
	Kind          ResultKind
	Payload       []byte
	Rejection     RejectionKind
}

func (r *Response) IsDuplicateRejection() bool {
	return r.Kind == ResultRejection && r.Rejection == RejectionDuplicateRequest
}

// ToResponse reinterprets a Response-direction Message as a Response,
// reading back the discriminants stamped by NewResponseMessage. Callers
// must check m.Direction == Response first.
func (m *Message) ToResponse() *Response {
	resp := &Response{CorrelationID: m.ID, Payload: m.Body}
	switch m.Headers[HeaderResultKind] {
	case "exception":
		resp.Kind = ResultException
	case "rejection":
		resp.Kind = ResultRejection
		switch m.Headers[HeaderRejectionKind] {
		case "duplicate":
			resp.Rejection = RejectionDuplicateRequest
		case "busy":
			resp.Rejection = RejectionGatewayTooBusy
		case "unavailable":
			resp.Rejection = RejectionUnavailable
		default:
			resp.Rejection = RejectionUnknown
		}
	default:
		resp.Kind = ResultValue
	}
	return resp
}

// NewResponseMessage builds the Response-direction Message that carries
// resp back to req's sender, addressed per spec.md §4.7.
func NewResponseMessage(resp *Response, req *Message, selfGrain GrainID) *Message {
	msg := &Message{
		ID:               resp.CorrelationID,
		Direction:        Response,
		SendingGrain:     selfGrain,
		TargetGrain:      req.SendingGrain,
		TargetActivation: req.SendingActivation,
		Body:             resp.Payload,
		Headers:          map[string]string{},
	}
	switch resp.Kind {
	case ResultException:
		msg.Headers[HeaderResultKind] = "exception"
	case ResultRejection:
		msg.Headers[HeaderResultKind] = "rejection"
		switch resp.Rejection {
		case RejectionDuplicateRequest:
			msg.Headers[HeaderRejectionKind] = "duplicate"
		case RejectionGatewayTooBusy:
			msg.Headers[HeaderRejectionKind] = "busy"
		case RejectionUnavailable:
			msg.Headers[HeaderRejectionKind] = "unavailable"
		}
	default:
		msg.Headers[HeaderResultKind] = "value"
	}
	return msg
}
