package mockgateway

import (
	"encoding/json"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/hiveswarm/hive/internal/transport/wire"
)

// newConnID mints a per-stream connection id for log fields and route-table
// bookkeeping; uniqueness matters more than orderability here, unlike the
// ULID-based ids internal/identity mints for grain ids.
func newConnID() string {
	return uuid.NewString()
}

// encodeTypeCodeMap mirrors grpctransport.decodeTypeCodeMap's wire shape: a
// JSON object wrapped in a protobuf Any, so the reply travels the same way
// an ordinary message body does (internal/bodycodec's envelope convention).
func encodeTypeCodeMap(m map[string]int32) (*anypb.Any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return &anypb.Any{TypeUrl: "type.googleapis.com/hive.TypeCodeMap", Value: raw}, nil
}

// marshalTap renders an envelope for the websocket debug feed.
func marshalTap(env *wire.Envelope) ([]byte, error) {
	return json.Marshal(env)
}
