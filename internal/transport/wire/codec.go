package wire

import "encoding/json"

// CodecName is passed to grpc.CallContentSubtype/grpc.ForceCodec so the
// stream marshals Envelope values as JSON instead of protobuf wire format.
const CodecName = "hivejson"

// Codec implements encoding.Codec (the three-method Marshal/Unmarshal/Name
// shape grpc-go has used since before generic stub codegen). It is
// registered globally in this package's init (register.go) and also handed
// explicitly via grpc.ForceCodec so callers that build a *grpc.ClientConn
// without the hive dial options still work.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (Codec) Name() string { return CodecName }
