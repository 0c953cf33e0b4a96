// Package bodycodec wraps an opaque message body for transmission,
// adapting the format-selection idiom of internal/agent/encoder to the
// client runtime's needs. Bodies are carried as google.golang.org/protobuf's
// well-known Any type so a body's origin type can travel with it without
// the transport needing to know concrete message schemas (spec.md §6
// Serializer, consumed only at the edge).
package bodycodec

import (
	"fmt"

	"google.golang.org/protobuf/types/known/anypb"
)

// DefaultTypeURL is stamped on bodies whose caller did not supply a more
// specific type, matching how the rest of the invocation stack treats
// payloads as pre-serialized opaque bytes.
const DefaultTypeURL = "type.googleapis.com/hive.OpaqueBody"

// Wrap packages raw serialized bytes into an Any envelope. typeURL may be
// empty, in which case DefaultTypeURL is used.
func Wrap(typeURL string, raw []byte) *anypb.Any {
	if typeURL == "" {
		typeURL = DefaultTypeURL
	}
	return &anypb.Any{TypeUrl: typeURL, Value: raw}
}

// Unwrap extracts the raw bytes carried by env. A nil env yields a nil
// slice, matching the "empty body" case for one-way acks.
func Unwrap(env *anypb.Any) []byte {
	if env == nil {
		return nil
	}
	return env.GetValue()
}

// TypeOf returns env's type URL, or "" if env is nil.
func TypeOf(env *anypb.Any) string {
	if env == nil {
		return ""
	}
	return env.GetTypeUrl()
}

// Validate reports an error if env carries no type URL; any non-empty type
// URL is accepted. Concrete invokers that deserialize
// env.Value into a typed argument list are expected to check TypeOf
// themselves; this is a cheap sanity check for the generic path.
func Validate(env *anypb.Any) error {
	if env == nil {
		return nil
	}
	if env.GetTypeUrl() == "" {
		return fmt.Errorf("bodycodec: envelope missing type url")
	}
	return nil
}
