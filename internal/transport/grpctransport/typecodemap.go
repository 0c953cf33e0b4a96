package grpctransport

import "encoding/json"

// decodeTypeCodeMap unmarshals the JSON-encoded interface/type-code table
// the gateway returns from a "type_code_map_request" control envelope.
func decodeTypeCodeMap(raw []byte) (map[string]int32, error) {
	m := map[string]int32{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
