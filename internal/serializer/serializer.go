// Package serializer implements the serializer external collaborator's
// deepCopy contract (spec.md §6, §4.7): copying a response or exception
// payload before it crosses the boundary back to the caller. Two flavors
// are available, selected by ClientConfig.UseStandardSerializer: a
// gob-based copier (default, stdlib only — no example repo in the
// retrieved pack ships a generic deep-copy library) and a
// json-iterator/go-based copier for drop-in compatibility with code that
// already expects standard `encoding/json` struct tags.
package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

// DeepCopier is the narrow contract C6/C4 response emission depends on.
type DeepCopier interface {
	// DeepCopy returns an independent copy of v. A non-nil error indicates
	// copy failure, which callers convert into an ExceptionResponse
	// (spec.md §4.7).
	DeepCopy(v any) (any, error)
}

// New selects a DeepCopier per ClientConfig.UseStandardSerializer.
func New(useStandardSerializer bool) DeepCopier {
	if useStandardSerializer {
		return NewJSONCopier()
	}
	return GobCopier{}
}

// GobCopier round-trips v through encoding/gob to produce an independent
// copy. It requires v's concrete type (and any nested types) to be
// gob-encodable; types with unexported fields or channels/funcs fail, which
// callers treat as a SerializationFailure.
type GobCopier struct{}

// DeepCopy implements DeepCopier.
func (GobCopier) DeepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("serializer: gob encode: %w", err)
	}

	out := reflect.New(reflect.TypeOf(v))
	if err := gob.NewDecoder(&buf).Decode(out.Interface()); err != nil {
		return nil, fmt.Errorf("serializer: gob decode: %w", err)
	}
	return out.Elem().Interface(), nil
}

// JSONCopier round-trips v through json-iterator/go, configured to match
// encoding/json semantics so struct tags written against the standard
// library behave identically.
type JSONCopier struct {
	api jsoniter.API
}

// NewJSONCopier returns a JSONCopier using jsoniter's stdlib-compatible
// configuration.
func NewJSONCopier() *JSONCopier {
	return &JSONCopier{api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

// DeepCopy implements DeepCopier.
func (j *JSONCopier) DeepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := j.api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializer: jsoniter marshal: %w", err)
	}

	out := reflect.New(reflect.TypeOf(v))
	if err := j.api.Unmarshal(data, out.Interface()); err != nil {
		return nil, fmt.Errorf("serializer: jsoniter unmarshal: %w", err)
	}
	return out.Elem().Interface(), nil
}
