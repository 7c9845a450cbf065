// Package encoding turns component values into payload bytes and back.
package encoding

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotSerializable = errors.New("value does not implement Serializable")

// Serializer encodes component and event values. Deserialize receives a
// pointer to the destination value.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
}

// Serializable provides a clean, simple interface for values that encode
// themselves.
type Serializable interface {
	Serialize() ([]byte, error)
	Deserialize([]byte) error
}

// JSON is the default serializer.
type JSON struct{}

func (JSON) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Deserialize(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Gob produces self-describing binary payloads. Every payload carries its
// own type description, so it suits small numbers of large values better
// than many small ones.
type Gob struct{}

func (Gob) Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Gob) Deserialize(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Native delegates to values implementing Serializable and falls back to
// Fallback for the others. A nil Fallback makes such values an error.
type Native struct {
	Fallback Serializer
}

func (n Native) Serialize(v any) ([]byte, error) {
	if s, ok := v.(Serializable); ok {
		return s.Serialize()
	}
	if n.Fallback != nil {
		return n.Fallback.Serialize(v)
	}
	return nil, fmt.Errorf("%w: %T", ErrNotSerializable, v)
}

func (n Native) Deserialize(data []byte, v any) error {
	if s, ok := v.(Serializable); ok {
		return s.Deserialize(data)
	}
	if n.Fallback != nil {
		return n.Fallback.Deserialize(data, v)
	}
	return fmt.Errorf("%w: %T", ErrNotSerializable, v)
}

// ByName returns the serializer called name: "json" (or empty), "gob" or
// "native" (with JSON fallback).
func ByName(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "gob":
		return Gob{}, nil
	case "native":
		return Native{Fallback: JSON{}}, nil
	default:
		return nil, fmt.Errorf("unknown serializer %q", name)
	}
}
