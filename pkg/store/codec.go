package store

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Codec names accepted by CodecByName.
const (
	CodecGob  = "gob"
	CodecJSON = "json"
)

// ErrUnknownCodec is returned by CodecByName for unsupported names.
var ErrUnknownCodec = errors.New("unknown codec")

// Codec defines how stored records are serialized.
type Codec interface {
	// Encode writes v to the writer.
	Encode(w io.Writer, v any) error
	// Decode reads v from the reader.
	Decode(r io.Reader, v any) error
	// Name returns the codec name.
	Name() string
}

// CodecByName returns the codec registered under name. An empty name selects gob.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecGob:
		return GobCodec{}, nil
	case CodecJSON:
		return JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSONCodec implements Codec with compact JSON.
type JSONCodec struct{}

// Encode implements Codec.Encode.
func (JSONCodec) Encode(w io.Writer, v any) error {
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode.
func (JSONCodec) Decode(r io.Reader, v any) error {
	err := json.NewDecoder(r).Decode(v)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Name implements Codec.Name.
func (JSONCodec) Name() string {
	return CodecJSON
}

// GobCodec implements Codec with encoding/gob.
type GobCodec struct{}

// Encode implements Codec.Encode.
func (GobCodec) Encode(w io.Writer, v any) error {
	err := gob.NewEncoder(w).Encode(v)
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode.
func (GobCodec) Decode(r io.Reader, v any) error {
	err := gob.NewDecoder(r).Decode(v)
	if err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Name implements Codec.Name.
func (GobCodec) Name() string {
	return CodecGob
}
