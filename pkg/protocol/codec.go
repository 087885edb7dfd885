package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes and decodes LSH payloads. The orchestrator core is
// codec-agnostic; the bus adapter selects one per deployment.
type Codec interface {
	// Name identifies the codec ("json" or "cbor").
	Name() string

	// Marshal encodes a payload.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes a payload.
	Unmarshal(data []byte, v any) error
}

// JSONCodec encodes payloads as JSON. Usable as a zero value.
type JSONCodec struct{}

// Name returns "json".
func (JSONCodec) Name() string { return "json" }

// Marshal encodes v as JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes JSON into v.
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// cborEncMode is the CBOR encoder mode for LSH payloads.
// Configured for deterministic encoding.
var cborEncMode cbor.EncMode

// cborDecMode is the CBOR decoder mode for LSH payloads.
var cborDecMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for deterministic output
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	cborEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Configure decoder to be lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	cborDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// CBORCodec encodes payloads as deterministic CBOR. Usable as a zero value.
type CBORCodec struct{}

// Name returns "cbor".
func (CBORCodec) Name() string { return "cbor" }

// Marshal encodes v as canonical CBOR.
func (CBORCodec) Marshal(v any) ([]byte, error) { return cborEncMode.Marshal(v) }

// Unmarshal decodes CBOR into v.
func (CBORCodec) Unmarshal(data []byte, v any) error { return cborDecMode.Unmarshal(data, v) }

// CodecByName returns the codec for a configured encoding name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Codec = JSONCodec{}
	_ Codec = CBORCodec{}
)
