package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validators is the record of payload validators injected into the
// orchestrator. Each function returns either a typed payload or a non-empty
// list of validation error strings, never both.
type Validators struct {
	// DeviceDetails validates a conf topic payload (d_dd).
	DeviceDetails func(payload []byte) (*DeviceDetails, []string)

	// ActuatorStates validates a state topic payload (d_as).
	ActuatorStates func(payload []byte) (*ActuatorStates, []string)

	// Misc validates a misc topic payload, discriminating on the "p" field.
	Misc func(payload []byte) (MiscMessage, []string)
}

// NewValidators returns the validators matching the codec: JSON payloads are
// checked against JSON schemas, CBOR payloads against equivalent structural
// checks.
func NewValidators(codec Codec) Validators {
	if codec.Name() == "cbor" {
		return newCBORValidators()
	}
	return newJSONValidators()
}

// Schemas for the JSON encoding. Extra fields are allowed everywhere for
// forward compatibility.
const (
	deviceDetailsSchema = `{
		"type": "object",
		"required": ["p", "ai", "bi"],
		"properties": {
			"p": {"const": "d_dd"},
			"ai": {"type": "array", "items": {"type": "string"}},
			"bi": {"type": "array", "items": {"type": "string"}},
			"dn": {"type": "string"}
		}
	}`

	actuatorStatesSchema = `{
		"type": "object",
		"required": ["p", "as"],
		"properties": {
			"p": {"const": "d_as"},
			"as": {"type": "array", "items": {"type": "boolean"}}
		}
	}`

	networkClickSchema = `{
		"type": "object",
		"required": ["p", "bi", "ct", "c"],
		"properties": {
			"p": {"const": "c_nc"},
			"bi": {"type": "string"},
			"ct": {"enum": ["lc", "slc"]},
			"c": {"type": "boolean"}
		}
	}`

	deviceBootSchema = `{
		"type": "object",
		"required": ["p"],
		"properties": {"p": {"const": "d_b"}}
	}`

	devicePingSchema = `{
		"type": "object",
		"required": ["p"],
		"properties": {"p": {"const": "d_p"}}
	}`
)

// mustCompileSchema compiles an embedded schema document. Panics on error
// since the schemas are compile-time constants.
func mustCompileSchema(name, doc string) *jsonschema.Schema {
	v, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		panic(fmt.Sprintf("failed to parse schema %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, v); err != nil {
		panic(fmt.Sprintf("failed to add schema %s: %v", name, err))
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile schema %s: %v", name, err))
	}
	return s
}

var (
	compiledDeviceDetails  = mustCompileSchema("conf.json", deviceDetailsSchema)
	compiledActuatorStates = mustCompileSchema("state.json", actuatorStatesSchema)
	compiledNetworkClick   = mustCompileSchema("click.json", networkClickSchema)
	compiledDeviceBoot     = mustCompileSchema("boot.json", deviceBootSchema)
	compiledDevicePing     = mustCompileSchema("ping.json", devicePingSchema)
)

// schemaErrors flattens a jsonschema validation error into leaf messages.
func schemaErrors(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var leaves func(*jsonschema.ValidationError) []string
	leaves = func(e *jsonschema.ValidationError) []string {
		if len(e.Causes) == 0 {
			return []string{e.Error()}
		}
		var out []string
		for _, c := range e.Causes {
			out = append(out, leaves(c)...)
		}
		return out
	}
	return leaves(ve)
}

// validateJSON runs payload bytes through a compiled schema and, on success,
// unmarshals them into out.
func validateJSON(schema *jsonschema.Schema, payload []byte, out any) []string {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return []string{"invalid JSON: " + err.Error()}
	}
	if err := schema.Validate(doc); err != nil {
		return schemaErrors(err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return []string{"decode: " + err.Error()}
	}
	return nil
}

func newJSONValidators() Validators {
	return Validators{
		DeviceDetails: func(payload []byte) (*DeviceDetails, []string) {
			var d DeviceDetails
			if errs := validateJSON(compiledDeviceDetails, payload, &d); errs != nil {
				return nil, errs
			}
			return &d, nil
		},
		ActuatorStates: func(payload []byte) (*ActuatorStates, []string) {
			var s ActuatorStates
			if errs := validateJSON(compiledActuatorStates, payload, &s); errs != nil {
				return nil, errs
			}
			return &s, nil
		},
		Misc: func(payload []byte) (MiscMessage, []string) {
			var head struct {
				P string `json:"p"`
			}
			if err := json.Unmarshal(payload, &head); err != nil {
				return nil, []string{"invalid JSON: " + err.Error()}
			}
			switch head.P {
			case TagNetworkClick:
				var c NetworkClick
				if errs := validateJSON(compiledNetworkClick, payload, &c); errs != nil {
					return nil, errs
				}
				return c, nil
			case TagDeviceBoot:
				var b DeviceBoot
				if errs := validateJSON(compiledDeviceBoot, payload, &b); errs != nil {
					return nil, errs
				}
				return b, nil
			case TagPing:
				var p DevicePing
				if errs := validateJSON(compiledDevicePing, payload, &p); errs != nil {
					return nil, errs
				}
				return p, nil
			default:
				return nil, []string{fmt.Sprintf("unknown protocol tag %q", head.P)}
			}
		},
	}
}

// cborRequired checks that every required wire key is present in a CBOR map
// payload. The CBOR decoder leaves absent fields at their zero value, so
// presence has to be checked on the raw map.
func cborRequired(payload []byte, keys ...string) []string {
	var m map[string]cbor.RawMessage
	if err := cborDecMode.Unmarshal(payload, &m); err != nil {
		return []string{"invalid CBOR: " + err.Error()}
	}
	var errs []string
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			errs = append(errs, fmt.Sprintf("missing required field %q", k))
		}
	}
	return errs
}

func newCBORValidators() Validators {
	return Validators{
		DeviceDetails: func(payload []byte) (*DeviceDetails, []string) {
			if errs := cborRequired(payload, "p", "ai", "bi"); errs != nil {
				return nil, errs
			}
			var d DeviceDetails
			if err := cborDecMode.Unmarshal(payload, &d); err != nil {
				return nil, []string{"decode: " + err.Error()}
			}
			if d.Protocol != TagDeviceDetails {
				return nil, []string{fmt.Sprintf("unexpected protocol tag %q", d.Protocol)}
			}
			return &d, nil
		},
		ActuatorStates: func(payload []byte) (*ActuatorStates, []string) {
			if errs := cborRequired(payload, "p", "as"); errs != nil {
				return nil, errs
			}
			var s ActuatorStates
			if err := cborDecMode.Unmarshal(payload, &s); err != nil {
				return nil, []string{"decode: " + err.Error()}
			}
			if s.Protocol != TagActuatorStates {
				return nil, []string{fmt.Sprintf("unexpected protocol tag %q", s.Protocol)}
			}
			return &s, nil
		},
		Misc: func(payload []byte) (MiscMessage, []string) {
			var head struct {
				P string `cbor:"p"`
			}
			if err := cborDecMode.Unmarshal(payload, &head); err != nil {
				return nil, []string{"invalid CBOR: " + err.Error()}
			}
			switch head.P {
			case TagNetworkClick:
				if errs := cborRequired(payload, "p", "bi", "ct", "c"); errs != nil {
					return nil, errs
				}
				var c NetworkClick
				if err := cborDecMode.Unmarshal(payload, &c); err != nil {
					return nil, []string{"decode: " + err.Error()}
				}
				if !c.ClickType.Valid() {
					return nil, []string{fmt.Sprintf("unknown click type %q", c.ClickType)}
				}
				return c, nil
			case TagDeviceBoot:
				return DeviceBoot{Protocol: TagDeviceBoot}, nil
			case TagPing:
				return DevicePing{Protocol: TagPing}, nil
			default:
				return nil, []string{fmt.Sprintf("unknown protocol tag %q", head.P)}
			}
		},
	}
}
