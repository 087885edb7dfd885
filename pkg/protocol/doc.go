// Package protocol defines the LSH wire protocol: payload types discriminated
// on the "p" field, the inbound topic grammar, payload codecs (JSON and CBOR),
// and payload validators.
//
// # Payload discrimination
//
// Every LSH payload carries a short protocol tag under the "p" key. Inbound
// tags are d_dd (device details), d_as (actuator states), and the misc
// family c_nc (network click), d_b (boot), d_p (ping response). Outbound
// command tags are listed in tags.go.
//
// # Wire keys
//
// Field names on the wire are deliberately short (p, bi, ct, c, ai, as, dn)
// so payloads stay small on constrained devices. The same keys are used for
// both the JSON and the CBOR encoding.
//
// The orchestrator core never touches raw bytes: it receives a Validators
// record whose functions either produce a typed payload or a list of
// validation error strings.
package protocol
