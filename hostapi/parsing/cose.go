// Package parsing decodes COSE Sign1 envelopes without verifying them.
// Verification lives in the validation package; hosts that only need the
// embedded settlement report can stop here.
package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Sign1Parts is a decoded COSE_Sign1 envelope:
// [protected, unprotected, payload, signature].
type Sign1Parts struct {
	Protected   []byte
	Unprotected map[any]any
	Payload     []byte
	Signature   []byte
}

// sign1Tag is the CBOR tag wrapping a tagged COSE_Sign1 (RFC 9052). Nitro
// attestation documents arrive untagged; go-cose emits the tag.
const sign1Tag = 18

// ParseSign1 decodes a COSE_Sign1 envelope, tagged or untagged.
func ParseSign1(coseBytes []byte) (*Sign1Parts, error) {
	var raw any
	if err := cbor.Unmarshal(coseBytes, &raw); err != nil {
		return nil, fmt.Errorf("parse COSE envelope: %w", err)
	}
	if tag, ok := raw.(cbor.Tag); ok {
		if tag.Number != sign1Tag {
			return nil, fmt.Errorf("unexpected CBOR tag %d, want COSE_Sign1", tag.Number)
		}
		raw = tag.Content
	}

	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("COSE envelope is not an array")
	}
	if len(arr) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(arr))
	}

	parts := &Sign1Parts{}
	if parts.Protected, ok = arr[0].([]byte); !ok {
		return nil, fmt.Errorf("invalid protected headers in COSE structure")
	}
	if unprotected, ok := arr[1].(map[any]any); ok {
		parts.Unprotected = unprotected
	}
	if parts.Payload, ok = arr[2].([]byte); !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	if parts.Signature, ok = arr[3].([]byte); !ok {
		return nil, fmt.Errorf("invalid signature in COSE structure")
	}
	return parts, nil
}

// ExtractCOSEPayload returns just the payload of a COSE_Sign1 envelope.
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	parts, err := ParseSign1(coseBytes)
	if err != nil {
		return nil, err
	}
	return parts.Payload, nil
}

// SigStructure builds the RFC 9052 Sig_structure a COSE_Sign1 signature
// covers: ["Signature1", protected, external_aad, payload].
func (p *Sign1Parts) SigStructure() ([]byte, error) {
	b, err := cbor.Marshal([]any{
		"Signature1",
		p.Protected,
		[]byte{},
		p.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}
	return b, nil
}
