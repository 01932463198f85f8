package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/veraison/go-cose"
)

// ReportSigner wraps a settlement report payload in a signed COSE envelope.
// Inside an enclave the Nitro Security Module signs; outside, a local ECDSA
// key does, so the full pipeline runs in development deployments.
type ReportSigner interface {
	Sign(payload []byte) ([]byte, error)
}

// EnclaveAttester is the NSM surface the nitro signer needs, kept narrow for
// dependency injection in tests.
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// nitroSigner embeds the report payload as attestation user data. The NSM
// returns a COSE Sign1 attestation document covering it.
type nitroSigner struct {
	attester EnclaveAttester
}

func newNitroSigner() (*nitroSigner, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return &nitroSigner{attester: handle}, nil
}

func (s *nitroSigner) Sign(payload []byte) ([]byte, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	doc, err := s.attester.Attest(enclave.AttestationOptions{
		UserData: payload,
		Nonce:    nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}
	return doc, nil
}

// localSigner signs report payloads with an ephemeral ECDSA P-256 key. The
// public key is published at startup so verifiers can check reports from
// this process lifetime.
type localSigner struct {
	key *ecdsa.PrivateKey
}

func newLocalSigner() (*localSigner, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &localSigner{key: key}, nil
}

func (s *localSigner) Sign(payload []byte) ([]byte, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES256, s.key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("sign report: %w", err)
	}
	return msg.MarshalCBOR()
}

// Public exposes the verification key for locally signed reports.
func (s *localSigner) Public() *ecdsa.PublicKey {
	return &s.key.PublicKey
}
