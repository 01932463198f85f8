// Package validation verifies COSE-signed settlement reports off-host. A
// bidder or seller who receives a report can check the signature against the
// daemon's known public key, confirm the totals are internally consistent,
// and prove their own bid entered settlement, all without access to the
// engine.
package validation

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/batchclear/core"
	"github.com/cloudx-io/batchclear/hostapi"
	"github.com/cloudx-io/batchclear/hostapi/parsing"
)

// ReportValidationResult carries the per-check outcomes of report validation.
type ReportValidationResult struct {
	SignatureValid    bool
	PayloadValid      bool
	TotalsValid       bool
	ValidationDetails []string
}

// IsValid reports whether every check passed.
func (r *ReportValidationResult) IsValid() bool {
	return r.SignatureValid && r.PayloadValid && r.TotalsValid
}

func (r *ReportValidationResult) note(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}

// VerifySettlementReport checks a COSE Sign1 settlement report against the
// daemon's signing key. The signature is verified first; the payload is then
// decoded and its totals checked for internal consistency. The parsed report
// is returned whenever the payload decodes, even if a check failed, so
// callers can inspect what was attested.
func VerifySettlementReport(coseBytes []byte, publicKey *ecdsa.PublicKey) (*hostapi.SettlementReport, *ReportValidationResult, error) {
	result := &ReportValidationResult{}

	parts, err := parsing.ParseSign1(coseBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse report envelope: %w", err)
	}

	if err := verifySignature(parts, publicKey); err != nil {
		result.note("Signature verification failed: %v", err)
	} else {
		result.SignatureValid = true
		result.note("Signature verified")
	}

	report, err := hostapi.DecodeSettlementReport(parts.Payload)
	if err != nil {
		result.note("Payload decode failed: %v", err)
		return nil, result, nil
	}
	result.PayloadValid = true

	result.TotalsValid = checkTotals(report, result)
	return report, result, nil
}

// verifySignature checks the COSE_Sign1 signature over the Sig_structure.
// Reports are signed with ES256; the daemon's enclave deployments attest the
// same payload through the NSM document instead.
func verifySignature(parts *parsing.Sign1Parts, publicKey *ecdsa.PublicKey) error {
	verifier, err := cose.NewVerifier(cose.AlgorithmES256, publicKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}
	sigStructure, err := parts.SigStructure()
	if err != nil {
		return err
	}
	if err := verifier.Verify(sigStructure, parts.Signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}

// checkTotals validates the arithmetic a report asserts about itself.
func checkTotals(report *hostapi.SettlementReport, result *ReportValidationResult) bool {
	totalIn, err := uint256.FromDecimal(report.TotalIn)
	if err != nil {
		result.note("Malformed total_in: %v", err)
		return false
	}
	totalOut, err := uint256.FromDecimal(report.TotalOut)
	if err != nil {
		result.note("Malformed total_out: %v", err)
		return false
	}
	capacity, err := uint256.FromDecimal(report.Capacity)
	if err != nil {
		result.note("Malformed capacity: %v", err)
		return false
	}
	marginalPrice, err := uint256.FromDecimal(report.MarginalPrice)
	if err != nil {
		result.note("Malformed marginal_price: %v", err)
		return false
	}

	if !report.Sale {
		if !totalIn.IsZero() || !totalOut.IsZero() {
			result.note("No-sale report carries non-zero totals")
			return false
		}
		if marginalPrice.Cmp(core.MaxUint96) != 0 {
			result.note("No-sale report missing sentinel marginal price")
			return false
		}
		result.note("No-sale totals consistent")
		return true
	}

	if marginalPrice.IsZero() || !core.FitsUint96(marginalPrice) {
		result.note("Marginal price outside the engine domain: %s", report.MarginalPrice)
		return false
	}
	if totalOut.Cmp(capacity) > 0 {
		result.note("Total out %s exceeds capacity %s", report.TotalOut, report.Capacity)
		return false
	}
	result.note("Totals consistent: %s in, %s out at price %s", report.TotalIn, report.TotalOut, report.MarginalPrice)
	return true
}

// VerifyBidInclusion proves a specific bid's ciphertext entered settlement by
// recomputing its commitment and searching the report.
func VerifyBidInclusion(report *hostapi.SettlementReport, bidID uint64, ciphertext, bidPublicKey []byte) bool {
	want := hostapi.BidCommitment(report.LotID, bidID, ciphertext, bidPublicKey)
	for _, c := range report.BidCommitments {
		if len(c) == len(want) && string(c) == string(want) {
			return true
		}
	}
	return false
}
