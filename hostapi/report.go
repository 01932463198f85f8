package hostapi

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// SettlementReport is the CBOR payload the daemon embeds in a COSE Sign1
// envelope after settling a lot. Amounts are exact smallest-unit decimal
// integer strings. Bid commitments bind the report to the exact ciphertexts
// that entered settlement, so an off-host verifier can prove its bid was
// included without learning any other bidder's plaintext.
type SettlementReport struct {
	LotID          uint64    `json:"lot_id" cbor:"1,keyasint"`
	Timestamp      time.Time `json:"timestamp" cbor:"2,keyasint"`
	MarginalPrice  string    `json:"marginal_price" cbor:"3,keyasint"`
	MarginalBidID  uint64    `json:"marginal_bid_id" cbor:"4,keyasint"`
	TotalIn        string    `json:"total_in" cbor:"5,keyasint"`
	TotalOut       string    `json:"total_out" cbor:"6,keyasint"`
	Capacity       string    `json:"capacity" cbor:"7,keyasint"`
	Sale           bool      `json:"sale" cbor:"8,keyasint"`
	BidCommitments [][]byte  `json:"bid_commitments" cbor:"9,keyasint"`
	Nonce          []byte    `json:"nonce" cbor:"10,keyasint"`
}

// Encode marshals the report to its canonical CBOR form, the exact bytes the
// COSE signature covers.
func (r *SettlementReport) Encode() ([]byte, error) {
	b, err := cbor.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode settlement report: %w", err)
	}
	return b, nil
}

// DecodeSettlementReport parses a CBOR settlement report payload.
func DecodeSettlementReport(payload []byte) (*SettlementReport, error) {
	var r SettlementReport
	if err := cbor.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode settlement report: %w", err)
	}
	return &r, nil
}

// BidCommitment hashes a bid's identity and ciphertext into the settlement
// report. The commitment covers the lot id, so the same ciphertext submitted
// to two lots yields distinct commitments.
func BidCommitment(lotID, bidID uint64, ciphertext, bidPublicKey []byte) []byte {
	h := sha256.New()
	var ids [16]byte
	binary.BigEndian.PutUint64(ids[:8], lotID)
	binary.BigEndian.PutUint64(ids[8:], bidID)
	h.Write(ids[:])
	h.Write(ciphertext)
	h.Write(bidPublicKey)
	return h.Sum(nil)
}
