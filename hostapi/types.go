// Package hostapi defines the wire types exchanged between the host routing
// layer and the clearing daemon. Every request carries a Type discriminator;
// amounts travel as decimal strings denominated in whole tokens and are
// converted to smallest-unit integers at the lot's configured precision.
package hostapi

import (
	"time"
)

// Request type discriminators.
const (
	TypePing               = "ping"
	TypeCreateAuction      = "create_auction"
	TypeCancelAuction      = "cancel_auction"
	TypeSubmitBid          = "submit_bid"
	TypeSubmitPrivateKey   = "submit_private_key"
	TypeDecryptBids        = "decrypt_bids"
	TypeSettle             = "settle"
	TypeClaimBid           = "claim_bid"
	TypeClaimBids          = "claim_bids"
	TypeClaimProceeds      = "claim_proceeds"
	TypeClaimCuratorPayout = "claim_curator_payout"
	TypeLotStatus          = "lot_status"
)

// BaseRequest is decoded first to route on the Type field.
type BaseRequest struct {
	Type string `json:"type"`
}

// CreateAuctionRequest registers a new lot. Capacity and minimum-fill are
// denominated in the base token, the minimum price in quote per whole base,
// and the minimum bid size in the quote token.
type CreateAuctionRequest struct {
	Type          string    `json:"type"`
	LotID         uint64    `json:"lot_id"`
	QuoteDecimals uint8     `json:"quote_decimals"`
	BaseDecimals  uint8     `json:"base_decimals"`
	Start         time.Time `json:"start"`
	Conclusion    time.Time `json:"conclusion"`
	Capacity      string    `json:"capacity"`
	MinPrice      string    `json:"min_price"`
	MinFilled     string    `json:"min_filled"`
	MinBidSize    string    `json:"min_bid_size"`
	PublicKey     []byte    `json:"public_key"` // compressed SEC1 auction key
}

type CancelAuctionRequest struct {
	Type  string `json:"type"`
	LotID uint64 `json:"lot_id"`
}

// SubmitBidRequest carries an encrypted bid. The amount is a whole-quote
// decimal string; the implied output quantity stays sealed in the ciphertext.
type SubmitBidRequest struct {
	Type         string `json:"type"`
	LotID        uint64 `json:"lot_id"`
	Bidder       string `json:"bidder"`
	Referrer     string `json:"referrer,omitempty"`
	Amount       string `json:"amount"`
	Ciphertext   []byte `json:"ciphertext"`
	BidPublicKey []byte `json:"bid_public_key"`
}

type SubmitBidResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	BidID     uint64 `json:"bid_id,omitempty"`
}

type SubmitPrivateKeyRequest struct {
	Type         string `json:"type"`
	LotID        uint64 `json:"lot_id"`
	PrivateKey   []byte `json:"private_key"`
	DecryptBatch uint64 `json:"decrypt_batch,omitempty"`
}

type DecryptBidsRequest struct {
	Type  string `json:"type"`
	LotID uint64 `json:"lot_id"`
	Num   uint64 `json:"num"`
}

type DecryptBidsResponse struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id"`
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	NextIndex      uint64 `json:"next_index"`
	BidCount       uint64 `json:"bid_count"`
	DecryptedValid uint64 `json:"decrypted_valid"`
	LotStatus      string `json:"lot_status"`
}

type SettleRequest struct {
	Type  string `json:"type"`
	LotID uint64 `json:"lot_id"`
}

// PartialFillSummary reports the single partially filled bid of a settlement.
type PartialFillSummary struct {
	BidID    uint64 `json:"bid_id"`
	Bidder   string `json:"bidder"`
	Referrer string `json:"referrer,omitempty"`
	Refund   string `json:"refund"`
	Payout   string `json:"payout"`
}

// SettlementSummary renders a settlement at the lot's token precision. Raw
// fields carry exact smallest-unit integers; decimal fields are whole-token
// renderings for human consumption.
type SettlementSummary struct {
	MarginalPrice    string              `json:"marginal_price_raw"`
	MarginalPriceDec string              `json:"marginal_price"`
	MarginalBidID    uint64              `json:"marginal_bid_id"`
	TotalIn          string              `json:"total_in_raw"`
	TotalInDec       string              `json:"total_in"`
	TotalOut         string              `json:"total_out_raw"`
	TotalOutDec      string              `json:"total_out"`
	Sale             bool                `json:"sale"`
	PartialFill      *PartialFillSummary `json:"partial_fill,omitempty"`
}

type SettleResponse struct {
	Type           string             `json:"type"`
	RequestID      string             `json:"request_id"`
	Success        bool               `json:"success"`
	Message        string             `json:"message,omitempty"`
	Settlement     *SettlementSummary `json:"settlement,omitempty"`
	Report         []byte             `json:"report,omitempty"` // COSE Sign1 settlement report
	ProcessingTime int64              `json:"processing_time_ms"`
}

type ClaimBidRequest struct {
	Type   string `json:"type"`
	LotID  uint64 `json:"lot_id"`
	BidID  uint64 `json:"bid_id"`
	Caller string `json:"caller"`
}

type ClaimBidsRequest struct {
	Type   string   `json:"type"`
	LotID  uint64   `json:"lot_id"`
	BidIDs []uint64 `json:"bid_ids"`
}

// BidClaimSummary reports the cash flows of one claimed bid.
type BidClaimSummary struct {
	BidID    uint64 `json:"bid_id"`
	Bidder   string `json:"bidder"`
	Referrer string `json:"referrer,omitempty"`
	Paid     string `json:"paid"`
	Refund   string `json:"refund"`
	Payout   string `json:"payout"`
}

type ClaimResponse struct {
	Type      string            `json:"type"`
	RequestID string            `json:"request_id"`
	Success   bool              `json:"success"`
	Message   string            `json:"message,omitempty"`
	Claims    []BidClaimSummary `json:"claims,omitempty"`
}

type ClaimProceedsRequest struct {
	Type  string `json:"type"`
	LotID uint64 `json:"lot_id"`
}

type ClaimProceedsResponse struct {
	Type          string `json:"type"`
	RequestID     string `json:"request_id"`
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	Purchased     string `json:"purchased,omitempty"`
	Sold          string `json:"sold,omitempty"`
	PartialPayout string `json:"partial_payout,omitempty"`
}

type ClaimCuratorPayoutRequest struct {
	Type  string `json:"type"`
	LotID uint64 `json:"lot_id"`
}

type ClaimCuratorPayoutResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Sold      string `json:"sold,omitempty"`
}

type LotStatusRequest struct {
	Type  string `json:"type"`
	LotID uint64 `json:"lot_id"`
}

type LotStatusResponse struct {
	Type             string `json:"type"`
	RequestID        string `json:"request_id"`
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	Status           string `json:"status,omitempty"`
	BidCount         uint64 `json:"bid_count"`
	DecryptedValid   uint64 `json:"decrypted_valid"`
	Capacity         string `json:"capacity,omitempty"`
	Sold             string `json:"sold,omitempty"`
	Purchased        string `json:"purchased,omitempty"`
	MarginalPrice    string `json:"marginal_price,omitempty"`
	MarginalBidID    uint64 `json:"marginal_bid_id"`
	NextDecryptIndex uint64 `json:"next_decrypt_index"`
}

// Ack is the generic success/error envelope for operations with no payload.
type Ack struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}
