package core

import (
	"errors"
	"time"

	"github.com/holiman/uint256"
)

// Engine error taxonomy. These are precondition failures surfaced synchronously
// to the caller; nothing is retried internally. Decryption anomalies and
// no-sale settlements are deliberately not errors.
var (
	ErrInvalidLotID          = errors.New("invalid lot id")
	ErrInvalidBidID          = errors.New("invalid bid id")
	ErrInvalidState          = errors.New("wrong auction state")
	ErrMarketNotActive       = errors.New("market not active")
	ErrInvalidKey            = errors.New("invalid key")
	ErrAmountLessThanMinimum = errors.New("amount less than minimum")
	ErrNotPermitted          = errors.New("caller not permitted")
	ErrUnsupported           = errors.New("operation not supported by this auction type")
	ErrInvalidParams         = errors.New("invalid auction params")
)

// LotStatus is the lot lifecycle state.
// Created → {Cancelled | Decrypted} → Settled → Claimed. Cancelled is terminal.
type LotStatus uint8

const (
	LotCreated LotStatus = iota
	LotDecrypted
	LotSettled
	LotClaimed
	LotCancelled
)

func (s LotStatus) String() string {
	switch s {
	case LotCreated:
		return "created"
	case LotDecrypted:
		return "decrypted"
	case LotSettled:
		return "settled"
	case LotClaimed:
		return "claimed"
	case LotCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// BidStatus is the per-bid state. Claimed and Cancelled are terminal.
type BidStatus uint8

const (
	BidSubmitted BidStatus = iota
	BidDecrypted
	BidClaimed
	BidCancelled
)

func (s BidStatus) String() string {
	switch s {
	case BidSubmitted:
		return "submitted"
	case BidDecrypted:
		return "decrypted"
	case BidClaimed:
		return "claimed"
	case BidCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Lot holds per-round configuration and running totals. Capacity decreases
// monotonically and is zero once the lot is settled or cancelled.
type Lot struct {
	Start           time.Time
	Conclusion      time.Time
	QuoteDecimals   uint8
	BaseDecimals    uint8
	CapacityInQuote bool
	Capacity        *uint256.Int // remaining sellable base quantity
	Sold            *uint256.Int // cumulative base allocated to bidders
	Purchased       *uint256.Int // cumulative quote collected from bidders
	PartialPayout   *uint256.Int // base allocated to the partially filled bid
}

// AuctionParams configures a new lot.
type AuctionParams struct {
	Start           time.Time
	Conclusion      time.Time
	Capacity        *uint256.Int
	CapacityInQuote bool         // rejected by this auction type; capacity must be base-denominated
	MinPrice        *uint256.Int // quote per whole base token, scaled by 10^baseDecimals
	MinFilled       *uint256.Int // minimum cleared base quantity for a valid sale
	MinBidSize      *uint256.Int // quote-denominated individual bid threshold
	PublicKey       []byte       // auction ECIES public key, compressed SEC1
}

// AuctionData is the sealed-bid bookkeeping attached to a lot.
type AuctionData struct {
	Status               LotStatus
	NextBidID            uint64
	MarginalPrice        *uint256.Int
	MarginalBidID        uint64
	MinPrice             *uint256.Int
	MinFilled            *uint256.Int
	MinBidSize           *uint256.Int
	NextDecryptIndex     uint64
	CuratorPayoutClaimed bool
	PublicKey            []byte
	PrivateKey           []byte // populated only after conclusion
}

// Bid is a single sealed bid. MinAmountOut is zero until decrypted and stays
// zero for an invalidated bid.
type Bid struct {
	ID           uint64
	Bidder       string
	Referrer     string
	Amount       *uint256.Int // committed quote quantity
	MinAmountOut *uint256.Int // decrypted implied minimum base quantity
	Status       BidStatus
}

// EncryptedBid is the opaque counterpart of a Bid: the ciphertext and the
// bidder's ephemeral public key. The ciphertext is bound to the lot id as
// associated data so it cannot be replayed across lots.
type EncryptedBid struct {
	Ciphertext   []byte
	BidPublicKey []byte
}

// PartialFill describes the single bid that straddles the clearing boundary.
type PartialFill struct {
	BidID    uint64
	Bidder   string
	Referrer string
	Refund   *uint256.Int // quote returned for the unfilled portion
	Payout   *uint256.Int // base allocated to the partial fill
}

// Settlement is the outcome of marginal price discovery for one lot.
type Settlement struct {
	TotalIn       *uint256.Int // quote collected across all winning bids
	TotalOut      *uint256.Int // base allocated across all winning bids
	MarginalPrice *uint256.Int
	MarginalBidID uint64
	PartialFill   *PartialFill // nil when every winner filled in full
}

// BidClaim is the per-bid claim result handed back to the host routing layer.
// Payout == 0 means the host should route the paid amount back to the bidder.
type BidClaim struct {
	BidID    uint64
	Bidder   string
	Referrer string
	Paid     *uint256.Int // quote the bid committed, net of any partial refund
	Refund   *uint256.Int // quote owed back to the bidder
	Payout   *uint256.Int // base owed to the bidder
}

// Proceeds is the seller's one-time accounting result after settlement.
type Proceeds struct {
	Purchased     *uint256.Int
	Sold          *uint256.Int
	PartialPayout *uint256.Int
}
