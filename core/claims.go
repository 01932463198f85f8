package core

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// ClaimBid claims a single bid on behalf of its owner. Bid-scoped claims are
// permission-gated: the caller must be the bidder.
func (h *AuctionHouse) ClaimBid(lotID, bidID uint64, caller string) (BidClaim, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.settledLot(lotID)
	if err != nil {
		return BidClaim{}, err
	}
	bid, ok := r.bids[bidID]
	if !ok {
		return BidClaim{}, fmt.Errorf("%w: lot %d bid %d", ErrInvalidBidID, lotID, bidID)
	}
	if bid.Bidder != caller {
		return BidClaim{}, fmt.Errorf("%w: caller does not own bid %d", ErrNotPermitted, bidID)
	}
	if bid.Status != BidDecrypted {
		return BidClaim{}, fmt.Errorf("%w: bid %d is %s", ErrInvalidState, bidID, bid.Status)
	}

	claim, err := h.settleClaim(r, bid)
	if err != nil {
		return BidClaim{}, err
	}
	bid.Status = BidClaimed
	return claim, nil
}

// ClaimBids claims a batch of bids atomically: either every listed bid is
// claimable and flips to Claimed, or the call fails and nothing changes.
// Winners and losers may be interleaved in any order.
func (h *AuctionHouse) ClaimBids(lotID uint64, bidIDs []uint64) ([]BidClaim, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.settledLot(lotID)
	if err != nil {
		return nil, err
	}

	// Validate the whole batch before mutating anything.
	seen := make(map[uint64]bool, len(bidIDs))
	for _, bidID := range bidIDs {
		bid, ok := r.bids[bidID]
		if !ok {
			return nil, fmt.Errorf("%w: lot %d bid %d", ErrInvalidBidID, lotID, bidID)
		}
		if bid.Status != BidDecrypted || seen[bidID] {
			return nil, fmt.Errorf("%w: bid %d is %s", ErrInvalidState, bidID, bid.Status)
		}
		seen[bidID] = true
	}

	claims := make([]BidClaim, 0, len(bidIDs))
	for _, bidID := range bidIDs {
		bid := r.bids[bidID]
		claim, err := h.settleClaim(r, bid)
		if err != nil {
			return nil, err
		}
		bid.Status = BidClaimed
		claims = append(claims, claim)
	}

	h.log.Debug("bids claimed", zap.Uint64("lot", lotID), zap.Int("count", len(claims)))
	return claims, nil
}

// settleClaim computes a bid's payout against the settled marginal price.
// Winners pay their full commitment and receive amount/marginalPrice (rounded
// down). The marginal bid receives its cached partial allocation instead of
// the formulaic payout. Losers pay nothing net: the full commitment is
// reported back so the host can route the refund.
func (h *AuctionHouse) settleClaim(r *lotRecord, bid *Bid) (BidClaim, error) {
	claim := BidClaim{
		BidID:    bid.ID,
		Bidder:   bid.Bidder,
		Referrer: bid.Referrer,
		Paid:     new(uint256.Int).Set(bid.Amount),
		Refund:   uint256.NewInt(0),
		Payout:   uint256.NewInt(0),
	}

	// The single marginal bid with a partial fill.
	if r.partial != nil && r.partial.BidID == bid.ID {
		claim.Paid = new(uint256.Int).Sub(bid.Amount, r.partial.Refund)
		claim.Refund = new(uint256.Int).Set(r.partial.Refund)
		claim.Payout = new(uint256.Int).Set(r.partial.Payout)
		return claim, nil
	}

	// Invalidated bids carry no implied quantity and always lose.
	if bid.MinAmountOut.IsZero() {
		claim.Refund = new(uint256.Int).Set(bid.Amount)
		return claim, nil
	}

	price, err := MulDivUp(bid.Amount, r.baseScale(), bid.MinAmountOut)
	if err != nil {
		return BidClaim{}, err
	}

	// Bid ids start at 1, so MarginalBidID == 0 (no marginal bid) makes every
	// exactly-at-price bid a loser.
	marginal := r.data.MarginalPrice
	winner := price.Cmp(marginal) > 0 ||
		(price.Cmp(marginal) == 0 && bid.ID <= r.data.MarginalBidID)

	if !winner {
		claim.Refund = new(uint256.Int).Set(bid.Amount)
		return claim, nil
	}

	payout, err := MulDivDown(bid.Amount, r.baseScale(), marginal)
	if err != nil {
		return BidClaim{}, err
	}
	claim.Payout = payout
	return claim, nil
}

// ClaimProceeds hands the seller their one-time settlement accounting and
// advances the lot to Claimed. A second call fails.
func (h *AuctionHouse) ClaimProceeds(lotID uint64) (Proceeds, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return Proceeds{}, err
	}
	if r.data.Status != LotSettled {
		return Proceeds{}, fmt.Errorf("%w: proceeds of %s lot", ErrInvalidState, r.data.Status)
	}
	r.data.Status = LotClaimed

	h.log.Info("proceeds claimed", zap.Uint64("lot", lotID),
		zap.String("purchased", r.lot.Purchased.Dec()),
		zap.String("sold", r.lot.Sold.Dec()))

	return Proceeds{
		Purchased:     new(uint256.Int).Set(r.lot.Purchased),
		Sold:          new(uint256.Int).Set(r.lot.Sold),
		PartialPayout: new(uint256.Int).Set(r.lot.PartialPayout),
	}, nil
}

// ClaimCuratorPayout returns the sold quantity the curator's proportional fee
// is computed from. It is independently one-time-claimable and returns zero
// sold for a cancelled lot without failing: no sale, no fee owed.
func (h *AuctionHouse) ClaimCuratorPayout(lotID uint64) (*uint256.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return nil, err
	}
	switch r.data.Status {
	case LotSettled, LotClaimed, LotCancelled:
	default:
		return nil, fmt.Errorf("%w: curator payout of %s lot", ErrInvalidState, r.data.Status)
	}
	if r.data.CuratorPayoutClaimed {
		return nil, fmt.Errorf("%w: curator payout already claimed", ErrInvalidState)
	}
	r.data.CuratorPayoutClaimed = true

	return new(uint256.Int).Set(r.lot.Sold), nil
}

// settledLot fetches a lot that has been settled; bid claims are valid both
// before and after the seller's proceeds claim.
func (h *AuctionHouse) settledLot(lotID uint64) (*lotRecord, error) {
	r, err := h.lot(lotID)
	if err != nil {
		return nil, err
	}
	if r.data.Status != LotSettled && r.data.Status != LotClaimed {
		return nil, fmt.Errorf("%w: lot is %s", ErrInvalidState, r.data.Status)
	}
	return r, nil
}
