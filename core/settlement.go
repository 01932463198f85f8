package core

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Settle runs marginal price discovery for a decrypted lot. It walks the
// price-descending bid queue exactly once, accumulating demand until capacity
// is exhausted or the queue runs out, then fixes the single clearing price
// every winner pays. Failing to reach the minimum fill is a valid no-sale
// outcome, not an error: the lot still advances to Settled with zero totals
// and the sentinel marginal price so downstream claims operate uniformly.
func (h *AuctionHouse) Settle(lotID uint64) (*Settlement, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return nil, err
	}
	if r.data.Status != LotDecrypted {
		return nil, fmt.Errorf("%w: cannot settle %s lot", ErrInvalidState, r.data.Status)
	}

	result, err := h.discoverMarginalPrice(r)
	if err != nil {
		return nil, err
	}

	// A sale is only valid if it clears at or above the minimum price and
	// fills at least the configured minimum quantity.
	validSale := !result.marginalPrice.IsZero() &&
		result.marginalPrice.Cmp(r.data.MinPrice) >= 0 &&
		result.capacityExpended.Cmp(r.data.MinFilled) >= 0

	settlement := &Settlement{
		TotalIn:       uint256.NewInt(0),
		TotalOut:      uint256.NewInt(0),
		MarginalPrice: new(uint256.Int).Set(MaxUint96),
	}

	if validSale {
		if result.partial != nil {
			pf, err := h.applyPartialFill(r, result)
			if err != nil {
				return nil, err
			}
			settlement.PartialFill = pf
		}
		settlement.TotalIn = result.totalAmountIn
		settlement.TotalOut = result.capacityExpended
		settlement.MarginalPrice = result.marginalPrice
		settlement.MarginalBidID = result.marginalBidID

		r.lot.Purchased = new(uint256.Int).Set(settlement.TotalIn)
		r.lot.Sold = new(uint256.Int).Set(settlement.TotalOut)
	}

	r.lot.Capacity = uint256.NewInt(0)
	r.data.MarginalPrice = new(uint256.Int).Set(settlement.MarginalPrice)
	r.data.MarginalBidID = settlement.MarginalBidID
	r.data.Status = LotSettled
	r.partial = settlement.PartialFill
	r.queue = bidQueue{} // drained; losers are identified by price at claim time

	h.log.Info("lot settled",
		zap.Uint64("lot", lotID),
		zap.Bool("sale", validSale),
		zap.String("marginal_price", settlement.MarginalPrice.Dec()),
		zap.Uint64("marginal_bid", settlement.MarginalBidID),
		zap.String("total_in", settlement.TotalIn.Dec()),
		zap.String("total_out", settlement.TotalOut.Dec()))

	return copySettlement(settlement), nil
}

// walkResult captures the state of the single settlement pass.
type walkResult struct {
	totalAmountIn    *uint256.Int // quote committed by all bids priced at or above marginal
	capacityExpended *uint256.Int // base demanded at the marginal price
	marginalPrice    *uint256.Int
	marginalBidID    uint64
	partial          *queuedBid // the bid straddling the capacity boundary, if any
}

// discoverMarginalPrice drains the bid queue in descending price order. The
// clearing price is the greater of the minimum price and the price at which
// cumulative demand exactly exhausts capacity.
func (h *AuctionHouse) discoverMarginalPrice(r *lotRecord) (*walkResult, error) {
	var (
		baseScale = r.baseScale()
		capacity  = r.lot.Capacity
		minPrice  = r.data.MinPrice

		res = &walkResult{
			totalAmountIn:    uint256.NewInt(0),
			capacityExpended: uint256.NewInt(0),
			marginalPrice:    uint256.NewInt(0),
		}

		// Price and id of the last bid folded into totalAmountIn, needed when
		// the discovered price lands exactly on that bid's own price.
		lastPrice *uint256.Int
		lastBidID uint64
	)

	for r.queue.Len() > 0 {
		qb := r.queue.PopMax()

		// Bids below the minimum price can never clear. Everything at or
		// above the minimum has been accumulated, so finish at the floor.
		if qb.price.Cmp(minPrice) < 0 {
			return res, h.clearAtFloor(r, res, lastPrice, lastBidID)
		}

		// If demand accumulated so far already exhausts capacity at this
		// bid's price, the clearing price lies between this bid and the
		// previous one; this bid and everything below it loses.
		if !res.totalAmountIn.IsZero() {
			prev, err := MulDivDown(res.totalAmountIn, baseScale, qb.price)
			if err != nil {
				return nil, err
			}
			if prev.Cmp(capacity) >= 0 {
				mp, err := MulDivUp(res.totalAmountIn, baseScale, capacity)
				if err != nil {
					return nil, err
				}
				res.marginalPrice = mp
				if lastPrice != nil && mp.Cmp(lastPrice) == 0 {
					res.marginalBidID = lastBidID
				}
				res.capacityExpended, err = MulDivDown(res.totalAmountIn, baseScale, mp)
				return res, err
			}
		}

		res.totalAmountIn.Add(res.totalAmountIn, qb.amountIn)
		exp, err := MulDivDown(res.totalAmountIn, baseScale, qb.price)
		if err != nil {
			return nil, err
		}
		res.capacityExpended = exp

		// This bid straddles or exactly meets the capacity boundary: it is
		// the marginal bid and its price clears the lot.
		if exp.Cmp(capacity) >= 0 {
			res.marginalPrice = new(uint256.Int).Set(qb.price)
			res.marginalBidID = qb.bidID
			if exp.Cmp(capacity) > 0 {
				res.partial = qb
			}
			return res, nil
		}

		lastPrice = qb.price
		lastBidID = qb.bidID
	}

	// Queue exhausted without reaching capacity: clear at the floor.
	return res, h.clearAtFloor(r, res, lastPrice, lastBidID)
}

// clearAtFloor finishes discovery when every remaining bid is priced below the
// minimum. Demand is re-priced at the minimum; if even that overshoots
// capacity, the price that exactly exhausts capacity clears instead.
func (h *AuctionHouse) clearAtFloor(r *lotRecord, res *walkResult, lastPrice *uint256.Int, lastBidID uint64) error {
	if res.totalAmountIn.IsZero() {
		return nil // no qualifying demand; marginal price stays zero → no sale
	}
	baseScale := r.baseScale()
	minPrice := r.data.MinPrice

	exp, err := MulDivDown(res.totalAmountIn, baseScale, minPrice)
	if err != nil {
		return err
	}
	if exp.Cmp(r.lot.Capacity) <= 0 {
		res.marginalPrice = new(uint256.Int).Set(minPrice)
		res.capacityExpended = exp
		return nil
	}

	mp, err := MulDivUp(res.totalAmountIn, baseScale, r.lot.Capacity)
	if err != nil {
		return err
	}
	res.marginalPrice = mp
	if lastPrice != nil && mp.Cmp(lastPrice) == 0 {
		res.marginalBidID = lastBidID
	}
	res.capacityExpended, err = MulDivDown(res.totalAmountIn, baseScale, mp)
	return err
}

// applyPartialFill computes the marginal bid's residual allocation and refund.
// The payout is the residual capacity left by higher-priced bids; the refund
// covers the unfilled portion of the commitment, rounded down so the rounding
// remainder accrues to the house, never to the bidder.
func (h *AuctionHouse) applyPartialFill(r *lotRecord, res *walkResult) (*PartialFill, error) {
	qb := res.partial
	bid := r.bids[qb.bidID]

	fullFill, err := MulDivDown(qb.amountIn, r.baseScale(), res.marginalPrice)
	if err != nil {
		return nil, err
	}
	excess := new(uint256.Int).Sub(res.capacityExpended, r.lot.Capacity)
	payout := new(uint256.Int).Sub(fullFill, excess)
	refund, err := MulDivDown(qb.amountIn, excess, fullFill)
	if err != nil {
		return nil, err
	}

	res.totalAmountIn.Sub(res.totalAmountIn, refund)
	res.capacityExpended = new(uint256.Int).Set(r.lot.Capacity)
	r.lot.PartialPayout = new(uint256.Int).Set(payout)

	return &PartialFill{
		BidID:    qb.bidID,
		Bidder:   bid.Bidder,
		Referrer: bid.Referrer,
		Refund:   refund,
		Payout:   payout,
	}, nil
}

func copySettlement(s *Settlement) *Settlement {
	out := &Settlement{
		TotalIn:       new(uint256.Int).Set(s.TotalIn),
		TotalOut:      new(uint256.Int).Set(s.TotalOut),
		MarginalPrice: new(uint256.Int).Set(s.MarginalPrice),
		MarginalBidID: s.MarginalBidID,
	}
	if s.PartialFill != nil {
		pf := *s.PartialFill
		pf.Refund = new(uint256.Int).Set(s.PartialFill.Refund)
		pf.Payout = new(uint256.Int).Set(s.PartialFill.Payout)
		out.PartialFill = &pf
	}
	return out
}
