package core

import (
	"bytes"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Invalidation reasons recorded when a decrypted bid is zeroed out. One bad
// bid must never block the rest of the batch, so these degrade the single bid
// instead of failing the call.
const (
	reasonDecryptionFailed = "decryption_failed"
	reasonOutOfRange       = "amount_out_of_range"
	reasonPriceOverflow    = "price_overflow"
	reasonBelowMinBidSize  = "below_min_bid_size"
)

// SubmitPrivateKey reveals the auction private key after the lot concludes and
// optionally decrypts the first batch of bids. The key must correspond to the
// public key the lot was created with. A lot with no bids is marked decrypted
// immediately, with no decryption work required.
func (h *AuctionHouse) SubmitPrivateKey(lotID uint64, privateKey []byte, decryptBatch uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return err
	}
	if r.data.Status != LotCreated {
		return fmt.Errorf("%w: lot is %s", ErrInvalidState, r.data.Status)
	}
	if h.now().Before(r.lot.Conclusion) {
		return fmt.Errorf("%w: lot %d has not concluded", ErrMarketNotActive, lotID)
	}
	if len(r.data.PrivateKey) != 0 {
		return fmt.Errorf("%w: private key already submitted", ErrInvalidState)
	}

	derived, err := h.cipher.DerivePublicKey(privateKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if !bytes.Equal(derived, r.data.PublicKey) {
		return fmt.Errorf("%w: private key does not match the auction public key", ErrInvalidKey)
	}
	r.data.PrivateKey = append([]byte(nil), privateKey...)

	h.log.Info("private key submitted", zap.Uint64("lot", lotID), zap.Int("bids", len(r.bidOrder)))

	if len(r.bidOrder) == 0 {
		r.data.Status = LotDecrypted
		return nil
	}
	if decryptBatch > 0 {
		h.decryptBatch(r, lotID, decryptBatch)
	}
	return nil
}

// DecryptAndSortBids advances the decryption cursor by up to num bids. The
// unbounded bid set is decrypted over several calls with bounded work per
// call; each bid is decrypted exactly once. Valid bids enter the settlement
// queue ordered by implied price; the rest are invalidated in place. When the
// cursor reaches the bid count the lot advances to Decrypted.
func (h *AuctionHouse) DecryptAndSortBids(lotID uint64, num uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return err
	}
	if r.data.Status != LotCreated {
		return fmt.Errorf("%w: lot is %s", ErrInvalidState, r.data.Status)
	}
	if h.now().Before(r.lot.Conclusion) {
		return fmt.Errorf("%w: lot %d has not concluded", ErrMarketNotActive, lotID)
	}
	if len(r.data.PrivateKey) == 0 {
		return fmt.Errorf("%w: private key not submitted", ErrInvalidState)
	}

	h.decryptBatch(r, lotID, num)
	return nil
}

func (h *AuctionHouse) decryptBatch(r *lotRecord, lotID, num uint64) {
	total := uint64(len(r.bidOrder))
	end := r.data.NextDecryptIndex + num
	if end > total {
		end = total
	}

	for i := r.data.NextDecryptIndex; i < end; i++ {
		bidID := r.bidOrder[i]
		bid := r.bids[bidID]

		amountOut, price, reason := h.decryptBid(r, lotID, bid, r.encrypted[bidID])
		bid.Status = BidDecrypted
		if reason != "" {
			// Fail open: the bid stays decrypted with a zero allocation.
			h.log.Debug("bid invalidated",
				zap.Uint64("lot", lotID),
				zap.Uint64("bid", bidID),
				zap.String("reason", reason))
			continue
		}

		bid.MinAmountOut = amountOut
		r.queue.Insert(&queuedBid{
			bidID:        bidID,
			amountIn:     new(uint256.Int).Set(bid.Amount),
			minAmountOut: amountOut,
			price:        price,
		})
	}

	r.data.NextDecryptIndex = end
	if end == total {
		r.data.Status = LotDecrypted
		h.log.Info("lot decrypted",
			zap.Uint64("lot", lotID),
			zap.Uint64("bids", total),
			zap.Int("valid", r.queue.Len()))
	}
}

// decryptBid recovers a bid's implied minimum output and unit price. A
// non-empty reason means the bid is invalidated.
func (h *AuctionHouse) decryptBid(r *lotRecord, lotID uint64, bid *Bid, enc *EncryptedBid) (amountOut, price *uint256.Int, reason string) {
	message, err := h.cipher.Decrypt(enc.Ciphertext, enc.BidPublicKey, r.data.PrivateKey, lotSalt(lotID))
	if err != nil {
		return nil, nil, reasonDecryptionFailed
	}
	if message.IsZero() || !FitsUint96(message) {
		return nil, nil, reasonOutOfRange
	}

	price, err = MulDivUp(bid.Amount, r.baseScale(), message)
	if err != nil || price.IsZero() || !FitsUint96(price) {
		return nil, nil, reasonPriceOverflow
	}

	// The minimum bid size is quote-denominated; scale it to base decimals to
	// reject dust output quantities.
	minOut, err := ScaleDecimals(r.data.MinBidSize, r.lot.QuoteDecimals, r.lot.BaseDecimals)
	if err != nil || message.Cmp(minOut) < 0 {
		return nil, nil, reasonBelowMinBidSize
	}

	return message, price, ""
}
