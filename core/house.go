package core

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Token decimals outside this range make the price scale degenerate.
const (
	minTokenDecimals uint8 = 1
	maxTokenDecimals uint8 = 18
)

// lotRecord bundles a lot with its auction data and bid ledger. Records are
// created once and only ever mutated forward; nothing is deleted.
type lotRecord struct {
	lot       Lot
	data      AuctionData
	bids      map[uint64]*Bid
	encrypted map[uint64]*EncryptedBid
	bidOrder  []uint64 // submission order, walked by the decryption cursor
	queue     bidQueue // valid decrypted bids, highest implied price first
	partial   *PartialFill
}

// baseScale returns 10^baseDecimals, the fixed-point scale of prices.
func (r *lotRecord) baseScale() *uint256.Int {
	return pow10(r.lot.BaseDecimals)
}

// AuctionHouse is the encrypted-bid batch auction clearing engine. It owns the
// lot registry and bid ledger for every auction round routed to it. Callers
// are serialized per house; every entry point re-validates lot and bid state
// so out-of-order or duplicate calls fail cleanly.
type AuctionHouse struct {
	mu     sync.Mutex
	cipher BidCipher
	now    func() time.Time
	log    *zap.Logger
	lots   map[uint64]*lotRecord
}

// Option configures an AuctionHouse.
type Option func(*AuctionHouse)

// WithClock injects the time source. Time is sampled from the caller's
// execution context, so tests inject a deterministic clock here.
func WithClock(now func() time.Time) Option {
	return func(h *AuctionHouse) { h.now = now }
}

// WithLogger injects a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(h *AuctionHouse) { h.log = log }
}

// NewAuctionHouse creates an empty clearing engine using the given bid cipher.
func NewAuctionHouse(cipher BidCipher, opts ...Option) *AuctionHouse {
	h := &AuctionHouse{
		cipher: cipher,
		now:    time.Now,
		log:    zap.NewNop(),
		lots:   make(map[uint64]*lotRecord),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// lotSalt binds ciphertexts to a lot id.
func lotSalt(lotID uint64) []byte {
	salt := make([]byte, 8)
	binary.BigEndian.PutUint64(salt, lotID)
	return salt
}

// CreateAuction registers a new lot under the host-assigned id. The host
// routing layer owns lot ids; a duplicate id fails.
func (h *AuctionHouse) CreateAuction(lotID uint64, params AuctionParams, quoteDecimals, baseDecimals uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.lots[lotID]; exists {
		return fmt.Errorf("%w: lot %d already exists", ErrInvalidLotID, lotID)
	}
	if err := validateParams(params, quoteDecimals, baseDecimals); err != nil {
		return err
	}
	if err := h.cipher.ValidatePublicKey(params.PublicKey); err != nil {
		return fmt.Errorf("%w: auction public key: %v", ErrInvalidKey, err)
	}

	h.lots[lotID] = &lotRecord{
		lot: Lot{
			Start:           params.Start,
			Conclusion:      params.Conclusion,
			QuoteDecimals:   quoteDecimals,
			BaseDecimals:    baseDecimals,
			CapacityInQuote: params.CapacityInQuote,
			Capacity:        new(uint256.Int).Set(params.Capacity),
			Sold:            uint256.NewInt(0),
			Purchased:       uint256.NewInt(0),
			PartialPayout:   uint256.NewInt(0),
		},
		data: AuctionData{
			Status:        LotCreated,
			NextBidID:     1,
			MarginalPrice: uint256.NewInt(0),
			MinPrice:      new(uint256.Int).Set(params.MinPrice),
			MinFilled:     new(uint256.Int).Set(params.MinFilled),
			MinBidSize:    new(uint256.Int).Set(params.MinBidSize),
			PublicKey:     append([]byte(nil), params.PublicKey...),
		},
		bids:      make(map[uint64]*Bid),
		encrypted: make(map[uint64]*EncryptedBid),
	}

	h.log.Info("lot created",
		zap.Uint64("lot", lotID),
		zap.String("capacity", params.Capacity.Dec()),
		zap.String("min_price", params.MinPrice.Dec()),
		zap.Time("start", params.Start),
		zap.Time("conclusion", params.Conclusion))
	return nil
}

func validateParams(params AuctionParams, quoteDecimals, baseDecimals uint8) error {
	if quoteDecimals < minTokenDecimals || quoteDecimals > maxTokenDecimals ||
		baseDecimals < minTokenDecimals || baseDecimals > maxTokenDecimals {
		return fmt.Errorf("%w: token decimals must be within [%d, %d]", ErrInvalidParams, minTokenDecimals, maxTokenDecimals)
	}
	if params.CapacityInQuote {
		// Batch clearing allocates base-denominated capacity only.
		return fmt.Errorf("%w: capacity must be denominated in the base token", ErrInvalidParams)
	}
	if !params.Conclusion.After(params.Start) {
		return fmt.Errorf("%w: conclusion must be after start", ErrInvalidParams)
	}
	if params.Capacity == nil || params.Capacity.IsZero() || !FitsUint96(params.Capacity) {
		return fmt.Errorf("%w: capacity", ErrInvalidParams)
	}
	if params.MinPrice == nil || params.MinPrice.IsZero() || !FitsUint96(params.MinPrice) {
		return fmt.Errorf("%w: min price", ErrInvalidParams)
	}
	if params.MinFilled == nil || !FitsUint96(params.MinFilled) || params.MinFilled.Cmp(params.Capacity) > 0 {
		return fmt.Errorf("%w: min filled", ErrInvalidParams)
	}
	if params.MinBidSize == nil || !FitsUint96(params.MinBidSize) {
		return fmt.Errorf("%w: min bid size", ErrInvalidParams)
	}
	return nil
}

// CancelAuction cancels a lot before it starts trading. Conclusion is pulled
// forward to now and remaining capacity is zeroed; bids are unaffected (none
// can exist before start).
func (h *AuctionHouse) CancelAuction(lotID uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return err
	}
	if r.data.Status != LotCreated {
		return fmt.Errorf("%w: cannot cancel %s lot", ErrInvalidState, r.data.Status)
	}
	now := h.now()
	if !now.Before(r.lot.Start) {
		return fmt.Errorf("%w: lot %d already started", ErrMarketNotActive, lotID)
	}

	r.lot.Conclusion = now
	r.lot.Capacity = uint256.NewInt(0)
	r.data.Status = LotCancelled

	h.log.Info("lot cancelled", zap.Uint64("lot", lotID))
	return nil
}

// SubmitBid records an encrypted bid against an active lot and returns its id.
// The implied output quantity is unknown until decryption; submission only
// checks that the commitment is non-zero and the ciphertext is well-formed.
func (h *AuctionHouse) SubmitBid(lotID uint64, bidder, referrer string, amount *uint256.Int, ciphertext, bidPubKey []byte) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return 0, err
	}
	if r.data.Status != LotCreated {
		return 0, fmt.Errorf("%w: lot is %s", ErrMarketNotActive, r.data.Status)
	}
	now := h.now()
	if now.Before(r.lot.Start) || !now.Before(r.lot.Conclusion) {
		return 0, fmt.Errorf("%w: lot %d is outside its trading window", ErrMarketNotActive, lotID)
	}
	if bidder == "" {
		return 0, fmt.Errorf("%w: bidder required", ErrNotPermitted)
	}
	if amount == nil || amount.IsZero() {
		return 0, fmt.Errorf("%w: amount must be non-zero", ErrAmountLessThanMinimum)
	}
	if !FitsUint96(amount) {
		return 0, fmt.Errorf("%w: amount", ErrOverflow)
	}
	if len(ciphertext) != 32 {
		return 0, fmt.Errorf("%w: ciphertext must be 32 bytes", ErrInvalidKey)
	}
	if err := h.cipher.ValidatePublicKey(bidPubKey); err != nil {
		return 0, fmt.Errorf("%w: bid public key: %v", ErrInvalidKey, err)
	}

	bidID := r.data.NextBidID
	r.data.NextBidID++

	r.bids[bidID] = &Bid{
		ID:           bidID,
		Bidder:       bidder,
		Referrer:     referrer,
		Amount:       new(uint256.Int).Set(amount),
		MinAmountOut: uint256.NewInt(0),
		Status:       BidSubmitted,
	}
	r.encrypted[bidID] = &EncryptedBid{
		Ciphertext:   append([]byte(nil), ciphertext...),
		BidPublicKey: append([]byte(nil), bidPubKey...),
	}
	r.bidOrder = append(r.bidOrder, bidID)

	h.log.Debug("bid submitted",
		zap.Uint64("lot", lotID),
		zap.Uint64("bid", bidID),
		zap.String("bidder", bidder),
		zap.String("amount", amount.Dec()))
	return bidID, nil
}

// Purchase is intentionally unsupported: sealed-bid batch lots cannot be
// bought at a posted price.
func (h *AuctionHouse) Purchase(lotID uint64, buyer string, amount *uint256.Int) error {
	return ErrUnsupported
}

// Lot returns a copy of the lot configuration and running totals.
func (h *AuctionHouse) Lot(lotID uint64) (Lot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return Lot{}, err
	}
	lot := r.lot
	lot.Capacity = new(uint256.Int).Set(r.lot.Capacity)
	lot.Sold = new(uint256.Int).Set(r.lot.Sold)
	lot.Purchased = new(uint256.Int).Set(r.lot.Purchased)
	lot.PartialPayout = new(uint256.Int).Set(r.lot.PartialPayout)
	return lot, nil
}

// AuctionData returns a copy of the lot's sealed-bid bookkeeping.
func (h *AuctionHouse) AuctionData(lotID uint64) (AuctionData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return AuctionData{}, err
	}
	data := r.data
	data.MarginalPrice = new(uint256.Int).Set(r.data.MarginalPrice)
	data.MinPrice = new(uint256.Int).Set(r.data.MinPrice)
	data.MinFilled = new(uint256.Int).Set(r.data.MinFilled)
	data.MinBidSize = new(uint256.Int).Set(r.data.MinBidSize)
	data.PublicKey = append([]byte(nil), r.data.PublicKey...)
	data.PrivateKey = append([]byte(nil), r.data.PrivateKey...)
	return data, nil
}

// Bid returns a copy of a bid record.
func (h *AuctionHouse) Bid(lotID, bidID uint64) (Bid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return Bid{}, err
	}
	b, ok := r.bids[bidID]
	if !ok {
		return Bid{}, fmt.Errorf("%w: lot %d bid %d", ErrInvalidBidID, lotID, bidID)
	}
	bid := *b
	bid.Amount = new(uint256.Int).Set(b.Amount)
	bid.MinAmountOut = new(uint256.Int).Set(b.MinAmountOut)
	return bid, nil
}

// EncryptedBid returns a copy of a bid's ciphertext record.
func (h *AuctionHouse) EncryptedBid(lotID, bidID uint64) (EncryptedBid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return EncryptedBid{}, err
	}
	e, ok := r.encrypted[bidID]
	if !ok {
		return EncryptedBid{}, fmt.Errorf("%w: lot %d bid %d", ErrInvalidBidID, lotID, bidID)
	}
	return EncryptedBid{
		Ciphertext:   append([]byte(nil), e.Ciphertext...),
		BidPublicKey: append([]byte(nil), e.BidPublicKey...),
	}, nil
}

// BidCount returns the number of submitted bids for a lot.
func (h *AuctionHouse) BidCount(lotID uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return 0, err
	}
	return uint64(len(r.bidOrder)), nil
}

// DecryptedBidCount returns the number of decrypted bids that remain valid,
// i.e. those queued for settlement.
func (h *AuctionHouse) DecryptedBidCount(lotID uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lot(lotID)
	if err != nil {
		return 0, err
	}
	return uint64(r.queue.Len()), nil
}

func (h *AuctionHouse) lot(lotID uint64) (*lotRecord, error) {
	r, ok := h.lots[lotID]
	if !ok {
		return nil, fmt.Errorf("%w: lot %d", ErrInvalidLotID, lotID)
	}
	return r, nil
}
