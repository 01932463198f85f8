package core

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/cloudx-io/batchclear/ecies"
)

const testLotID = uint64(7)

// e18 returns n scaled to 18 decimals.
func e18(n uint64) *uint256.Int {
	x := uint256.NewInt(n)
	return x.Mul(x, uint256.NewInt(1_000_000_000_000_000_000))
}

// e17 returns n scaled to 17 decimals, for tenths of a whole token.
func e17(n uint64) *uint256.Int {
	x := uint256.NewInt(n)
	return x.Mul(x, uint256.NewInt(100_000_000_000_000_000))
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

// fixture wires an AuctionHouse with a deterministic clock and a fresh
// auction key pair.
type fixture struct {
	t     *testing.T
	house *AuctionHouse
	clock *testClock
	key   *ecies.KeyPair

	start      time.Time
	conclusion time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := ecies.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &testClock{now: start.Add(-time.Hour)}
	return &fixture{
		t:          t,
		house:      NewAuctionHouse(ecies.Scheme{}, WithClock(clock.Now), WithLogger(zap.NewNop())),
		clock:      clock,
		key:        key,
		start:      start,
		conclusion: start.Add(24 * time.Hour),
	}
}

func (f *fixture) params() AuctionParams {
	return AuctionParams{
		Start:      f.start,
		Conclusion: f.conclusion,
		Capacity:   e18(10),
		MinPrice:   e18(1),
		MinFilled:  e18(1),
		MinBidSize: uint256.NewInt(0),
		PublicKey:  f.key.PublicKey,
	}
}

// createLot registers the test lot and moves the clock inside its window.
func (f *fixture) createLot(params AuctionParams) {
	f.t.Helper()
	if err := f.house.CreateAuction(testLotID, params, 18, 18); err != nil {
		f.t.Fatalf("create auction: %v", err)
	}
	f.clock.now = f.start.Add(time.Minute)
}

// encryptOut seals a minimum-output quantity to the lot's auction key.
func (f *fixture) encryptOut(minAmountOut *uint256.Int) (ciphertext, bidPub []byte) {
	f.t.Helper()
	ct, pub, err := ecies.Scheme{}.Encrypt(minAmountOut, f.key.PublicKey, lotSalt(testLotID))
	if err != nil {
		f.t.Fatalf("encrypt bid: %v", err)
	}
	return ct, pub
}

// bid submits an encrypted bid and returns its id.
func (f *fixture) bid(bidder string, amountIn, minAmountOut *uint256.Int) uint64 {
	f.t.Helper()
	ct, pub := f.encryptOut(minAmountOut)
	id, err := f.house.SubmitBid(testLotID, bidder, "", amountIn, ct, pub)
	if err != nil {
		f.t.Fatalf("submit bid: %v", err)
	}
	return id
}

// conclude moves the clock past the lot conclusion.
func (f *fixture) conclude() {
	f.clock.now = f.conclusion.Add(time.Second)
}

// decryptAll reveals the private key and decrypts every bid in one batch.
func (f *fixture) decryptAll() {
	f.t.Helper()
	f.conclude()
	if err := f.house.SubmitPrivateKey(testLotID, f.key.PrivateKey, 0); err != nil {
		f.t.Fatalf("submit private key: %v", err)
	}
	n, err := f.house.BidCount(testLotID)
	if err != nil {
		f.t.Fatalf("bid count: %v", err)
	}
	if n == 0 {
		return
	}
	if err := f.house.DecryptAndSortBids(testLotID, n); err != nil {
		f.t.Fatalf("decrypt bids: %v", err)
	}
}

// settle runs the full decrypt-then-settle flow.
func (f *fixture) settle() *Settlement {
	f.t.Helper()
	f.decryptAll()
	s, err := f.house.Settle(testLotID)
	if err != nil {
		f.t.Fatalf("settle: %v", err)
	}
	return s
}
