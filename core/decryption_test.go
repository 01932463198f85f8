package core

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/batchclear/ecies"
)

func TestSubmitPrivateKey_ZeroBidsMarksDecrypted(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	f.conclude()

	check.NoError(t, f.house.SubmitPrivateKey(testLotID, f.key.PrivateKey, 0))

	data, err := f.house.AuctionData(testLotID)
	check.NoError(t, err)
	check.Equal(t, LotDecrypted, data.Status)
}

func TestSubmitPrivateKey_BeforeConclusionFails(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())

	err := f.house.SubmitPrivateKey(testLotID, f.key.PrivateKey, 0)
	check.True(t, errors.Is(err, ErrMarketNotActive))
}

func TestSubmitPrivateKey_WrongKeyFails(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	f.conclude()

	other, err := ecies.GenerateKeyPair()
	check.NoError(t, err)

	err = f.house.SubmitPrivateKey(testLotID, other.PrivateKey, 0)
	check.True(t, errors.Is(err, ErrInvalidKey))
}

func TestSubmitPrivateKey_TwiceFails(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	f.bid("alice", e18(2), e18(1))
	f.conclude()

	check.NoError(t, f.house.SubmitPrivateKey(testLotID, f.key.PrivateKey, 0))
	err := f.house.SubmitPrivateKey(testLotID, f.key.PrivateKey, 0)
	check.True(t, errors.Is(err, ErrInvalidState))
}

func TestSubmitPrivateKey_InlineBatchDecrypts(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	f.bid("alice", e18(2), e18(1))
	f.bid("bob", e18(2), e18(1))
	f.conclude()

	check.NoError(t, f.house.SubmitPrivateKey(testLotID, f.key.PrivateKey, 2))

	data, err := f.house.AuctionData(testLotID)
	check.NoError(t, err)
	check.Equal(t, LotDecrypted, data.Status)
	check.Equal(t, uint64(2), data.NextDecryptIndex)
}

func TestDecryptAndSortBids_ResumableCursor(t *testing.T) {
	// Five bids decrypted over three bounded calls; the cursor persists
	// between calls and the lot only flips to Decrypted on the last one.
	f := newFixture(t)
	f.createLot(f.params())
	for i := 0; i < 5; i++ {
		f.bid("alice", e18(2), e18(1))
	}
	f.conclude()
	check.NoError(t, f.house.SubmitPrivateKey(testLotID, f.key.PrivateKey, 0))

	check.NoError(t, f.house.DecryptAndSortBids(testLotID, 2))
	data, err := f.house.AuctionData(testLotID)
	check.NoError(t, err)
	check.Equal(t, uint64(2), data.NextDecryptIndex)
	check.Equal(t, LotCreated, data.Status)

	check.NoError(t, f.house.DecryptAndSortBids(testLotID, 2))
	check.NoError(t, f.house.DecryptAndSortBids(testLotID, 2)) // only one bid left

	data, err = f.house.AuctionData(testLotID)
	check.NoError(t, err)
	check.Equal(t, uint64(5), data.NextDecryptIndex)
	check.Equal(t, LotDecrypted, data.Status)

	n, err := f.house.DecryptedBidCount(testLotID)
	check.NoError(t, err)
	check.Equal(t, uint64(5), n)
}

func TestDecryptAndSortBids_RecoversImpliedOutput(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	id := f.bid("alice", e18(4), e18(2))
	f.decryptAll()

	bid, err := f.house.Bid(testLotID, id)
	check.NoError(t, err)
	check.Equal(t, BidDecrypted, bid.Status)
	check.Equal(t, e18(2), bid.MinAmountOut)
}

func TestDecryptAndSortBids_MismatchedKeyInvalidatesWithoutBlocking(t *testing.T) {
	// A bid encrypted under a foreign key decrypts to noise. It is zeroed out
	// but still marked Decrypted, and the rest of the batch completes.
	f := newFixture(t)
	f.createLot(f.params())

	other, err := ecies.GenerateKeyPair()
	check.NoError(t, err)
	ct, pub, err := ecies.Scheme{}.Encrypt(e18(1), other.PublicKey, lotSalt(testLotID))
	check.NoError(t, err)
	badID, err := f.house.SubmitBid(testLotID, "mallory", "", e18(2), ct, pub)
	check.NoError(t, err)

	goodID := f.bid("alice", e18(2), e18(1))
	f.decryptAll()

	bad, err := f.house.Bid(testLotID, badID)
	check.NoError(t, err)
	check.Equal(t, BidDecrypted, bad.Status)
	check.True(t, bad.MinAmountOut.IsZero())

	good, err := f.house.Bid(testLotID, goodID)
	check.NoError(t, err)
	check.Equal(t, e18(1), good.MinAmountOut)

	n, err := f.house.DecryptedBidCount(testLotID)
	check.NoError(t, err)
	check.Equal(t, uint64(1), n)
}

func TestDecryptAndSortBids_CrossLotReplayInvalidated(t *testing.T) {
	// A ciphertext sealed for a different lot id fails the salt binding.
	f := newFixture(t)
	f.createLot(f.params())

	ct, pub, err := ecies.Scheme{}.Encrypt(e18(1), f.key.PublicKey, lotSalt(testLotID+1))
	check.NoError(t, err)
	id, err := f.house.SubmitBid(testLotID, "mallory", "", e18(2), ct, pub)
	check.NoError(t, err)

	f.decryptAll()

	bid, err := f.house.Bid(testLotID, id)
	check.NoError(t, err)
	check.True(t, bid.MinAmountOut.IsZero())
}

func TestDecryptAndSortBids_PriceOverflowInvalidated(t *testing.T) {
	// A one-wei implied output against a huge commitment implies a unit price
	// outside the 96-bit domain; the bid is invalidated, not an error.
	f := newFixture(t)
	f.createLot(f.params())

	id := f.bid("alice", new(uint256.Int).Set(MaxUint96), uint256.NewInt(1))
	ok := f.bid("bob", e18(4), e18(2))
	f.decryptAll()

	bad, err := f.house.Bid(testLotID, id)
	check.NoError(t, err)
	check.True(t, bad.MinAmountOut.IsZero())

	good, err := f.house.Bid(testLotID, ok)
	check.NoError(t, err)
	check.Equal(t, e18(2), good.MinAmountOut)
}

func TestDecryptAndSortBids_BelowMinBidSizeInvalidated(t *testing.T) {
	f := newFixture(t)
	params := f.params()
	params.MinBidSize = e18(1)
	f.createLot(params)

	small := f.bid("alice", e18(2), e17(5)) // implies 0.5 base, below the 1.0 floor
	big := f.bid("bob", e18(2), e18(1))
	f.decryptAll()

	bid, err := f.house.Bid(testLotID, small)
	check.NoError(t, err)
	check.True(t, bid.MinAmountOut.IsZero())

	bid, err = f.house.Bid(testLotID, big)
	check.NoError(t, err)
	check.Equal(t, e18(1), bid.MinAmountOut)
}

func TestDecryptAndSortBids_RequiresKey(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	f.bid("alice", e18(2), e18(1))
	f.conclude()

	err := f.house.DecryptAndSortBids(testLotID, 1)
	check.True(t, errors.Is(err, ErrInvalidState))
}

func TestDecryptAndSortBids_OverflowingSettlementStaysBounded(t *testing.T) {
	// An invalidated overflow bid never corrupts settlement accounting.
	f := newFixture(t)
	f.createLot(f.params())

	f.bid("alice", new(uint256.Int).Set(MaxUint96), uint256.NewInt(1)) // price overflow, invalidated
	f.bid("bob", e18(6), e18(2))                                      // price 3

	s := f.settle()

	// Only bob qualifies, capacity is not exhausted, the lot clears at the floor.
	check.Equal(t, e18(1), s.MarginalPrice)
	check.Equal(t, e18(6), s.TotalIn)
	check.Equal(t, e18(6), s.TotalOut)
}
