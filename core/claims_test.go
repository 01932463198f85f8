package core

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestClaimBid_WinnerPayout(t *testing.T) {
	// Clearing at the minimum price of 1, a 2-quote winner receives 2 base.
	f := newFixture(t)
	f.createLot(f.params())
	id := f.bid("alice", e18(2), e18(1))
	f.settle()

	claim, err := f.house.ClaimBid(testLotID, id, "alice")
	check.NoError(t, err)
	check.Equal(t, id, claim.BidID)
	check.Equal(t, e18(2), claim.Paid)
	check.True(t, claim.Refund.IsZero())
	check.Equal(t, e18(2), claim.Payout)

	bid, err := f.house.Bid(testLotID, id)
	check.NoError(t, err)
	check.Equal(t, BidClaimed, bid.Status)
}

func TestClaimBid_LoserRefund(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	f.bid("alice", e18(50), e18(10)) // price 5, takes all capacity
	loser := f.bid("bob", e18(2), e18(2))
	f.settle()

	claim, err := f.house.ClaimBid(testLotID, loser, "bob")
	check.NoError(t, err)
	check.Equal(t, e18(2), claim.Paid)
	check.Equal(t, e18(2), claim.Refund)
	check.True(t, claim.Payout.IsZero())
}

func TestClaimBid_PartialFill(t *testing.T) {
	// The marginal bid pays only its filled portion.
	f := newFixture(t)
	f.createLot(f.params())
	f.bid("alice", e18(19), e17(76))
	bobID := f.bid("bob", e18(4), e18(2))
	f.settle()

	claim, err := f.house.ClaimBid(testLotID, bobID, "bob")
	check.NoError(t, err)
	check.Equal(t, e18(1), claim.Paid)   // 4 committed, 3 refunded
	check.Equal(t, e18(3), claim.Refund)
	check.Equal(t, e17(5), claim.Payout)
}

func TestClaimBid_TwiceFails(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	id := f.bid("alice", e18(2), e18(1))
	f.settle()

	_, err := f.house.ClaimBid(testLotID, id, "alice")
	check.NoError(t, err)

	_, err = f.house.ClaimBid(testLotID, id, "alice")
	check.True(t, errors.Is(err, ErrInvalidState))
}

func TestClaimBid_WrongCaller(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	id := f.bid("alice", e18(2), e18(1))
	f.settle()

	_, err := f.house.ClaimBid(testLotID, id, "mallory")
	check.True(t, errors.Is(err, ErrNotPermitted))
}

func TestClaimBid_BeforeSettlementFails(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	id := f.bid("alice", e18(2), e18(1))
	f.decryptAll()

	_, err := f.house.ClaimBid(testLotID, id, "alice")
	check.True(t, errors.Is(err, ErrInvalidState))
}

func TestClaimBid_UnknownBid(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	f.bid("alice", e18(2), e18(1))
	f.settle()

	_, err := f.house.ClaimBid(testLotID, 99, "alice")
	check.True(t, errors.Is(err, ErrInvalidBidID))
}

func TestClaimBid_NoSaleRefundsEveryone(t *testing.T) {
	// A no-sale lot settles with the sentinel marginal price; every bid, no
	// matter how aggressive, is refunded in full.
	f := newFixture(t)
	params := f.params()
	params.MinFilled = e18(9)
	f.createLot(params)
	id := f.bid("alice", e18(2), e18(1))
	f.settle()

	claim, err := f.house.ClaimBid(testLotID, id, "alice")
	check.NoError(t, err)
	check.Equal(t, e18(2), claim.Refund)
	check.True(t, claim.Payout.IsZero())
}

func TestClaimBid_InvalidatedBidRefunded(t *testing.T) {
	f := newFixture(t)
	params := f.params()
	params.MinBidSize = e18(1)
	f.createLot(params)

	dust := f.bid("alice", e18(2), e17(1)) // below minimum bid size
	f.bid("bob", e18(4), e18(2))
	f.settle()

	claim, err := f.house.ClaimBid(testLotID, dust, "alice")
	check.NoError(t, err)
	check.Equal(t, e18(2), claim.Refund)
	check.True(t, claim.Payout.IsZero())
}

func TestClaimBids_MixedBatch(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	winner := f.bid("alice", e18(50), e18(10)) // price 5
	loser := f.bid("bob", e18(2), e18(2))      // price 1
	f.settle()

	claims, err := f.house.ClaimBids(testLotID, []uint64{loser, winner})
	check.NoError(t, err)
	check.Equal(t, 2, len(claims))

	check.Equal(t, loser, claims[0].BidID)
	check.Equal(t, e18(2), claims[0].Refund)
	check.True(t, claims[0].Payout.IsZero())

	check.Equal(t, winner, claims[1].BidID)
	check.True(t, claims[1].Refund.IsZero())
	check.Equal(t, e18(10), claims[1].Payout)
}

func TestClaimBids_AtomicOnFailure(t *testing.T) {
	// A batch containing an unknown id fails without claiming the valid ones.
	f := newFixture(t)
	f.createLot(f.params())
	id := f.bid("alice", e18(2), e18(1))
	f.settle()

	_, err := f.house.ClaimBids(testLotID, []uint64{id, 99})
	check.True(t, errors.Is(err, ErrInvalidBidID))

	bid, err := f.house.Bid(testLotID, id)
	check.NoError(t, err)
	check.Equal(t, BidDecrypted, bid.Status)

	// The untouched bid remains claimable.
	_, err = f.house.ClaimBid(testLotID, id, "alice")
	check.NoError(t, err)
}

func TestClaimBids_DuplicateIDFails(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	id := f.bid("alice", e18(2), e18(1))
	f.settle()

	_, err := f.house.ClaimBids(testLotID, []uint64{id, id})
	check.True(t, errors.Is(err, ErrInvalidState))

	bid, err := f.house.Bid(testLotID, id)
	check.NoError(t, err)
	check.Equal(t, BidDecrypted, bid.Status)
}

func TestClaimProceeds_OnceThenClaimed(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	f.bid("alice", e18(19), e17(76))
	f.bid("bob", e18(4), e18(2))
	f.settle()

	p, err := f.house.ClaimProceeds(testLotID)
	check.NoError(t, err)
	check.Equal(t, e18(20), p.Purchased)
	check.Equal(t, e18(10), p.Sold)
	check.Equal(t, e17(5), p.PartialPayout)

	data, err := f.house.AuctionData(testLotID)
	check.NoError(t, err)
	check.Equal(t, LotClaimed, data.Status)

	_, err = f.house.ClaimProceeds(testLotID)
	check.True(t, errors.Is(err, ErrInvalidState))
}

func TestClaimBid_AfterProceedsStillAllowed(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	id := f.bid("alice", e18(2), e18(1))
	f.settle()

	_, err := f.house.ClaimProceeds(testLotID)
	check.NoError(t, err)

	claim, err := f.house.ClaimBid(testLotID, id, "alice")
	check.NoError(t, err)
	check.Equal(t, e18(2), claim.Payout)
}

func TestClaimCuratorPayout_OncePerLot(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())
	f.bid("alice", e18(2), e18(1))
	f.settle()

	sold, err := f.house.ClaimCuratorPayout(testLotID)
	check.NoError(t, err)
	check.Equal(t, e18(2), sold)

	_, err = f.house.ClaimCuratorPayout(testLotID)
	check.True(t, errors.Is(err, ErrInvalidState))
}

func TestClaimCuratorPayout_CancelledLotYieldsZero(t *testing.T) {
	f := newFixture(t)
	if err := f.house.CreateAuction(testLotID, f.params(), 18, 18); err != nil {
		t.Fatalf("create auction: %v", err)
	}
	check.NoError(t, f.house.CancelAuction(testLotID))

	sold, err := f.house.ClaimCuratorPayout(testLotID)
	check.NoError(t, err)
	check.True(t, sold.IsZero())
}

func TestClaimCuratorPayout_BeforeSettlementFails(t *testing.T) {
	f := newFixture(t)
	f.createLot(f.params())

	_, err := f.house.ClaimCuratorPayout(testLotID)
	check.True(t, errors.Is(err, ErrInvalidState))
}
