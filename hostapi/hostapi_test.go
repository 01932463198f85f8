package hostapi

import (
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/holiman/uint256"
	"github.com/peterldowns/testy/check"
)

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("1.5", 18)
	check.NoError(t, err)
	check.Equal(t, uint256.MustFromDecimal("1500000000000000000"), got)

	got, err = ParseAmount("0.000001", 6)
	check.NoError(t, err)
	check.Equal(t, uint256.NewInt(1), got)

	got, err = ParseAmount("42", 1)
	check.NoError(t, err)
	check.Equal(t, uint256.NewInt(420), got)
}

func TestParseAmount_Rejections(t *testing.T) {
	_, err := ParseAmount("-1", 18)
	check.Equal(t, ErrNegativeAmount, err, cmpopts.EquateErrors())

	// More fractional digits than the token precision carries.
	_, err = ParseAmount("0.0000001", 6)
	check.Error(t, err)

	_, err = ParseAmount("not a number", 18)
	check.Error(t, err)
}

func TestRenderAmount(t *testing.T) {
	check.Equal(t, "1.5", RenderAmount(uint256.MustFromDecimal("1500000000000000000"), 18))
	check.Equal(t, "0.000001", RenderAmount(uint256.NewInt(1), 6))
	check.Equal(t, "0", RenderAmount(uint256.NewInt(0), 18))
}

func TestAmountRoundTrip(t *testing.T) {
	for _, s := range []string{"0.1", "123456.789", "1"} {
		x, err := ParseAmount(s, 9)
		check.NoError(t, err)
		check.Equal(t, s, RenderAmount(x, 9))
	}
}

func TestSettlementReportRoundTrip(t *testing.T) {
	r := &SettlementReport{
		LotID:         7,
		MarginalPrice: "2000000000000000000",
		MarginalBidID: 2,
		TotalIn:       "20000000000000000000",
		TotalOut:      "10000000000000000000",
		Capacity:      "10000000000000000000",
		Sale:          true,
		BidCommitments: [][]byte{
			BidCommitment(7, 1, []byte("ct-1"), []byte("pk-1")),
			BidCommitment(7, 2, []byte("ct-2"), []byte("pk-2")),
		},
		Nonce: []byte{1, 2, 3, 4},
	}

	b, err := r.Encode()
	check.NoError(t, err)

	got, err := DecodeSettlementReport(b)
	check.NoError(t, err)
	check.Equal(t, r, got)
}

func TestBidCommitment_BindsLotAndBid(t *testing.T) {
	ct := []byte("ciphertext")
	pk := []byte("pubkey")

	base := BidCommitment(7, 1, ct, pk)
	check.Equal(t, base, BidCommitment(7, 1, ct, pk))
	check.NotEqual(t, base, BidCommitment(8, 1, ct, pk))
	check.NotEqual(t, base, BidCommitment(7, 2, ct, pk))
	check.NotEqual(t, base, BidCommitment(7, 1, []byte("other"), pk))
}
