package main

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/cloudx-io/batchclear/core"
	"github.com/cloudx-io/batchclear/hostapi"
)

// handleRequest routes one decoded request to its handler and returns the
// response value to encode. Every request gets a correlation id carried in
// both the logs and the response.
func (s *Server) handleRequest(raw []byte) any {
	requestID := uuid.NewString()

	var base hostapi.BaseRequest
	if err := json.Unmarshal(raw, &base); err != nil {
		s.log.Error("failed to decode request", zap.String("request_id", requestID), zap.Error(err))
		return errorAck(requestID, "error", fmt.Errorf("malformed request: %w", err))
	}

	log := s.log.With(zap.String("request_id", requestID), zap.String("type", base.Type))
	log.Info("request received")

	switch base.Type {
	case hostapi.TypePing:
		return hostapi.Ack{Type: "pong", RequestID: requestID, Success: true, Message: "clearing daemon is healthy"}

	case hostapi.TypeCreateAuction:
		var req hostapi.CreateAuctionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return s.handleCreateAuction(requestID, req)

	case hostapi.TypeCancelAuction:
		var req hostapi.CancelAuctionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return ack(requestID, base.Type, s.house.CancelAuction(req.LotID))

	case hostapi.TypeSubmitBid:
		var req hostapi.SubmitBidRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return s.handleSubmitBid(requestID, req)

	case hostapi.TypeSubmitPrivateKey:
		var req hostapi.SubmitPrivateKeyRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return ack(requestID, base.Type, s.house.SubmitPrivateKey(req.LotID, req.PrivateKey, req.DecryptBatch))

	case hostapi.TypeDecryptBids:
		var req hostapi.DecryptBidsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return s.handleDecryptBids(requestID, req)

	case hostapi.TypeSettle:
		var req hostapi.SettleRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return s.handleSettle(requestID, req, log)

	case hostapi.TypeClaimBid:
		var req hostapi.ClaimBidRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return s.handleClaimBid(requestID, req)

	case hostapi.TypeClaimBids:
		var req hostapi.ClaimBidsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return s.handleClaimBids(requestID, req)

	case hostapi.TypeClaimProceeds:
		var req hostapi.ClaimProceedsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return s.handleClaimProceeds(requestID, req)

	case hostapi.TypeClaimCuratorPayout:
		var req hostapi.ClaimCuratorPayoutRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return s.handleClaimCuratorPayout(requestID, req)

	case hostapi.TypeLotStatus:
		var req hostapi.LotStatusRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorAck(requestID, base.Type, err)
		}
		return s.handleLotStatus(requestID, req)

	default:
		return errorAck(requestID, "error", fmt.Errorf("unknown request type: %s", base.Type))
	}
}

func ack(requestID, typ string, err error) hostapi.Ack {
	if err != nil {
		return errorAck(requestID, typ, err)
	}
	return hostapi.Ack{Type: typ, RequestID: requestID, Success: true}
}

func errorAck(requestID, typ string, err error) hostapi.Ack {
	return hostapi.Ack{Type: typ, RequestID: requestID, Success: false, Message: err.Error()}
}

func (s *Server) handleCreateAuction(requestID string, req hostapi.CreateAuctionRequest) any {
	capacity, err := hostapi.ParseAmount(req.Capacity, req.BaseDecimals)
	if err != nil {
		return errorAck(requestID, req.Type, fmt.Errorf("capacity: %w", err))
	}
	minFilled, err := hostapi.ParseAmount(req.MinFilled, req.BaseDecimals)
	if err != nil {
		return errorAck(requestID, req.Type, fmt.Errorf("min_filled: %w", err))
	}
	minPrice, err := hostapi.ParseAmount(req.MinPrice, req.QuoteDecimals)
	if err != nil {
		return errorAck(requestID, req.Type, fmt.Errorf("min_price: %w", err))
	}
	minBidSize, err := hostapi.ParseAmount(req.MinBidSize, req.QuoteDecimals)
	if err != nil {
		return errorAck(requestID, req.Type, fmt.Errorf("min_bid_size: %w", err))
	}

	err = s.house.CreateAuction(req.LotID, core.AuctionParams{
		Start:      req.Start,
		Conclusion: req.Conclusion,
		Capacity:   capacity,
		MinPrice:   minPrice,
		MinFilled:  minFilled,
		MinBidSize: minBidSize,
		PublicKey:  req.PublicKey,
	}, req.QuoteDecimals, req.BaseDecimals)
	return ack(requestID, req.Type, err)
}

func (s *Server) handleSubmitBid(requestID string, req hostapi.SubmitBidRequest) any {
	lot, err := s.house.Lot(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	amount, err := hostapi.ParseAmount(req.Amount, lot.QuoteDecimals)
	if err != nil {
		return errorAck(requestID, req.Type, fmt.Errorf("amount: %w", err))
	}

	bidID, err := s.house.SubmitBid(req.LotID, req.Bidder, req.Referrer, amount, req.Ciphertext, req.BidPublicKey)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	return hostapi.SubmitBidResponse{Type: req.Type, RequestID: requestID, Success: true, BidID: bidID}
}

func (s *Server) handleDecryptBids(requestID string, req hostapi.DecryptBidsRequest) any {
	if err := s.house.DecryptAndSortBids(req.LotID, req.Num); err != nil {
		return errorAck(requestID, req.Type, err)
	}
	data, err := s.house.AuctionData(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	bidCount, err := s.house.BidCount(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	valid, err := s.house.DecryptedBidCount(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	return hostapi.DecryptBidsResponse{
		Type:           req.Type,
		RequestID:      requestID,
		Success:        true,
		NextIndex:      data.NextDecryptIndex,
		BidCount:       bidCount,
		DecryptedValid: valid,
		LotStatus:      data.Status.String(),
	}
}

func (s *Server) handleSettle(requestID string, req hostapi.SettleRequest, log *zap.Logger) any {
	start := time.Now()

	// Capacity is zeroed by settlement, so it is captured first for the report.
	lot, err := s.house.Lot(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	capacity := lot.Capacity

	settlement, err := s.house.Settle(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}

	summary := settlementSummary(settlement, lot.QuoteDecimals, lot.BaseDecimals)

	report, err := s.buildReport(req.LotID, settlement, capacity, summary.Sale)
	if err != nil {
		// The lot is settled; report the outcome even if signing failed.
		log.Error("settlement report signing failed", zap.Error(err))
		return hostapi.SettleResponse{
			Type:           req.Type,
			RequestID:      requestID,
			Success:        true,
			Message:        fmt.Sprintf("settled, but report signing failed: %v", err),
			Settlement:     summary,
			ProcessingTime: time.Since(start).Milliseconds(),
		}
	}

	log.Info("lot settled",
		zap.Uint64("lot", req.LotID),
		zap.Bool("sale", summary.Sale),
		zap.Int("report_bytes", len(report)))

	return hostapi.SettleResponse{
		Type:           req.Type,
		RequestID:      requestID,
		Success:        true,
		Settlement:     summary,
		Report:         report,
		ProcessingTime: time.Since(start).Milliseconds(),
	}
}

// buildReport assembles and signs the COSE settlement report.
func (s *Server) buildReport(lotID uint64, settlement *core.Settlement, capacity *uint256.Int, sale bool) ([]byte, error) {
	bidCount, err := s.house.BidCount(lotID)
	if err != nil {
		return nil, err
	}
	commitments := make([][]byte, 0, bidCount)
	for bidID := uint64(1); bidID <= bidCount; bidID++ {
		enc, err := s.house.EncryptedBid(lotID, bidID)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, hostapi.BidCommitment(lotID, bidID, enc.Ciphertext, enc.BidPublicKey))
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}

	payload, err := (&hostapi.SettlementReport{
		LotID:          lotID,
		Timestamp:      time.Now().UTC(),
		MarginalPrice:  settlement.MarginalPrice.Dec(),
		MarginalBidID:  settlement.MarginalBidID,
		TotalIn:        settlement.TotalIn.Dec(),
		TotalOut:       settlement.TotalOut.Dec(),
		Capacity:       capacity.Dec(),
		Sale:           sale,
		BidCommitments: commitments,
		Nonce:          nonce,
	}).Encode()
	if err != nil {
		return nil, err
	}
	return s.signer.Sign(payload)
}

func (s *Server) handleClaimBid(requestID string, req hostapi.ClaimBidRequest) any {
	lot, err := s.house.Lot(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	claim, err := s.house.ClaimBid(req.LotID, req.BidID, req.Caller)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	return hostapi.ClaimResponse{
		Type:      req.Type,
		RequestID: requestID,
		Success:   true,
		Claims:    []hostapi.BidClaimSummary{claimSummary(claim, lot.QuoteDecimals, lot.BaseDecimals)},
	}
}

func (s *Server) handleClaimBids(requestID string, req hostapi.ClaimBidsRequest) any {
	lot, err := s.house.Lot(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	claims, err := s.house.ClaimBids(req.LotID, req.BidIDs)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	summaries := make([]hostapi.BidClaimSummary, 0, len(claims))
	for _, claim := range claims {
		summaries = append(summaries, claimSummary(claim, lot.QuoteDecimals, lot.BaseDecimals))
	}
	return hostapi.ClaimResponse{Type: req.Type, RequestID: requestID, Success: true, Claims: summaries}
}

func (s *Server) handleClaimProceeds(requestID string, req hostapi.ClaimProceedsRequest) any {
	lot, err := s.house.Lot(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	proceeds, err := s.house.ClaimProceeds(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	return hostapi.ClaimProceedsResponse{
		Type:          req.Type,
		RequestID:     requestID,
		Success:       true,
		Purchased:     hostapi.RenderAmount(proceeds.Purchased, lot.QuoteDecimals),
		Sold:          hostapi.RenderAmount(proceeds.Sold, lot.BaseDecimals),
		PartialPayout: hostapi.RenderAmount(proceeds.PartialPayout, lot.BaseDecimals),
	}
}

func (s *Server) handleClaimCuratorPayout(requestID string, req hostapi.ClaimCuratorPayoutRequest) any {
	lot, err := s.house.Lot(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	sold, err := s.house.ClaimCuratorPayout(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	return hostapi.ClaimCuratorPayoutResponse{
		Type:      req.Type,
		RequestID: requestID,
		Success:   true,
		Sold:      hostapi.RenderAmount(sold, lot.BaseDecimals),
	}
}

func (s *Server) handleLotStatus(requestID string, req hostapi.LotStatusRequest) any {
	lot, err := s.house.Lot(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	data, err := s.house.AuctionData(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	bidCount, err := s.house.BidCount(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	valid, err := s.house.DecryptedBidCount(req.LotID)
	if err != nil {
		return errorAck(requestID, req.Type, err)
	}
	return hostapi.LotStatusResponse{
		Type:             req.Type,
		RequestID:        requestID,
		Success:          true,
		Status:           data.Status.String(),
		BidCount:         bidCount,
		DecryptedValid:   valid,
		Capacity:         hostapi.RenderAmount(lot.Capacity, lot.BaseDecimals),
		Sold:             hostapi.RenderAmount(lot.Sold, lot.BaseDecimals),
		Purchased:        hostapi.RenderAmount(lot.Purchased, lot.QuoteDecimals),
		MarginalPrice:    data.MarginalPrice.Dec(),
		MarginalBidID:    data.MarginalBidID,
		NextDecryptIndex: data.NextDecryptIndex,
	}
}

func settlementSummary(settlement *core.Settlement, quoteDecimals, baseDecimals uint8) *hostapi.SettlementSummary {
	sale := settlement.MarginalPrice.Cmp(core.MaxUint96) != 0
	summary := &hostapi.SettlementSummary{
		MarginalPrice:    settlement.MarginalPrice.Dec(),
		MarginalPriceDec: hostapi.RenderAmount(settlement.MarginalPrice, quoteDecimals),
		MarginalBidID:    settlement.MarginalBidID,
		TotalIn:          settlement.TotalIn.Dec(),
		TotalInDec:       hostapi.RenderAmount(settlement.TotalIn, quoteDecimals),
		TotalOut:         settlement.TotalOut.Dec(),
		TotalOutDec:      hostapi.RenderAmount(settlement.TotalOut, baseDecimals),
		Sale:             sale,
	}
	if settlement.PartialFill != nil {
		summary.PartialFill = &hostapi.PartialFillSummary{
			BidID:    settlement.PartialFill.BidID,
			Bidder:   settlement.PartialFill.Bidder,
			Referrer: settlement.PartialFill.Referrer,
			Refund:   hostapi.RenderAmount(settlement.PartialFill.Refund, quoteDecimals),
			Payout:   hostapi.RenderAmount(settlement.PartialFill.Payout, baseDecimals),
		}
	}
	return summary
}

func claimSummary(claim core.BidClaim, quoteDecimals, baseDecimals uint8) hostapi.BidClaimSummary {
	return hostapi.BidClaimSummary{
		BidID:    claim.BidID,
		Bidder:   claim.Bidder,
		Referrer: claim.Referrer,
		Paid:     hostapi.RenderAmount(claim.Paid, quoteDecimals),
		Refund:   hostapi.RenderAmount(claim.Refund, quoteDecimals),
		Payout:   hostapi.RenderAmount(claim.Payout, baseDecimals),
	}
}
