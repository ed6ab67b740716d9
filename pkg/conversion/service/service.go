// Package service implements the conversion state machine: creation and
// replay of conversion requests, evidence attachment, claim authorization and
// expiry. All durable state lives in the store; every operation is one
// short-lived unit of work.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openbridge/converter-core/internal/metrics"
	apperrors "github.com/openbridge/converter-core/pkg/app/errors"
	"github.com/openbridge/converter-core/pkg/conversion"
	"github.com/openbridge/converter-core/pkg/conversionstore"
	"github.com/openbridge/converter-core/pkg/evidence"
	"github.com/openbridge/converter-core/pkg/signer"
)

// Authority verifies request and claim signatures and issues contract
// authorization signatures.
type Authority interface {
	ValidateRequestSignature(ctx context.Context, req signer.Request) error
	ValidateClaimSignature(claim signer.Claim) error
	IssueSignature(
		kind conversion.SignatureKind,
		userAddress string,
		conversionID string,
		amount decimal.Decimal,
		contractAddress string,
		chainID int64,
	) (string, error)
}

// EvidenceValidator checks a submitted transaction hash against conversion
// state and on-chain evidence.
type EvidenceValidator interface {
	Validate(
		ctx context.Context,
		detail conversion.Detail,
		txHash string,
		submittedBy conversion.CreatedBy,
	) (*evidence.NextActivity, error)
}

// DepositAddressSource provides the deposit address for UTXO-source wallet
// pairs.
type DepositAddressSource interface {
	DepositAddress(ctx context.Context) (string, error)
}

// DepositAddressFunc adapts a function to the DepositAddressSource interface.
type DepositAddressFunc func(ctx context.Context) (string, error)

func (f DepositAddressFunc) DepositAddress(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticDepositAddress returns a source that always hands out the same
// bridge-managed address.
func StaticDepositAddress(address string) DepositAddressSource {
	return DepositAddressFunc(func(context.Context) (string, error) {
		return address, nil
	})
}

// ReportPublisher delivers status report payloads downstream.
type ReportPublisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Service owns the conversion lifecycle.
type Service struct {
	store       conversionstore.Store
	authority   Authority
	evidence    EvidenceValidator
	addresses   DepositAddressSource
	reports     ReportPublisher
	expiryHours map[string]int
	logger      *zap.Logger
}

// NewService creates a conversion Service. expiryHours maps a source chain
// name to the staleness window after which its pending conversions expire.
func NewService(
	store conversionstore.Store,
	authority Authority,
	evidenceValidator EvidenceValidator,
	addresses DepositAddressSource,
	reports ReportPublisher,
	expiryHours map[string]int,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:       store,
		authority:   authority,
		evidence:    evidenceValidator,
		addresses:   addresses,
		reports:     reports,
		expiryHours: expiryHours,
		logger:      logger,
	}
}

// NewExpirer builds a Service restricted to the expiry and reporting
// operations the sweeper process runs; the request-handling collaborators are
// not wired.
func NewExpirer(
	store conversionstore.Store,
	reports ReportPublisher,
	expiryHours map[string]int,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:       store,
		reports:     reports,
		expiryHours: expiryHours,
		logger:      logger,
	}
}

// CreateRequest is a signed conversion request.
type CreateRequest struct {
	TokenPairID string
	Amount      decimal.Decimal
	FromAddress string
	ToAddress   string
	BlockNumber uint64
	Signature   string
	CreatedBy   conversion.CreatedBy
}

// CreateResult is the caller-visible outcome of a conversion request.
// Signature is set only on the contract-deposit path (account-based source),
// DepositAddress only on the UTXO-source path.
type CreateResult struct {
	ConversionID   string
	DepositAmount  decimal.Decimal
	FeeAmount      decimal.Decimal
	ClaimAmount    decimal.Decimal
	DepositAddress *string
	Signature      *string
}

// CreateConversionRequest validates a signed request and creates or reuses a
// conversion for its wallet pair. All validation happens before any mutation.
func (s *Service) CreateConversionRequest(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	pair, err := s.store.TokenPairByID(ctx, req.TokenPairID)
	if err != nil {
		if errors.Is(err, conversion.ErrNotFound) {
			return nil, apperrors.BadRequestError(
				fmt.Errorf("unknown token pair %s", req.TokenPairID),
				apperrors.CodeInvalidTokenPairID, "token pair does not exist")
		}
		return nil, apperrors.DependencyError(fmt.Errorf("failed to look up token pair: %w", err))
	}

	from := pair.FromToken.Blockchain
	to := pair.ToToken.Blockchain
	if !conversion.SupportedPair(from, to) {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("unsupported chain pair %s -> %s", from.Name, to.Name),
			apperrors.CodeUnsupportedChainPair, "conversion between these chains is not supported")
	}

	if req.Amount.LessThan(pair.MinValue) || req.Amount.GreaterThan(pair.MaxValue) {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("amount %s outside bounds [%s, %s]", req.Amount, pair.MinValue, pair.MaxValue),
			apperrors.CodeAmountOutOfBounds, "amount is outside the allowed range for this token pair")
	}

	// The signing party is whichever side lives on the account-based chain.
	accountChain := from
	if !from.IsAccountBased() {
		accountChain = to
	}
	err = s.authority.ValidateRequestSignature(ctx, signer.Request{
		TokenPairID:  pair.ID,
		Amount:       req.Amount,
		FromAddress:  req.FromAddress,
		ToAddress:    req.ToAddress,
		BlockNumber:  req.BlockNumber,
		Signature:    req.Signature,
		ChainID:      accountChain.ChainID,
		SignerIsFrom: from.IsAccountBased(),
	})
	if err != nil {
		return nil, err
	}

	fee := decimal.Zero
	if pair.ConversionFeePct != nil {
		fee = req.Amount.Mul(*pair.ConversionFeePct).Div(decimal.NewFromInt(100))
	}
	claimAmount := req.Amount.Sub(fee)

	var (
		conv   *conversion.Conversion
		wp     *conversion.WalletPair
		reused bool
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx conversionstore.Store) error {
		wp, err = tx.EnsureWalletPair(ctx, &conversion.WalletPair{
			ID:          newID(),
			TokenPairID: pair.ID,
			FromAddress: req.FromAddress,
			ToAddress:   req.ToAddress,
		})
		if err != nil {
			return err
		}

		if from.Family == conversion.FamilyUTXO && wp.DepositAddress == nil {
			address, err := s.addresses.DepositAddress(ctx)
			if err != nil {
				return fmt.Errorf("failed to obtain deposit address: %w", err)
			}
			if err := tx.SetDepositAddress(ctx, wp.RowID, address); err != nil {
				return err
			}
			wp.DepositAddress = &address
		}

		conv, reused, err = s.strategyFor(from.Family)(ctx, tx, wp, req, fee, claimAmount)
		return err
	})
	if err != nil {
		if apperrors.IsInternalError(err) {
			return nil, apperrors.DependencyError(fmt.Errorf("failed to create conversion: %w", err))
		}
		return nil, err
	}

	if reused {
		metrics.ConversionsReused.WithLabelValues(from.Name).Inc()
	} else {
		metrics.ConversionsCreated.WithLabelValues(from.Name, string(req.CreatedBy)).Inc()
	}

	result := &CreateResult{
		ConversionID:   conv.ID,
		DepositAmount:  conv.DepositAmount,
		FeeAmount:      conv.FeeAmount,
		ClaimAmount:    conv.ClaimAmount,
		DepositAddress: wp.DepositAddress,
	}

	// Without a dedicated deposit address the deposit happens through the
	// bridge contract, which verifies a CONVERSION_OUT authorization.
	if wp.DepositAddress == nil {
		sig, err := s.authority.IssueSignature(
			conversion.SignatureConversionOut,
			req.FromAddress,
			conv.ID,
			conv.DepositAmount,
			pair.FromToken.ContractAddress,
			from.ChainID,
		)
		if err != nil {
			return nil, apperrors.GeneralError(err)
		}
		result.Signature = &sig
	}

	s.logger.Info("Conversion request handled",
		zap.String("conversion_id", conv.ID),
		zap.String("source_chain", from.Name),
		zap.Bool("reused", reused))
	return result, nil
}

// createOrReuse decides, per source chain family, whether a request maps to a
// fresh conversion or replays an existing pending one.
type createOrReuse func(
	ctx context.Context,
	tx conversionstore.Store,
	wp *conversion.WalletPair,
	req CreateRequest,
	fee, claimAmount decimal.Decimal,
) (*conversion.Conversion, bool, error)

func (s *Service) strategyFor(family conversion.ChainFamily) createOrReuse {
	if family == conversion.FamilyAccount {
		return s.alwaysCreate
	}
	return s.reuseOrRecreate
}

// alwaysCreate: each signed request on an account-based source is a one-shot
// authorization tied to its signature, so replay never applies.
func (s *Service) alwaysCreate(
	ctx context.Context,
	tx conversionstore.Store,
	wp *conversion.WalletPair,
	req CreateRequest,
	fee, claimAmount decimal.Decimal,
) (*conversion.Conversion, bool, error) {
	conv := buildConversion(wp, req, fee, claimAmount)
	if err := tx.CreateConversion(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

// reuseOrRecreate: a UTXO-source request replays the latest pending conversion
// when the agent resubmits unchanged amounts; an end-user resubmission or a
// changed amount expires the pending conversion and creates a new one.
func (s *Service) reuseOrRecreate(
	ctx context.Context,
	tx conversionstore.Store,
	wp *conversion.WalletPair,
	req CreateRequest,
	fee, claimAmount decimal.Decimal,
) (*conversion.Conversion, bool, error) {
	existing, err := tx.LatestPendingConversion(ctx, wp.RowID)
	if err != nil && !errors.Is(err, conversion.ErrNotFound) {
		return nil, false, err
	}

	if existing != nil {
		replayable := req.CreatedBy != conversion.CreatedByDApp &&
			existing.DepositAmount.Equal(req.Amount) &&
			existing.FeeAmount.Equal(fee)
		if replayable {
			return existing, true, nil
		}
		if err := tx.UpdateConversionStatus(ctx, existing.ID, conversion.StatusExpired); err != nil {
			return nil, false, err
		}
		s.logger.Info("Superseding pending conversion",
			zap.String("conversion_id", existing.ID),
			zap.String("created_by", string(req.CreatedBy)))
	}

	conv := buildConversion(wp, req, fee, claimAmount)
	if err := tx.CreateConversion(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

func buildConversion(wp *conversion.WalletPair, req CreateRequest, fee, claimAmount decimal.Decimal) *conversion.Conversion {
	return &conversion.Conversion{
		ID:            newID(),
		WalletPairID:  wp.RowID,
		DepositAmount: req.Amount,
		FeeAmount:     fee,
		ClaimAmount:   claimAmount,
		Status:        conversion.StatusUserInitiated,
		CreatedBy:     req.CreatedBy,
	}
}

// CreateTransactionForConversion attaches evidence for the next expected leg
// of a conversion. The first leg creates the conversion's transaction
// sub-ledger row, the second leg reuses it.
func (s *Service) CreateTransactionForConversion(
	ctx context.Context,
	conversionID string,
	txHash string,
	createdBy conversion.CreatedBy,
) (*conversion.Transaction, error) {
	detail, err := s.conversionDetail(ctx, conversionID)
	if err != nil {
		return nil, err
	}

	sourceChain := detail.TokenPair.FromToken.Blockchain.Name
	activity, err := s.evidence.Validate(ctx, *detail, txHash, createdBy)
	if err != nil {
		metrics.EvidenceValidations.WithLabelValues(sourceChain, "rejected").Inc()
		return nil, err
	}
	metrics.EvidenceValidations.WithLabelValues(activity.Blockchain.Name, "accepted").Inc()

	tx := &conversion.Transaction{
		TokenID:    activity.Token.RowID,
		Visibility: conversion.VisibilityExternal,
		Operation:  activity.Operation,
		Hash:       txHash,
		Amount:     activity.Amount,
		Status:     conversion.TransactionWaitingForConfirmation,
		CreatedBy:  createdBy,
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, st conversionstore.Store) error {
		ctID := conversionTransactionID(detail.Transactions)
		if ctID == 0 {
			ct := &conversion.ConversionTransaction{
				ConversionID: detail.Conversion.RowID,
				Status:       conversion.TransactionWaitingForConfirmation,
				CreatedBy:    createdBy,
			}
			if err := st.CreateConversionTransaction(ctx, ct); err != nil {
				return err
			}
			ctID = ct.RowID
		}
		tx.ConversionTransactionID = ctID

		if err := st.CreateTransaction(ctx, tx); err != nil {
			return err
		}

		if activity.Operation == conversion.OperationTokenDeposit &&
			detail.Conversion.Status == conversion.StatusUserInitiated {
			return st.UpdateConversionStatus(ctx, conversionID, conversion.StatusProcessing)
		}
		return nil
	})
	if err != nil {
		// The unique index is the real idempotency guard; a concurrent
		// submission that slipped past the validator's pre-check lands here.
		if errors.Is(err, conversionstore.ErrDuplicateTransactionHash) {
			return nil, apperrors.BadRequestError(err,
				apperrors.CodeTransactionAlreadyRecorded, "transaction hash is already recorded")
		}
		return nil, apperrors.DependencyError(fmt.Errorf("failed to record transaction: %w", err))
	}

	metrics.TransactionsRecorded.WithLabelValues(string(activity.Operation)).Inc()
	s.logger.Info("Transaction recorded",
		zap.String("conversion_id", conversionID),
		zap.String("operation", string(activity.Operation)),
		zap.String("transaction_hash", txHash))
	return tx, nil
}

// ClaimRequest is a signed claim for a conversion awaiting its destination
// leg.
type ClaimRequest struct {
	ConversionID string
	Amount       decimal.Decimal
	FromAddress  string
	ToAddress    string
	Signature    string
}

// ClaimResult carries the issued authorization. ClaimAmount is the amount
// fixed at creation, echoed unchanged.
type ClaimResult struct {
	ConversionID string
	ClaimAmount  decimal.Decimal
	Signature    string
}

// ClaimConversion validates a claim and issues the CONVERSION_IN signature the
// destination contract verifies. The conversion status is untouched; SUCCESS
// is reached only when the claim leg's transaction confirms on chain.
func (s *Service) ClaimConversion(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	detail, err := s.conversionDetail(ctx, req.ConversionID)
	if err != nil {
		return nil, err
	}

	if detail.Conversion.Status != conversion.StatusWaitingForClaim {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("conversion %s is %s", req.ConversionID, detail.Conversion.Status),
			apperrors.CodeConversionNotClaimable, "conversion is not in a claimable state")
	}

	to := detail.TokenPair.ToToken.Blockchain
	if !to.IsAccountBased() {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("contract claim on %s chain %s", to.Family, to.Name),
			apperrors.CodeInvalidClaimOperation, "claiming is not supported on this chain family")
	}

	err = s.authority.ValidateClaimSignature(signer.Claim{
		ConversionID:   req.ConversionID,
		Amount:         req.Amount,
		FromAddress:    req.FromAddress,
		ToAddress:      req.ToAddress,
		Signature:      req.Signature,
		ChainID:        to.ChainID,
		ExpectedSigner: detail.WalletPair.ToAddress,
	})
	if err != nil {
		return nil, err
	}

	sig, err := s.authority.IssueSignature(
		conversion.SignatureConversionIn,
		detail.WalletPair.ToAddress,
		detail.Conversion.ID,
		detail.Conversion.ClaimAmount,
		detail.TokenPair.ToToken.ContractAddress,
		to.ChainID,
	)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}

	if err := s.store.SetClaimSignature(ctx, detail.Conversion.ID, sig); err != nil {
		return nil, apperrors.DependencyError(fmt.Errorf("failed to persist claim signature: %w", err))
	}

	metrics.ClaimSignaturesIssued.Inc()
	s.logger.Info("Claim signature issued", zap.String("conversion_id", detail.Conversion.ID))
	return &ClaimResult{
		ConversionID: detail.Conversion.ID,
		ClaimAmount:  detail.Conversion.ClaimAmount,
		Signature:    sig,
	}, nil
}

// UpdateTransaction is the confirmation-tracking entry point: an external
// collaborator reports confirmation counts for a recorded transaction. A
// confirmed deposit moves the conversion to WAITING_FOR_CLAIM, a confirmed
// claim to SUCCESS.
func (s *Service) UpdateTransaction(
	ctx context.Context,
	conversionID string,
	txHash string,
	confirmation int,
	status conversion.TransactionStatus,
) error {
	detail, err := s.conversionDetail(ctx, conversionID)
	if err != nil {
		return err
	}

	var target *conversion.Transaction
	for i := range detail.Transactions {
		if detail.Transactions[i].Hash == txHash {
			target = &detail.Transactions[i]
			break
		}
	}
	if target == nil {
		return apperrors.BadRequestError(
			fmt.Errorf("conversion %s has no transaction %s", conversionID, txHash),
			apperrors.CodeTransactionNotFound, "transaction is not recorded for this conversion")
	}

	if err := s.store.UpdateTransaction(ctx, target.RowID, confirmation, status); err != nil {
		return apperrors.DependencyError(fmt.Errorf("failed to update transaction: %w", err))
	}

	if status != conversion.TransactionSuccess || detail.Conversion.Status.Terminal() {
		return nil
	}

	next := conversion.StatusWaitingForClaim
	if target.Operation == conversion.OperationTokenClaim {
		next = conversion.StatusSuccess
	}
	if err := s.store.UpdateConversionStatus(ctx, conversionID, next); err != nil {
		return apperrors.DependencyError(fmt.Errorf("failed to advance conversion status: %w", err))
	}
	s.logger.Info("Conversion advanced",
		zap.String("conversion_id", conversionID),
		zap.String("status", string(next)))
	return nil
}

// ExpireConversions sweeps conversions older than their source chain's
// staleness window to EXPIRED and returns the number affected.
func (s *Service) ExpireConversions(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	cutoffs := make(map[string]time.Time, len(s.expiryHours))
	for chain, hours := range s.expiryHours {
		cutoffs[chain] = now.Add(-time.Duration(hours) * time.Hour)
	}

	expired, err := s.store.ExpireConversionsBefore(ctx, cutoffs)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("sweeper", "expire").Inc()
		return 0, apperrors.DependencyError(fmt.Errorf("failed to expire conversions: %w", err))
	}

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	metrics.ConversionsExpired.Add(float64(expired))
	s.logger.Info("Expiry sweep finished", zap.Int64("expired", expired))
	return expired, nil
}

// StatusReport is the payload of the periodic status notification.
type StatusReport struct {
	Since  string         `json:"since"`
	Counts map[string]int `json:"counts"`
}

// GenerateStatusReport publishes conversion counts by status since the given
// time. Delivery is fire and forget; a publish failure is logged, not
// surfaced.
func (s *Service) GenerateStatusReport(ctx context.Context, since time.Time) error {
	counts, err := s.store.ConversionCountsSince(ctx, since)
	if err != nil {
		return apperrors.DependencyError(fmt.Errorf("failed to build status report: %w", err))
	}

	report := StatusReport{
		Since:  since.UTC().Format(time.RFC3339),
		Counts: make(map[string]int, len(counts)),
	}
	for status, count := range counts {
		report.Counts[string(status)] = count
	}

	if err := s.reports.Publish(ctx, "conversion-status-report", report); err != nil {
		s.logger.Warn("Failed to publish status report", zap.Error(err))
	}
	return nil
}

// GetConversion returns the full conversion detail.
func (s *Service) GetConversion(ctx context.Context, conversionID string) (*conversion.Detail, error) {
	return s.conversionDetail(ctx, conversionID)
}

// GetTransactionsByConversionID returns the recorded transactions of a
// conversion, oldest first.
func (s *Service) GetTransactionsByConversionID(ctx context.Context, conversionID string) ([]conversion.Transaction, error) {
	detail, err := s.conversionDetail(ctx, conversionID)
	if err != nil {
		return nil, err
	}
	return detail.Transactions, nil
}

// GetConversionHistory returns one page of an address's conversions, newest
// first. pageNumber is 1-based.
func (s *Service) GetConversionHistory(ctx context.Context, address string, pageSize, pageNumber int) (*conversionstore.HistoryPage, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageNumber <= 0 {
		pageNumber = 1
	}
	page, err := s.store.ConversionHistory(ctx, address, pageSize, (pageNumber-1)*pageSize)
	if err != nil {
		return nil, apperrors.DependencyError(fmt.Errorf("failed to load conversion history: %w", err))
	}
	return page, nil
}

// GetConversionCountByStatus returns an address's conversion counts grouped
// by status.
func (s *Service) GetConversionCountByStatus(ctx context.Context, address string) (map[conversion.Status]int, error) {
	counts, err := s.store.ConversionCountByStatus(ctx, address)
	if err != nil {
		return nil, apperrors.DependencyError(fmt.Errorf("failed to count conversions: %w", err))
	}
	return counts, nil
}

func (s *Service) conversionDetail(ctx context.Context, conversionID string) (*conversion.Detail, error) {
	detail, err := s.store.ConversionDetail(ctx, conversionID)
	if err != nil {
		if errors.Is(err, conversion.ErrNotFound) {
			return nil, apperrors.BadRequestError(
				fmt.Errorf("unknown conversion %s", conversionID),
				apperrors.CodeInvalidConversionID, "conversion does not exist")
		}
		return nil, apperrors.DependencyError(fmt.Errorf("failed to load conversion: %w", err))
	}
	return detail, nil
}

func conversionTransactionID(transactions []conversion.Transaction) int64 {
	for _, tx := range transactions {
		return tx.ConversionTransactionID
	}
	return 0
}

// newID generates an opaque external identifier (unpadded hex uuid).
func newID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
