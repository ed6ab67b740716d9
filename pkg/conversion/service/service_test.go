package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/openbridge/converter-core/pkg/app/errors"
	"github.com/openbridge/converter-core/pkg/conversion"
	"github.com/openbridge/converter-core/pkg/conversionstore"
	"github.com/openbridge/converter-core/pkg/evidence"
	"github.com/openbridge/converter-core/pkg/signer"
)

const (
	testDepositAddress = "addr1qbridge0deposit"
	ethAddress         = "0x1AE27eE0c35134b79cD04E23a5f2a6c8A52A0681"
	cardanoAddress     = "addr1qx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzer"
	ethContract        = "0x5091eE4A2bF9B4e05A0C1BD5F5dbE4E09F4DE292"
)

var (
	ethChain     = conversion.Blockchain{Name: conversion.ChainEthereum, ChainID: 11155111, Family: conversion.FamilyAccount}
	cardanoChain = conversion.Blockchain{Name: conversion.ChainCardano, ChainID: 2, Family: conversion.FamilyUTXO}
)

func feePct(pct int64) *decimal.Decimal {
	d := decimal.NewFromInt(pct)
	return &d
}

func ethToCardanoPair() *conversion.TokenPair {
	return &conversion.TokenPair{
		ID: "22477fd4ea994689a8aeb72cc8b4c5f2",
		FromToken: conversion.Token{
			RowID: 10, Symbol: "AGIX", Decimals: 8,
			ContractAddress: ethContract, Blockchain: ethChain,
		},
		ToToken: conversion.Token{
			RowID: 11, Symbol: "AGIX", Decimals: 8, Blockchain: cardanoChain,
		},
		MinValue:         decimal.NewFromInt(100),
		MaxValue:         decimal.NewFromInt(1000000),
		ConversionFeePct: feePct(2),
	}
}

func cardanoToEthPair() *conversion.TokenPair {
	pair := ethToCardanoPair()
	pair.ID = "9cc873ebfb754e76bd275a25d6fa0dc4"
	pair.FromToken, pair.ToToken = pair.ToToken, pair.FromToken
	return pair
}

func newTestService(store *MockStore, authority *MockAuthority, ev *MockEvidence, reports *MockPublisher) *Service {
	if authority == nil {
		authority = &MockAuthority{}
	}
	if ev == nil {
		ev = &MockEvidence{}
	}
	if reports == nil {
		reports = &MockPublisher{}
	}
	return NewService(
		store,
		authority,
		ev,
		StaticDepositAddress(testDepositAddress),
		reports,
		map[string]int{conversion.ChainEthereum: 24, conversion.ChainCardano: 48},
		zap.NewNop(),
	)
}

func pairStore(pair *conversion.TokenPair) *MockStore {
	return &MockStore{
		TokenPairByIDFunc: func(_ context.Context, id string) (*conversion.TokenPair, error) {
			if id != pair.ID {
				return nil, conversion.ErrNotFound
			}
			return pair, nil
		},
	}
}

func createRequest(pair *conversion.TokenPair, createdBy conversion.CreatedBy) CreateRequest {
	from, to := ethAddress, cardanoAddress
	if pair.FromToken.Blockchain.Family == conversion.FamilyUTXO {
		from, to = cardanoAddress, ethAddress
	}
	return CreateRequest{
		TokenPairID: pair.ID,
		Amount:      decimal.NewFromInt(1000),
		FromAddress: from,
		ToAddress:   to,
		BlockNumber: 900,
		Signature:   "0xsigned",
		CreatedBy:   createdBy,
	}
}

func TestCreateConversionRequest_UnknownTokenPair(t *testing.T) {
	svc := newTestService(&MockStore{}, nil, nil, nil)

	_, err := svc.CreateConversionRequest(context.Background(), createRequest(ethToCardanoPair(), conversion.CreatedByDApp))
	if !apperrors.HasCode(err, apperrors.CodeInvalidTokenPairID) {
		t.Fatalf("expected CodeInvalidTokenPairID, got %v", err)
	}
}

func TestCreateConversionRequest_AmountOutOfBounds(t *testing.T) {
	pair := ethToCardanoPair()
	svc := newTestService(pairStore(pair), nil, nil, nil)

	for _, amount := range []decimal.Decimal{decimal.NewFromInt(99), decimal.NewFromInt(1000001)} {
		req := createRequest(pair, conversion.CreatedByDApp)
		req.Amount = amount
		_, err := svc.CreateConversionRequest(context.Background(), req)
		if !apperrors.HasCode(err, apperrors.CodeAmountOutOfBounds) {
			t.Errorf("amount %s: expected CodeAmountOutOfBounds, got %v", amount, err)
		}
	}
}

func TestCreateConversionRequest_SignatureRejectionStopsBeforeMutation(t *testing.T) {
	pair := ethToCardanoPair()
	store := pairStore(pair)
	store.EnsureWalletPairFunc = func(context.Context, *conversion.WalletPair) (*conversion.WalletPair, error) {
		t.Fatal("wallet pair must not be persisted for a rejected signature")
		return nil, nil
	}
	authority := &MockAuthority{
		ValidateRequestSignatureFunc: func(context.Context, signer.Request) error {
			return apperrors.BadRequestError(nil, apperrors.CodeSignatureExpired, "signature has expired")
		},
	}
	svc := newTestService(store, authority, nil, nil)

	_, err := svc.CreateConversionRequest(context.Background(), createRequest(pair, conversion.CreatedByDApp))
	if !apperrors.HasCode(err, apperrors.CodeSignatureExpired) {
		t.Fatalf("expected CodeSignatureExpired, got %v", err)
	}
}

func TestCreateConversionRequest_AccountSourceFeeAndSignature(t *testing.T) {
	pair := ethToCardanoPair()
	store := pairStore(pair)

	var created *conversion.Conversion
	store.CreateConversionFunc = func(_ context.Context, conv *conversion.Conversion) error {
		conv.RowID = 1
		created = conv
		return nil
	}

	var issuedKind conversion.SignatureKind
	var issuedAmount decimal.Decimal
	authority := &MockAuthority{
		ValidateRequestSignatureFunc: func(_ context.Context, req signer.Request) error {
			if !req.SignerIsFrom {
				t.Error("ethereum-source request must be signed by the from party")
			}
			if req.ChainID != ethChain.ChainID {
				t.Errorf("expected signature over chain id %d, got %d", ethChain.ChainID, req.ChainID)
			}
			return nil
		},
		IssueSignatureFunc: func(kind conversion.SignatureKind, _, _ string, amount decimal.Decimal, contract string, chainID int64) (string, error) {
			issuedKind = kind
			issuedAmount = amount
			if contract != ethContract {
				t.Errorf("expected source token contract, got %s", contract)
			}
			if chainID != ethChain.ChainID {
				t.Errorf("expected source chain id, got %d", chainID)
			}
			return "0xauthority", nil
		},
	}
	svc := newTestService(store, authority, nil, nil)

	result, err := svc.CreateConversionRequest(context.Background(), createRequest(pair, conversion.CreatedByDApp))
	if err != nil {
		t.Fatalf("CreateConversionRequest() failed: %v", err)
	}

	if !result.DepositAmount.Equal(decimal.NewFromInt(1000)) ||
		!result.FeeAmount.Equal(decimal.NewFromInt(20)) ||
		!result.ClaimAmount.Equal(decimal.NewFromInt(980)) {
		t.Errorf("expected 1000/20/980, got %s/%s/%s", result.DepositAmount, result.FeeAmount, result.ClaimAmount)
	}
	if created == nil || created.Status != conversion.StatusUserInitiated {
		t.Fatalf("expected a USER_INITIATED conversion to be created, got %+v", created)
	}
	if !created.ClaimAmount.Add(created.FeeAmount).Equal(created.DepositAmount) {
		t.Error("claim_amount + fee_amount must equal deposit_amount")
	}
	if result.DepositAddress != nil {
		t.Error("account-based source must not allocate a deposit address")
	}
	if result.Signature == nil || *result.Signature != "0xauthority" {
		t.Fatal("expected a contract-deposit authorization signature")
	}
	if issuedKind != conversion.SignatureConversionOut {
		t.Errorf("expected CONVERSION_OUT signature, got %s", issuedKind)
	}
	if !issuedAmount.Equal(created.DepositAmount) {
		t.Errorf("authorization must cover the deposit amount, got %s", issuedAmount)
	}
}

func TestCreateConversionRequest_AccountSourceNeverReuses(t *testing.T) {
	pair := ethToCardanoPair()
	store := pairStore(pair)
	store.LatestPendingConversionFunc = func(context.Context, int64) (*conversion.Conversion, error) {
		t.Fatal("account-based source must not look up pending conversions")
		return nil, nil
	}
	svc := newTestService(store, nil, nil, nil)

	first, err := svc.CreateConversionRequest(context.Background(), createRequest(pair, conversion.CreatedByDApp))
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	second, err := svc.CreateConversionRequest(context.Background(), createRequest(pair, conversion.CreatedByDApp))
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if first.ConversionID == second.ConversionID {
		t.Error("each signed request must create a fresh conversion")
	}
}

func TestCreateConversionRequest_UTXOReplayIsIdempotent(t *testing.T) {
	pair := cardanoToEthPair()
	store := pairStore(pair)

	existing := &conversion.Conversion{
		RowID: 5, ID: "existing0pending0conversion00001",
		DepositAmount: decimal.NewFromInt(1000),
		FeeAmount:     decimal.NewFromInt(20),
		ClaimAmount:   decimal.NewFromInt(980),
		Status:        conversion.StatusUserInitiated,
	}
	deposit := testDepositAddress
	store.EnsureWalletPairFunc = func(_ context.Context, wp *conversion.WalletPair) (*conversion.WalletPair, error) {
		wp.RowID = 3
		wp.DepositAddress = &deposit
		return wp, nil
	}
	store.LatestPendingConversionFunc = func(_ context.Context, rowID int64) (*conversion.Conversion, error) {
		return existing, nil
	}
	store.UpdateConversionStatusFunc = func(_ context.Context, id string, status conversion.Status) error {
		t.Fatalf("replay must not touch conversion %s", id)
		return nil
	}
	store.CreateConversionFunc = func(_ context.Context, conv *conversion.Conversion) error {
		t.Fatal("replay must not create a conversion")
		return nil
	}
	svc := newTestService(store, nil, nil, nil)

	result, err := svc.CreateConversionRequest(context.Background(), createRequest(pair, conversion.CreatedByAgent))
	if err != nil {
		t.Fatalf("CreateConversionRequest() failed: %v", err)
	}
	if result.ConversionID != existing.ID {
		t.Errorf("expected existing conversion %s, got %s", existing.ID, result.ConversionID)
	}
	if result.Signature != nil {
		t.Error("deposit-address path must not issue a contract signature")
	}
	if result.DepositAddress == nil || *result.DepositAddress != testDepositAddress {
		t.Error("expected the wallet pair's deposit address in the result")
	}
}

func TestCreateConversionRequest_UTXOChangedAmountSupersedes(t *testing.T) {
	pair := cardanoToEthPair()
	store := pairStore(pair)

	existing := &conversion.Conversion{
		RowID: 5, ID: "existing0pending0conversion00001",
		DepositAmount: decimal.NewFromInt(500),
		FeeAmount:     decimal.NewFromInt(10),
		ClaimAmount:   decimal.NewFromInt(490),
		Status:        conversion.StatusUserInitiated,
	}
	store.LatestPendingConversionFunc = func(context.Context, int64) (*conversion.Conversion, error) {
		return existing, nil
	}
	var expiredID string
	store.UpdateConversionStatusFunc = func(_ context.Context, id string, status conversion.Status) error {
		if status != conversion.StatusExpired {
			t.Errorf("expected EXPIRED, got %s", status)
		}
		expiredID = id
		return nil
	}
	svc := newTestService(store, nil, nil, nil)

	result, err := svc.CreateConversionRequest(context.Background(), createRequest(pair, conversion.CreatedByAgent))
	if err != nil {
		t.Fatalf("CreateConversionRequest() failed: %v", err)
	}
	if expiredID != existing.ID {
		t.Errorf("expected pending conversion %s to be expired, got %q", existing.ID, expiredID)
	}
	if result.ConversionID == existing.ID {
		t.Error("changed amount must produce a new conversion id")
	}
}

func TestCreateConversionRequest_UTXODAppResubmissionSupersedes(t *testing.T) {
	pair := cardanoToEthPair()
	store := pairStore(pair)

	existing := &conversion.Conversion{
		RowID: 5, ID: "existing0pending0conversion00001",
		DepositAmount: decimal.NewFromInt(1000),
		FeeAmount:     decimal.NewFromInt(20),
		ClaimAmount:   decimal.NewFromInt(980),
		Status:        conversion.StatusUserInitiated,
	}
	store.LatestPendingConversionFunc = func(context.Context, int64) (*conversion.Conversion, error) {
		return existing, nil
	}
	var expired bool
	store.UpdateConversionStatusFunc = func(_ context.Context, id string, status conversion.Status) error {
		expired = id == existing.ID && status == conversion.StatusExpired
		return nil
	}
	svc := newTestService(store, nil, nil, nil)

	// Same amounts, but an end-user resubmission is never a replay.
	result, err := svc.CreateConversionRequest(context.Background(), createRequest(pair, conversion.CreatedByDApp))
	if err != nil {
		t.Fatalf("CreateConversionRequest() failed: %v", err)
	}
	if !expired {
		t.Error("expected the pending conversion to be expired")
	}
	if result.ConversionID == existing.ID {
		t.Error("dapp resubmission must produce a new conversion id")
	}
}

func TestCreateConversionRequest_UTXOAllocatesDepositAddress(t *testing.T) {
	pair := cardanoToEthPair()
	store := pairStore(pair)

	var setAddress string
	store.SetDepositAddressFunc = func(_ context.Context, rowID int64, address string) error {
		setAddress = address
		return nil
	}
	svc := newTestService(store, nil, nil, nil)

	result, err := svc.CreateConversionRequest(context.Background(), createRequest(pair, conversion.CreatedByAgent))
	if err != nil {
		t.Fatalf("CreateConversionRequest() failed: %v", err)
	}
	if setAddress != testDepositAddress {
		t.Errorf("expected deposit address %s to be persisted, got %q", testDepositAddress, setAddress)
	}
	if result.DepositAddress == nil || *result.DepositAddress != testDepositAddress {
		t.Error("expected deposit address in the result")
	}
}

func detailFixture(status conversion.Status, transactions ...conversion.Transaction) *conversion.Detail {
	return &conversion.Detail{
		Conversion: conversion.Conversion{
			RowID: 5, ID: "b2a5fbbb0a464c95a8e015fae87f6d5a",
			WalletPairID:  3,
			DepositAmount: decimal.NewFromInt(1000),
			FeeAmount:     decimal.NewFromInt(20),
			ClaimAmount:   decimal.NewFromInt(980),
			Status:        status,
			CreatedBy:     conversion.CreatedByDApp,
		},
		WalletPair: conversion.WalletPair{
			RowID: 3, ID: "wp00000000000001",
			TokenPairID: "22477fd4ea994689a8aeb72cc8b4c5f2",
			FromAddress: ethAddress,
			ToAddress:   cardanoAddress,
		},
		TokenPair:    *ethToCardanoPair(),
		Transactions: transactions,
	}
}

func detailStore(detail *conversion.Detail) *MockStore {
	return &MockStore{
		ConversionDetailFunc: func(_ context.Context, id string) (*conversion.Detail, error) {
			if id != detail.Conversion.ID {
				return nil, conversion.ErrNotFound
			}
			return detail, nil
		},
	}
}

func TestCreateTransactionForConversion_FirstLegOpensSubLedger(t *testing.T) {
	detail := detailFixture(conversion.StatusUserInitiated)
	store := detailStore(detail)

	var createdCT *conversion.ConversionTransaction
	store.CreateConversionTransactionFunc = func(_ context.Context, ct *conversion.ConversionTransaction) error {
		ct.RowID = 7
		createdCT = ct
		return nil
	}
	var statusSet conversion.Status
	store.UpdateConversionStatusFunc = func(_ context.Context, _ string, status conversion.Status) error {
		statusSet = status
		return nil
	}
	ev := &MockEvidence{
		ValidateFunc: func(_ context.Context, _ conversion.Detail, _ string, _ conversion.CreatedBy) (*evidence.NextActivity, error) {
			return &evidence.NextActivity{
				Operation:  conversion.OperationTokenDeposit,
				Blockchain: ethChain,
				Token:      detail.TokenPair.FromToken,
				Amount:     detail.Conversion.DepositAmount,
			}, nil
		},
	}
	svc := newTestService(store, nil, ev, nil)

	tx, err := svc.CreateTransactionForConversion(context.Background(), detail.Conversion.ID, "0xdeposit", conversion.CreatedByDApp)
	if err != nil {
		t.Fatalf("CreateTransactionForConversion() failed: %v", err)
	}

	if createdCT == nil || createdCT.ConversionID != detail.Conversion.RowID {
		t.Fatal("expected a conversion transaction row for the first leg")
	}
	if tx.ConversionTransactionID != 7 {
		t.Errorf("expected transaction to hang off the new sub-ledger row, got %d", tx.ConversionTransactionID)
	}
	if tx.Status != conversion.TransactionWaitingForConfirmation || tx.Confirmation != 0 {
		t.Errorf("expected WAITING_FOR_CONFIRMATION with 0 confirmations, got %s/%d", tx.Status, tx.Confirmation)
	}
	if tx.TokenID != detail.TokenPair.FromToken.RowID || !tx.Amount.Equal(detail.Conversion.DepositAmount) {
		t.Errorf("transaction must carry the validated leg's token and amount, got %d/%s", tx.TokenID, tx.Amount)
	}
	if statusSet != conversion.StatusProcessing {
		t.Errorf("deposit evidence must advance the conversion to PROCESSING, got %q", statusSet)
	}
}

func TestCreateTransactionForConversion_SecondLegReusesSubLedger(t *testing.T) {
	deposit := conversion.Transaction{
		RowID: 20, ConversionTransactionID: 7,
		Operation: conversion.OperationTokenDeposit,
		Hash:      "0xdeposit",
		Status:    conversion.TransactionSuccess,
	}
	detail := detailFixture(conversion.StatusWaitingForClaim, deposit)
	store := detailStore(detail)
	store.CreateConversionTransactionFunc = func(context.Context, *conversion.ConversionTransaction) error {
		t.Fatal("second leg must reuse the existing sub-ledger row")
		return nil
	}
	store.UpdateConversionStatusFunc = func(_ context.Context, _ string, status conversion.Status) error {
		t.Fatalf("claim evidence must not change the conversion status, got %s", status)
		return nil
	}
	ev := &MockEvidence{
		ValidateFunc: func(_ context.Context, _ conversion.Detail, _ string, _ conversion.CreatedBy) (*evidence.NextActivity, error) {
			return &evidence.NextActivity{
				Operation:  conversion.OperationTokenClaim,
				Blockchain: cardanoChain,
				Token:      detail.TokenPair.ToToken,
				Amount:     detail.Conversion.ClaimAmount,
			}, nil
		},
	}
	svc := newTestService(store, nil, ev, nil)

	tx, err := svc.CreateTransactionForConversion(context.Background(), detail.Conversion.ID, "0xclaim", conversion.CreatedByAgent)
	if err != nil {
		t.Fatalf("CreateTransactionForConversion() failed: %v", err)
	}
	if tx.ConversionTransactionID != 7 {
		t.Errorf("expected sub-ledger row 7 to be reused, got %d", tx.ConversionTransactionID)
	}
}

func TestCreateTransactionForConversion_DuplicateHashRace(t *testing.T) {
	detail := detailFixture(conversion.StatusUserInitiated)
	store := detailStore(detail)
	store.CreateTransactionFunc = func(context.Context, *conversion.Transaction) error {
		return conversionstore.ErrDuplicateTransactionHash
	}
	ev := &MockEvidence{
		ValidateFunc: func(_ context.Context, _ conversion.Detail, _ string, _ conversion.CreatedBy) (*evidence.NextActivity, error) {
			return &evidence.NextActivity{
				Operation:  conversion.OperationTokenDeposit,
				Blockchain: ethChain,
				Token:      detail.TokenPair.FromToken,
				Amount:     detail.Conversion.DepositAmount,
			}, nil
		},
	}
	svc := newTestService(store, nil, ev, nil)

	_, err := svc.CreateTransactionForConversion(context.Background(), detail.Conversion.ID, "0xdeposit", conversion.CreatedByDApp)
	if !apperrors.HasCode(err, apperrors.CodeTransactionAlreadyRecorded) {
		t.Fatalf("expected CodeTransactionAlreadyRecorded, got %v", err)
	}
}

func claimRequest(detail *conversion.Detail) ClaimRequest {
	return ClaimRequest{
		ConversionID: detail.Conversion.ID,
		Amount:       detail.Conversion.ClaimAmount,
		FromAddress:  detail.WalletPair.FromAddress,
		ToAddress:    detail.WalletPair.ToAddress,
		Signature:    "0xclaimsig",
	}
}

func TestClaimConversion_RequiresClaimableState(t *testing.T) {
	for _, status := range []conversion.Status{
		conversion.StatusUserInitiated, conversion.StatusProcessing,
		conversion.StatusSuccess, conversion.StatusExpired,
	} {
		detail := cardanoDestinationDetail(status)
		svc := newTestService(detailStore(detail), nil, nil, nil)
		_, err := svc.ClaimConversion(context.Background(), claimRequest(detail))
		if !apperrors.HasCode(err, apperrors.CodeConversionNotClaimable) {
			t.Errorf("status %s: expected CodeConversionNotClaimable, got %v", status, err)
		}
	}
}

// cardanoDestinationDetail builds a cardano -> ethereum conversion detail, the
// direction whose claim runs through the destination contract.
func cardanoDestinationDetail(status conversion.Status) *conversion.Detail {
	detail := detailFixture(status)
	detail.TokenPair = *cardanoToEthPair()
	detail.WalletPair.FromAddress = cardanoAddress
	detail.WalletPair.ToAddress = ethAddress
	return detail
}

func TestClaimConversion_RejectsUTXODestination(t *testing.T) {
	// ethereum -> cardano: the destination has no contract claim path.
	detail := detailFixture(conversion.StatusWaitingForClaim)
	svc := newTestService(detailStore(detail), nil, nil, nil)

	_, err := svc.ClaimConversion(context.Background(), claimRequest(detail))
	if !apperrors.HasCode(err, apperrors.CodeInvalidClaimOperation) {
		t.Fatalf("expected CodeInvalidClaimOperation, got %v", err)
	}
}

func TestClaimConversion_IssuesAndPersistsSignature(t *testing.T) {
	detail := cardanoDestinationDetail(conversion.StatusWaitingForClaim)
	store := detailStore(detail)

	var persisted string
	store.SetClaimSignatureFunc = func(_ context.Context, id, sig string) error {
		if id != detail.Conversion.ID {
			t.Errorf("signature persisted on wrong conversion %s", id)
		}
		persisted = sig
		return nil
	}
	store.UpdateConversionStatusFunc = func(_ context.Context, _ string, status conversion.Status) error {
		t.Fatalf("claim issuance must not change the conversion status, got %s", status)
		return nil
	}

	authority := &MockAuthority{
		ValidateClaimSignatureFunc: func(claim signer.Claim) error {
			if claim.ExpectedSigner != detail.WalletPair.ToAddress {
				t.Errorf("claim must be signed by the destination address, expected %s", claim.ExpectedSigner)
			}
			if claim.ChainID != ethChain.ChainID {
				t.Errorf("expected destination chain id, got %d", claim.ChainID)
			}
			return nil
		},
		IssueSignatureFunc: func(kind conversion.SignatureKind, user, id string, amount decimal.Decimal, contract string, chainID int64) (string, error) {
			if kind != conversion.SignatureConversionIn {
				t.Errorf("expected CONVERSION_IN, got %s", kind)
			}
			if user != detail.WalletPair.ToAddress {
				t.Errorf("authorization must name the claiming address, got %s", user)
			}
			if !amount.Equal(detail.Conversion.ClaimAmount) {
				t.Errorf("authorization must cover the fixed claim amount, got %s", amount)
			}
			return "0xissued", nil
		},
	}
	svc := newTestService(store, authority, nil, nil)

	result, err := svc.ClaimConversion(context.Background(), claimRequest(detail))
	if err != nil {
		t.Fatalf("ClaimConversion() failed: %v", err)
	}
	if result.Signature != "0xissued" || persisted != "0xissued" {
		t.Errorf("expected issued signature returned and persisted, got %q/%q", result.Signature, persisted)
	}
	if !result.ClaimAmount.Equal(decimal.NewFromInt(980)) {
		t.Errorf("claim amount must be echoed unchanged, got %s", result.ClaimAmount)
	}
}

func TestUpdateTransaction_ConfirmedDepositAdvancesConversion(t *testing.T) {
	deposit := conversion.Transaction{
		RowID: 20, ConversionTransactionID: 7,
		Operation: conversion.OperationTokenDeposit,
		Hash:      "0xdeposit",
		Status:    conversion.TransactionWaitingForConfirmation,
	}
	detail := detailFixture(conversion.StatusProcessing, deposit)
	store := detailStore(detail)

	var statusSet conversion.Status
	store.UpdateConversionStatusFunc = func(_ context.Context, _ string, status conversion.Status) error {
		statusSet = status
		return nil
	}
	var updatedRow int64
	store.UpdateTransactionFunc = func(_ context.Context, rowID int64, confirmation int, status conversion.TransactionStatus) error {
		updatedRow = rowID
		if confirmation != 12 || status != conversion.TransactionSuccess {
			t.Errorf("expected confirmation 12 / SUCCESS, got %d/%s", confirmation, status)
		}
		return nil
	}
	svc := newTestService(store, nil, nil, nil)

	err := svc.UpdateTransaction(context.Background(), detail.Conversion.ID, "0xdeposit", 12, conversion.TransactionSuccess)
	if err != nil {
		t.Fatalf("UpdateTransaction() failed: %v", err)
	}
	if updatedRow != deposit.RowID {
		t.Errorf("expected transaction %d to be updated, got %d", deposit.RowID, updatedRow)
	}
	if statusSet != conversion.StatusWaitingForClaim {
		t.Errorf("confirmed deposit must move the conversion to WAITING_FOR_CLAIM, got %q", statusSet)
	}
}

func TestUpdateTransaction_ConfirmedClaimCompletesConversion(t *testing.T) {
	claim := conversion.Transaction{
		RowID: 21, ConversionTransactionID: 7,
		Operation: conversion.OperationTokenClaim,
		Hash:      "0xclaim",
		Status:    conversion.TransactionWaitingForConfirmation,
	}
	detail := detailFixture(conversion.StatusWaitingForClaim, claim)
	store := detailStore(detail)

	var statusSet conversion.Status
	store.UpdateConversionStatusFunc = func(_ context.Context, _ string, status conversion.Status) error {
		statusSet = status
		return nil
	}
	svc := newTestService(store, nil, nil, nil)

	err := svc.UpdateTransaction(context.Background(), detail.Conversion.ID, "0xclaim", 30, conversion.TransactionSuccess)
	if err != nil {
		t.Fatalf("UpdateTransaction() failed: %v", err)
	}
	if statusSet != conversion.StatusSuccess {
		t.Errorf("confirmed claim must complete the conversion, got %q", statusSet)
	}
}

func TestUpdateTransaction_PendingConfirmationLeavesStatus(t *testing.T) {
	deposit := conversion.Transaction{
		RowID: 20, ConversionTransactionID: 7,
		Operation: conversion.OperationTokenDeposit,
		Hash:      "0xdeposit",
		Status:    conversion.TransactionWaitingForConfirmation,
	}
	detail := detailFixture(conversion.StatusProcessing, deposit)
	store := detailStore(detail)
	store.UpdateConversionStatusFunc = func(_ context.Context, _ string, status conversion.Status) error {
		t.Fatalf("partial confirmation must not change the conversion status, got %s", status)
		return nil
	}
	svc := newTestService(store, nil, nil, nil)

	err := svc.UpdateTransaction(context.Background(), detail.Conversion.ID, "0xdeposit", 3, conversion.TransactionWaitingForConfirmation)
	if err != nil {
		t.Fatalf("UpdateTransaction() failed: %v", err)
	}
}

func TestUpdateTransaction_UnknownHash(t *testing.T) {
	detail := detailFixture(conversion.StatusProcessing)
	svc := newTestService(detailStore(detail), nil, nil, nil)

	err := svc.UpdateTransaction(context.Background(), detail.Conversion.ID, "0xmissing", 1, conversion.TransactionSuccess)
	if !apperrors.HasCode(err, apperrors.CodeTransactionNotFound) {
		t.Fatalf("expected CodeTransactionNotFound, got %v", err)
	}
}

func TestExpireConversions_PerChainCutoffs(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	var got map[string]time.Time
	store := &MockStore{
		ExpireConversionsBeforeFunc: func(_ context.Context, cutoffs map[string]time.Time) (int64, error) {
			got = cutoffs
			return 3, nil
		},
	}
	svc := newTestService(store, nil, nil, nil)

	expired, err := svc.ExpireConversions(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireConversions() failed: %v", err)
	}
	if expired != 3 {
		t.Errorf("expected 3 expired, got %d", expired)
	}
	if !got[conversion.ChainEthereum].Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("wrong ethereum cutoff: %s", got[conversion.ChainEthereum])
	}
	if !got[conversion.ChainCardano].Equal(now.Add(-48 * time.Hour)) {
		t.Errorf("wrong cardano cutoff: %s", got[conversion.ChainCardano])
	}
}

func TestGenerateStatusReport_PublishesCounts(t *testing.T) {
	store := &MockStore{
		ConversionCountsSinceFunc: func(context.Context, time.Time) (map[conversion.Status]int, error) {
			return map[conversion.Status]int{
				conversion.StatusSuccess: 4,
				conversion.StatusExpired: 1,
			}, nil
		},
	}
	var published StatusReport
	reports := &MockPublisher{
		PublishFunc: func(_ context.Context, subject string, payload any) error {
			if subject != "conversion-status-report" {
				t.Errorf("unexpected subject %q", subject)
			}
			published = payload.(StatusReport)
			return nil
		},
	}
	svc := newTestService(store, nil, nil, reports)

	since := time.Now().Add(-24 * time.Hour)
	if err := svc.GenerateStatusReport(context.Background(), since); err != nil {
		t.Fatalf("GenerateStatusReport() failed: %v", err)
	}
	if published.Counts["SUCCESS"] != 4 || published.Counts["EXPIRED"] != 1 {
		t.Errorf("unexpected report counts: %+v", published.Counts)
	}
}

func TestGenerateStatusReport_PublishFailureIsSwallowed(t *testing.T) {
	reports := &MockPublisher{
		PublishFunc: func(context.Context, string, any) error {
			return context.DeadlineExceeded
		},
	}
	svc := newTestService(&MockStore{}, nil, nil, reports)

	if err := svc.GenerateStatusReport(context.Background(), time.Now()); err != nil {
		t.Fatalf("publish failure must not surface, got %v", err)
	}
}
