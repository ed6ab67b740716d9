// Package evidence validates user-submitted transaction hashes against the
// chain events they claim to settle. A hash is accepted only when the on-chain
// record names the conversion, the expected counterparty and the expected leg
// amount; the validator reconciles two structurally different transaction
// models to do so.
package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/openbridge/converter-core/pkg/app/errors"
	"github.com/openbridge/converter-core/pkg/chains/cardano"
	"github.com/openbridge/converter-core/pkg/chains/ethereum"
	"github.com/openbridge/converter-core/pkg/conversion"
)

// utxoAmountTolerance absorbs the UTXO chain's native-precision rounding when
// comparing an output amount against the expected leg amount.
var utxoAmountTolerance = decimal.New(1, -6)

// TransactionLookup checks whether a hash was already attached to any
// transaction. The database enforces uniqueness as well; this pre-check only
// exists to produce a precise rejection.
type TransactionLookup interface {
	TransactionByHash(ctx context.Context, hash string) (*conversion.Transaction, error)
}

// AccountReader fetches the bridge contract events a transaction emitted on
// the account-based chain.
type AccountReader interface {
	ConversionEvents(ctx context.Context, txHash string) ([]ethereum.ConversionEvent, error)
}

// UTXOReader fetches a transaction's outputs and metadata from the UTXO chain.
type UTXOReader interface {
	Transaction(ctx context.Context, txHash string) (*cardano.Transaction, error)
}

// NextActivity describes the single leg a validated hash settles.
type NextActivity struct {
	Operation  conversion.TransactionOperation
	Blockchain conversion.Blockchain
	Token      conversion.Token
	Amount     decimal.Decimal
}

// Validator checks submitted transaction hashes against conversion state and
// on-chain evidence.
type Validator struct {
	transactions TransactionLookup
	account      AccountReader
	utxo         UTXOReader
	logger       *zap.Logger
}

// NewValidator creates a Validator.
func NewValidator(transactions TransactionLookup, account AccountReader, utxo UTXOReader, logger *zap.Logger) *Validator {
	return &Validator{
		transactions: transactions,
		account:      account,
		utxo:         utxo,
		logger:       logger,
	}
}

// Validate runs the full evidence pipeline for one submitted hash and returns
// the leg it settles. All checks run before any mutation; a rejection leaves
// no state behind.
func (v *Validator) Validate(
	ctx context.Context,
	detail conversion.Detail,
	txHash string,
	submittedBy conversion.CreatedBy,
) (*NextActivity, error) {
	existing, err := v.transactions.TransactionByHash(ctx, txHash)
	if err != nil && !errors.Is(err, conversion.ErrNotFound) {
		return nil, apperrors.DependencyError(fmt.Errorf("failed to look up transaction hash: %w", err))
	}
	if existing != nil {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("hash %s already attached to transaction %d", txHash, existing.RowID),
			apperrors.CodeTransactionAlreadyRecorded, "transaction hash is already recorded")
	}

	from := detail.TokenPair.FromToken.Blockchain
	to := detail.TokenPair.ToToken.Blockchain
	if !conversion.SupportedPair(from, to) {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("unsupported chain pair %s -> %s", from.Name, to.Name),
			apperrors.CodeUnsupportedChainPair, "conversion between these chains is not supported")
	}

	activity, err := NextActivityFor(detail)
	if err != nil {
		return nil, err
	}

	// The UTXO leg needs privileged chain indexing; end-user submissions may
	// only attach evidence for the account-based leg.
	if submittedBy == conversion.CreatedByDApp && activity.Blockchain.Family == conversion.FamilyUTXO {
		return nil, apperrors.BadRequestError(
			fmt.Errorf("dapp submission for %s leg", activity.Blockchain.Name),
			apperrors.CodeAgentOnlyChain, "this chain's evidence can only be updated by the bridge agent")
	}

	for _, tx := range detail.Transactions {
		if tx.Operation == activity.Operation && tx.Status != conversion.TransactionFailed {
			return nil, apperrors.BadRequestError(
				fmt.Errorf("leg %s already has transaction %s in status %s",
					activity.Operation, tx.Hash, tx.Status),
				apperrors.CodeTransactionInProgress, "a transaction for this step is already in progress")
		}
	}

	switch activity.Blockchain.Family {
	case conversion.FamilyAccount:
		err = v.validateAccountEvidence(ctx, detail, txHash, activity)
	case conversion.FamilyUTXO:
		err = v.validateUTXOEvidence(ctx, detail, txHash, activity)
	default:
		err = apperrors.BadRequestError(
			fmt.Errorf("no evidence rule for chain family %s", activity.Blockchain.Family),
			apperrors.CodeUnsupportedChainPair, "conversion between these chains is not supported")
	}
	if err != nil {
		return nil, err
	}
	return activity, nil
}

// NextActivityFor derives the single next expected leg from the conversion's
// recorded transactions. A leg counts as settled only once its transaction
// confirmed; pending transactions leave the leg occupied (the in-progress
// guard rejects resubmission) and failed ones leave it open for a retry.
func NextActivityFor(detail conversion.Detail) (*NextActivity, error) {
	if detail.Conversion.Status.Terminal() {
		return nil, completeError(detail.Conversion.ID)
	}

	var depositDone, claimDone bool
	for _, tx := range detail.Transactions {
		if tx.Status != conversion.TransactionSuccess {
			continue
		}
		switch tx.Operation {
		case conversion.OperationTokenDeposit:
			depositDone = true
		case conversion.OperationTokenClaim:
			claimDone = true
		}
	}

	switch {
	case depositDone && claimDone:
		return nil, completeError(detail.Conversion.ID)
	case depositDone:
		return &NextActivity{
			Operation:  conversion.OperationTokenClaim,
			Blockchain: detail.TokenPair.ToToken.Blockchain,
			Token:      detail.TokenPair.ToToken,
			Amount:     detail.Conversion.ClaimAmount,
		}, nil
	default:
		return &NextActivity{
			Operation:  conversion.OperationTokenDeposit,
			Blockchain: detail.TokenPair.FromToken.Blockchain,
			Token:      detail.TokenPair.FromToken,
			Amount:     detail.Conversion.DepositAmount,
		}, nil
	}
}

// validateAccountEvidence requires the transaction to have emitted a bridge
// contract event naming this conversion, the expected counterparty and the
// exact leg amount.
func (v *Validator) validateAccountEvidence(
	ctx context.Context,
	detail conversion.Detail,
	txHash string,
	activity *NextActivity,
) error {
	events, err := v.account.ConversionEvents(ctx, txHash)
	if err != nil {
		return err
	}

	expectedHolder := detail.WalletPair.FromAddress
	if activity.Operation == conversion.OperationTokenClaim {
		expectedHolder = detail.WalletPair.ToAddress
	}

	for _, ev := range events {
		if ev.ConversionID != detail.Conversion.ID {
			continue
		}
		if !strings.EqualFold(ev.ContractAddress, activity.Token.ContractAddress) {
			continue
		}
		if !strings.EqualFold(ev.TokenHolder, expectedHolder) {
			v.logger.Info("Conversion event names unexpected token holder",
				zap.String("conversion_id", detail.Conversion.ID),
				zap.String("holder", ev.TokenHolder),
				zap.String("expected", expectedHolder))
			continue
		}
		if !ev.Amount.Equal(activity.Amount) {
			return mismatchError(fmt.Errorf(
				"event amount %s does not match expected %s leg amount %s",
				ev.Amount, activity.Operation, activity.Amount))
		}
		return nil
	}
	return mismatchError(fmt.Errorf(
		"transaction %s emitted no matching event for conversion %s", txHash, detail.Conversion.ID))
}

// validateUTXOEvidence requires an output paying the expected address with the
// leg amount (within native-precision tolerance) and a metadata reference to
// the conversion identifier.
func (v *Validator) validateUTXOEvidence(
	ctx context.Context,
	detail conversion.Detail,
	txHash string,
	activity *NextActivity,
) error {
	tx, err := v.utxo.Transaction(ctx, txHash)
	if err != nil {
		return err
	}

	var expectedAddress string
	if activity.Operation == conversion.OperationTokenDeposit {
		if detail.WalletPair.DepositAddress == nil {
			return mismatchError(fmt.Errorf(
				"conversion %s has no deposit address to match against", detail.Conversion.ID))
		}
		expectedAddress = *detail.WalletPair.DepositAddress
	} else {
		expectedAddress = detail.WalletPair.ToAddress
	}

	if !outputPays(tx.Outputs, expectedAddress, activity.Amount) {
		return mismatchError(fmt.Errorf(
			"transaction %s has no output paying %s to %s", txHash, activity.Amount, expectedAddress))
	}
	if !metadataReferences(tx.Metadata, detail.Conversion.ID) {
		return mismatchError(fmt.Errorf(
			"transaction %s metadata does not reference conversion %s", txHash, detail.Conversion.ID))
	}
	return nil
}

func outputPays(outputs []cardano.Output, address string, amount decimal.Decimal) bool {
	for _, out := range outputs {
		if out.Address != address {
			continue
		}
		for _, asset := range out.Amounts {
			if asset.Quantity.Sub(amount).Abs().LessThanOrEqual(utxoAmountTolerance) {
				return true
			}
		}
	}
	return false
}

func metadataReferences(metadata []cardano.MetadataEntry, conversionID string) bool {
	for _, entry := range metadata {
		if bytes.Contains(entry.Value, []byte(conversionID)) {
			return true
		}
	}
	return false
}

func completeError(conversionID string) error {
	return apperrors.BadRequestError(
		fmt.Errorf("conversion %s has no remaining activity", conversionID),
		apperrors.CodeConversionComplete, "conversion is already complete")
}

func mismatchError(err error) error {
	return apperrors.BadRequestError(err,
		apperrors.CodeEvidenceMismatch, "transaction does not match the expected conversion evidence")
}
