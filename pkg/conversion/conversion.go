// Package conversion defines the settlement domain model: a Conversion is one
// cross-chain value-transfer intent tracked from the signed request through
// deposit evidence, claim authorization and terminal settlement.
package conversion

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Status represents the current state of a conversion
type Status string

const (
	StatusUserInitiated   Status = "USER_INITIATED"
	StatusProcessing      Status = "PROCESSING"
	StatusWaitingForClaim Status = "WAITING_FOR_CLAIM"
	StatusSuccess         Status = "SUCCESS"
	StatusExpired         Status = "EXPIRED"
)

// Terminal reports whether a conversion in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusExpired
}

// TransactionStatus represents the state of one observed on-chain transaction
type TransactionStatus string

const (
	TransactionWaitingForConfirmation TransactionStatus = "WAITING_FOR_CONFIRMATION"
	TransactionSuccess                TransactionStatus = "SUCCESS"
	TransactionFailed                 TransactionStatus = "FAILED"
)

// TransactionVisibility distinguishes bridge-internal bookkeeping transactions
// from externally observed ones
type TransactionVisibility string

const (
	VisibilityInternal TransactionVisibility = "INTERNAL"
	VisibilityExternal TransactionVisibility = "EXTERNAL"
)

// TransactionOperation identifies which leg a transaction settles
type TransactionOperation string

const (
	OperationTokenDeposit TransactionOperation = "TOKEN_DEPOSIT"
	OperationTokenClaim   TransactionOperation = "TOKEN_CLAIM"
)

// CreatedBy records the origin of a request
type CreatedBy string

const (
	// CreatedByDApp marks requests submitted by the end-user application.
	CreatedByDApp CreatedBy = "DAPP"
	// CreatedByAgent marks requests submitted by the automated bridge agent.
	CreatedByAgent CreatedBy = "BACKEND_AGENT"
)

// ChainFamily classifies the ledger model of a blockchain
type ChainFamily string

const (
	// FamilyAccount covers address-balance ledgers with ECDSA-recoverable
	// transaction signatures.
	FamilyAccount ChainFamily = "ACCOUNT"
	// FamilyUTXO covers output-based ledgers that need a dedicated deposit
	// address and metadata-matched evidence instead of signer recovery.
	FamilyUTXO ChainFamily = "UTXO"
)

// Well-known chain names. ChainBinance events arrive through the queue
// consumer already in canonical form and are passed through untouched.
const (
	ChainEthereum = "ethereum"
	ChainCardano  = "cardano"
	ChainBinance  = "binance"
)

// SignatureKind selects which contract interaction an authority signature
// authorizes
type SignatureKind string

const (
	// SignatureConversionOut authorizes the deposit-side contract call when
	// the source chain has no dedicated deposit address.
	SignatureConversionOut SignatureKind = "__conversionOut"
	// SignatureConversionIn authorizes the final claim on the destination
	// chain.
	SignatureConversionIn SignatureKind = "__conversionIn"
)

// Blockchain is reference data describing one supported chain
type Blockchain struct {
	Name    string
	ChainID int64
	Family  ChainFamily
}

// IsAccountBased reports whether signatures on this chain allow signer recovery.
func (b Blockchain) IsAccountBased() bool {
	return b.Family == FamilyAccount
}

// Token is reference data for one asset on one chain
type Token struct {
	RowID           int64
	Symbol          string
	Decimals        int
	ContractAddress string
	Blockchain      Blockchain
}

// TokenPair links a source token to a destination token with conversion limits.
// Reference data: looked up, never mutated by the settlement core.
type TokenPair struct {
	ID        string
	FromToken Token
	ToToken   Token
	MinValue  decimal.Decimal
	MaxValue  decimal.Decimal
	// ConversionFeePct is the optional fee in percent charged on the deposit
	// amount; nil means the pair is fee-free.
	ConversionFeePct *decimal.Decimal
}

// WalletPair binds one (from, to) address pair to a token pair. A deposit
// address is allocated only when the source chain is UTXO-based; account-based
// sources send straight to the bridge contract.
type WalletPair struct {
	RowID          int64
	ID             string
	TokenPairID    string
	FromAddress    string
	ToAddress      string
	DepositAddress *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Conversion is the aggregate root of the settlement core.
// ClaimAmount is fixed at creation as DepositAmount - FeeAmount and is never
// recomputed afterwards.
type Conversion struct {
	RowID          int64
	ID             string
	WalletPairID   int64
	DepositAmount  decimal.Decimal
	FeeAmount      decimal.Decimal
	ClaimAmount    decimal.Decimal
	Status         Status
	ClaimSignature *string
	CreatedBy      CreatedBy
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ConversionTransaction is the sub-ledger row grouping the chain transactions
// of one conversion; both legs (deposit and claim) hang off the same row.
type ConversionTransaction struct {
	RowID        int64
	ConversionID int64
	Status       TransactionStatus
	CreatedBy    CreatedBy
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transaction is one observed on-chain event tied to a conversion transaction
type Transaction struct {
	RowID                   int64
	ConversionTransactionID int64
	TokenID                 int64
	Visibility              TransactionVisibility
	Operation               TransactionOperation
	Hash                    string
	Amount                  decimal.Decimal
	Confirmation            int
	Status                  TransactionStatus
	CreatedBy               CreatedBy
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Detail is a conversion joined with its wallet pair, token pair and
// transactions, in the shape evidence validation and claiming operate on.
type Detail struct {
	Conversion   Conversion
	WalletPair   WalletPair
	TokenPair    TokenPair
	Transactions []Transaction
}

// SupportedPair reports whether the settlement core knows how to reconcile
// evidence between the two chains of a pair. Exactly one side must be
// account-based: that side anchors signature recovery, the other uses
// metadata-matched evidence.
func SupportedPair(from, to Blockchain) bool {
	return from.IsAccountBased() != to.IsAccountBased()
}
