// Package conversionstore persists the settlement core's state in PostgreSQL.
package conversionstore

import (
	"context"
	"errors"
	"time"

	"github.com/openbridge/converter-core/pkg/conversion"
)

// ErrDuplicateTransactionHash is returned when an insert trips the unique
// constraint on transaction_hash. The constraint, not the pre-check, is what
// makes hash idempotency safe under concurrency.
var ErrDuplicateTransactionHash = errors.New("transaction hash already recorded")

// HistoryPage is one page of conversion history for an address.
type HistoryPage struct {
	Items []conversion.Detail
	Total int
}

// Store defines the interface for conversion data persistence
type Store interface {
	TokenPairByID(ctx context.Context, id string) (*conversion.TokenPair, error)
	BlockchainByName(ctx context.Context, name string) (*conversion.Blockchain, error)

	EnsureWalletPair(ctx context.Context, pair *conversion.WalletPair) (*conversion.WalletPair, error)
	SetDepositAddress(ctx context.Context, walletPairRowID int64, address string) error

	CreateConversion(ctx context.Context, conv *conversion.Conversion) error
	ConversionDetail(ctx context.Context, conversionID string) (*conversion.Detail, error)
	LatestPendingConversion(ctx context.Context, walletPairRowID int64) (*conversion.Conversion, error)
	UpdateConversionStatus(ctx context.Context, conversionID string, status conversion.Status) error
	SetClaimSignature(ctx context.Context, conversionID, signature string) error

	CreateConversionTransaction(ctx context.Context, ct *conversion.ConversionTransaction) error
	CreateTransaction(ctx context.Context, tx *conversion.Transaction) error
	UpdateTransaction(ctx context.Context, rowID int64, confirmation int, status conversion.TransactionStatus) error
	TransactionByHash(ctx context.Context, hash string) (*conversion.Transaction, error)
	TransactionsByConversionRowIDs(ctx context.Context, rowIDs []int64) (map[int64][]conversion.Transaction, error)

	ConversionHistory(ctx context.Context, address string, limit, offset int) (*HistoryPage, error)
	ConversionCountByStatus(ctx context.Context, address string) (map[conversion.Status]int, error)
	ConversionCountsSince(ctx context.Context, since time.Time) (map[conversion.Status]int, error)
	ExpireConversionsBefore(ctx context.Context, cutoffs map[string]time.Time) (int64, error)

	// RunInTx runs fn against a store bound to one serializable transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
