package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbridge/converter-core/pkg/conversion"
	"github.com/openbridge/converter-core/pkg/conversionstore"
	"github.com/openbridge/converter-core/pkg/evidence"
	"github.com/openbridge/converter-core/pkg/signer"
)

// MockStore is a mock implementation of conversionstore.Store
type MockStore struct {
	TokenPairByIDFunc                  func(ctx context.Context, id string) (*conversion.TokenPair, error)
	BlockchainByNameFunc               func(ctx context.Context, name string) (*conversion.Blockchain, error)
	EnsureWalletPairFunc               func(ctx context.Context, pair *conversion.WalletPair) (*conversion.WalletPair, error)
	SetDepositAddressFunc              func(ctx context.Context, walletPairRowID int64, address string) error
	CreateConversionFunc               func(ctx context.Context, conv *conversion.Conversion) error
	ConversionDetailFunc               func(ctx context.Context, conversionID string) (*conversion.Detail, error)
	LatestPendingConversionFunc        func(ctx context.Context, walletPairRowID int64) (*conversion.Conversion, error)
	UpdateConversionStatusFunc         func(ctx context.Context, conversionID string, status conversion.Status) error
	SetClaimSignatureFunc              func(ctx context.Context, conversionID, signature string) error
	CreateConversionTransactionFunc    func(ctx context.Context, ct *conversion.ConversionTransaction) error
	CreateTransactionFunc              func(ctx context.Context, tx *conversion.Transaction) error
	UpdateTransactionFunc              func(ctx context.Context, rowID int64, confirmation int, status conversion.TransactionStatus) error
	TransactionByHashFunc              func(ctx context.Context, hash string) (*conversion.Transaction, error)
	TransactionsByConversionRowIDsFunc func(ctx context.Context, rowIDs []int64) (map[int64][]conversion.Transaction, error)
	ConversionHistoryFunc              func(ctx context.Context, address string, limit, offset int) (*conversionstore.HistoryPage, error)
	ConversionCountByStatusFunc        func(ctx context.Context, address string) (map[conversion.Status]int, error)
	ConversionCountsSinceFunc          func(ctx context.Context, since time.Time) (map[conversion.Status]int, error)
	ExpireConversionsBeforeFunc        func(ctx context.Context, cutoffs map[string]time.Time) (int64, error)
}

func (m *MockStore) TokenPairByID(ctx context.Context, id string) (*conversion.TokenPair, error) {
	if m.TokenPairByIDFunc != nil {
		return m.TokenPairByIDFunc(ctx, id)
	}
	return nil, conversion.ErrNotFound
}

func (m *MockStore) BlockchainByName(ctx context.Context, name string) (*conversion.Blockchain, error) {
	if m.BlockchainByNameFunc != nil {
		return m.BlockchainByNameFunc(ctx, name)
	}
	return nil, conversion.ErrNotFound
}

func (m *MockStore) EnsureWalletPair(ctx context.Context, pair *conversion.WalletPair) (*conversion.WalletPair, error) {
	if m.EnsureWalletPairFunc != nil {
		return m.EnsureWalletPairFunc(ctx, pair)
	}
	pair.RowID = 1
	return pair, nil
}

func (m *MockStore) SetDepositAddress(ctx context.Context, walletPairRowID int64, address string) error {
	if m.SetDepositAddressFunc != nil {
		return m.SetDepositAddressFunc(ctx, walletPairRowID, address)
	}
	return nil
}

func (m *MockStore) CreateConversion(ctx context.Context, conv *conversion.Conversion) error {
	if m.CreateConversionFunc != nil {
		return m.CreateConversionFunc(ctx, conv)
	}
	conv.RowID = 1
	return nil
}

func (m *MockStore) ConversionDetail(ctx context.Context, conversionID string) (*conversion.Detail, error) {
	if m.ConversionDetailFunc != nil {
		return m.ConversionDetailFunc(ctx, conversionID)
	}
	return nil, conversion.ErrNotFound
}

func (m *MockStore) LatestPendingConversion(ctx context.Context, walletPairRowID int64) (*conversion.Conversion, error) {
	if m.LatestPendingConversionFunc != nil {
		return m.LatestPendingConversionFunc(ctx, walletPairRowID)
	}
	return nil, conversion.ErrNotFound
}

func (m *MockStore) UpdateConversionStatus(ctx context.Context, conversionID string, status conversion.Status) error {
	if m.UpdateConversionStatusFunc != nil {
		return m.UpdateConversionStatusFunc(ctx, conversionID, status)
	}
	return nil
}

func (m *MockStore) SetClaimSignature(ctx context.Context, conversionID, signature string) error {
	if m.SetClaimSignatureFunc != nil {
		return m.SetClaimSignatureFunc(ctx, conversionID, signature)
	}
	return nil
}

func (m *MockStore) CreateConversionTransaction(ctx context.Context, ct *conversion.ConversionTransaction) error {
	if m.CreateConversionTransactionFunc != nil {
		return m.CreateConversionTransactionFunc(ctx, ct)
	}
	ct.RowID = 1
	return nil
}

func (m *MockStore) CreateTransaction(ctx context.Context, tx *conversion.Transaction) error {
	if m.CreateTransactionFunc != nil {
		return m.CreateTransactionFunc(ctx, tx)
	}
	tx.RowID = 1
	return nil
}

func (m *MockStore) UpdateTransaction(ctx context.Context, rowID int64, confirmation int, status conversion.TransactionStatus) error {
	if m.UpdateTransactionFunc != nil {
		return m.UpdateTransactionFunc(ctx, rowID, confirmation, status)
	}
	return nil
}

func (m *MockStore) TransactionByHash(ctx context.Context, hash string) (*conversion.Transaction, error) {
	if m.TransactionByHashFunc != nil {
		return m.TransactionByHashFunc(ctx, hash)
	}
	return nil, conversion.ErrNotFound
}

func (m *MockStore) TransactionsByConversionRowIDs(ctx context.Context, rowIDs []int64) (map[int64][]conversion.Transaction, error) {
	if m.TransactionsByConversionRowIDsFunc != nil {
		return m.TransactionsByConversionRowIDsFunc(ctx, rowIDs)
	}
	return map[int64][]conversion.Transaction{}, nil
}

func (m *MockStore) ConversionHistory(ctx context.Context, address string, limit, offset int) (*conversionstore.HistoryPage, error) {
	if m.ConversionHistoryFunc != nil {
		return m.ConversionHistoryFunc(ctx, address, limit, offset)
	}
	return &conversionstore.HistoryPage{}, nil
}

func (m *MockStore) ConversionCountByStatus(ctx context.Context, address string) (map[conversion.Status]int, error) {
	if m.ConversionCountByStatusFunc != nil {
		return m.ConversionCountByStatusFunc(ctx, address)
	}
	return map[conversion.Status]int{}, nil
}

func (m *MockStore) ConversionCountsSince(ctx context.Context, since time.Time) (map[conversion.Status]int, error) {
	if m.ConversionCountsSinceFunc != nil {
		return m.ConversionCountsSinceFunc(ctx, since)
	}
	return map[conversion.Status]int{}, nil
}

func (m *MockStore) ExpireConversionsBefore(ctx context.Context, cutoffs map[string]time.Time) (int64, error) {
	if m.ExpireConversionsBeforeFunc != nil {
		return m.ExpireConversionsBeforeFunc(ctx, cutoffs)
	}
	return 0, nil
}

// RunInTx runs fn against the mock itself; transactional scoping is covered by
// the store integration tests.
func (m *MockStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store conversionstore.Store) error) error {
	return fn(ctx, m)
}

// MockAuthority is a mock implementation of Authority
type MockAuthority struct {
	ValidateRequestSignatureFunc func(ctx context.Context, req signer.Request) error
	ValidateClaimSignatureFunc   func(claim signer.Claim) error
	IssueSignatureFunc           func(kind conversion.SignatureKind, userAddress, conversionID string, amount decimal.Decimal, contractAddress string, chainID int64) (string, error)
}

func (m *MockAuthority) ValidateRequestSignature(ctx context.Context, req signer.Request) error {
	if m.ValidateRequestSignatureFunc != nil {
		return m.ValidateRequestSignatureFunc(ctx, req)
	}
	return nil
}

func (m *MockAuthority) ValidateClaimSignature(claim signer.Claim) error {
	if m.ValidateClaimSignatureFunc != nil {
		return m.ValidateClaimSignatureFunc(claim)
	}
	return nil
}

func (m *MockAuthority) IssueSignature(
	kind conversion.SignatureKind,
	userAddress, conversionID string,
	amount decimal.Decimal,
	contractAddress string,
	chainID int64,
) (string, error) {
	if m.IssueSignatureFunc != nil {
		return m.IssueSignatureFunc(kind, userAddress, conversionID, amount, contractAddress, chainID)
	}
	return "0xsig", nil
}

// MockEvidence is a mock implementation of EvidenceValidator
type MockEvidence struct {
	ValidateFunc func(ctx context.Context, detail conversion.Detail, txHash string, submittedBy conversion.CreatedBy) (*evidence.NextActivity, error)
}

func (m *MockEvidence) Validate(
	ctx context.Context,
	detail conversion.Detail,
	txHash string,
	submittedBy conversion.CreatedBy,
) (*evidence.NextActivity, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, detail, txHash, submittedBy)
	}
	return nil, nil
}

// MockPublisher is a mock implementation of ReportPublisher
type MockPublisher struct {
	PublishFunc func(ctx context.Context, subject string, payload any) error
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, subject, payload)
	}
	return nil
}
