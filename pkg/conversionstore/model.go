package conversionstore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/openbridge/converter-core/pkg/conversion"
)

// BlockchainDao is a data access object that maps directly to the 'blockchains' table in PostgreSQL.
type BlockchainDao struct {
	bun.BaseModel `bun:"table:blockchains,alias:b"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Name          string `bun:"name,unique,notnull,type:varchar(50)"`
	ChainID       int64  `bun:"chain_id,notnull"`
	Family        string `bun:"family,notnull,type:varchar(20)"`
}

// TokenDao is a data access object that maps directly to the 'tokens' table in PostgreSQL.
type TokenDao struct {
	bun.BaseModel   `bun:"table:tokens,alias:t"`
	ID              int64          `bun:"id,pk,autoincrement"`
	Symbol          string         `bun:"symbol,notnull,type:varchar(30)"`
	Decimals        int            `bun:"decimals,notnull"`
	ContractAddress *string        `bun:"contract_address,type:varchar(128)"`
	BlockchainID    int64          `bun:"blockchain_id,notnull"`
	Blockchain      *BlockchainDao `bun:"rel:belongs-to,join:blockchain_id=id"`
}

// TokenPairDao is a data access object that maps directly to the 'token_pairs' table in PostgreSQL.
type TokenPairDao struct {
	bun.BaseModel    `bun:"table:token_pairs,alias:tp"`
	ID               string           `bun:"id,pk,type:varchar(64)"`
	FromTokenID      int64            `bun:"from_token_id,notnull"`
	ToTokenID        int64            `bun:"to_token_id,notnull"`
	MinValue         decimal.Decimal  `bun:"min_value,notnull,type:numeric(78,18)"`
	MaxValue         decimal.Decimal  `bun:"max_value,notnull,type:numeric(78,18)"`
	ConversionFeePct *decimal.Decimal `bun:"conversion_fee_pct,type:numeric(7,4)"`
	FromToken        *TokenDao        `bun:"rel:belongs-to,join:from_token_id=id"`
	ToToken          *TokenDao        `bun:"rel:belongs-to,join:to_token_id=id"`
}

// WalletPairDao is a data access object that maps directly to the 'wallet_pairs' table in PostgreSQL.
type WalletPairDao struct {
	bun.BaseModel  `bun:"table:wallet_pairs,alias:wp"`
	ID             int64         `bun:"id,pk,autoincrement"`
	WalletPairID   string        `bun:"wallet_pair_id,unique,notnull,type:varchar(64)"`
	TokenPairID    string        `bun:"token_pair_id,notnull,type:varchar(64)"`
	FromAddress    string        `bun:"from_address,notnull,type:varchar(128)"`
	ToAddress      string        `bun:"to_address,notnull,type:varchar(128)"`
	DepositAddress *string       `bun:"deposit_address,type:varchar(128)"`
	CreatedAt      time.Time     `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt      time.Time     `bun:"updated_at,nullzero,default:current_timestamp"`
	TokenPair      *TokenPairDao `bun:"rel:belongs-to,join:token_pair_id=id"`
}

// ConversionDao is a data access object that maps directly to the 'conversions' table in PostgreSQL.
type ConversionDao struct {
	bun.BaseModel  `bun:"table:conversions,alias:c"`
	ID             int64           `bun:"id,pk,autoincrement"`
	ConversionID   string          `bun:"conversion_id,unique,notnull,type:varchar(64)"`
	WalletPairID   int64           `bun:"wallet_pair_id,notnull"`
	DepositAmount  decimal.Decimal `bun:"deposit_amount,notnull,type:numeric(78,18)"`
	FeeAmount      decimal.Decimal `bun:"fee_amount,notnull,type:numeric(78,18)"`
	ClaimAmount    decimal.Decimal `bun:"claim_amount,notnull,type:numeric(78,18)"`
	Status         string          `bun:"status,notnull,type:varchar(30)"`
	ClaimSignature *string         `bun:"claim_signature,type:varchar(250)"`
	CreatedBy      string          `bun:"created_by,notnull,type:varchar(30)"`
	CreatedAt      time.Time       `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt      time.Time       `bun:"updated_at,nullzero,default:current_timestamp"`
	WalletPair     *WalletPairDao  `bun:"rel:belongs-to,join:wallet_pair_id=id"`
}

// ConversionTransactionDao is a data access object that maps directly to the
// 'conversion_transactions' table in PostgreSQL.
type ConversionTransactionDao struct {
	bun.BaseModel `bun:"table:conversion_transactions,alias:ct"`
	ID            int64     `bun:"id,pk,autoincrement"`
	ConversionID  int64     `bun:"conversion_id,notnull"`
	Status        string    `bun:"status,notnull,type:varchar(30)"`
	CreatedBy     string    `bun:"created_by,notnull,type:varchar(30)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// TransactionDao is a data access object that maps directly to the 'transactions' table in PostgreSQL.
type TransactionDao struct {
	bun.BaseModel           `bun:"table:transactions,alias:tx"`
	ID                      int64                     `bun:"id,pk,autoincrement"`
	ConversionTransactionID int64                     `bun:"conversion_transaction_id,notnull"`
	TokenID                 int64                     `bun:"token_id,notnull"`
	Visibility              string                    `bun:"visibility,notnull,type:varchar(20)"`
	Operation               string                    `bun:"operation,notnull,type:varchar(30)"`
	TransactionHash         string                    `bun:"transaction_hash,unique,notnull,type:varchar(128)"`
	Amount                  decimal.Decimal           `bun:"amount,notnull,type:numeric(78,18)"`
	Confirmation            int                       `bun:"confirmation,notnull,default:0"`
	Status                  string                    `bun:"status,notnull,type:varchar(30)"`
	CreatedBy               string                    `bun:"created_by,notnull,type:varchar(30)"`
	CreatedAt               time.Time                 `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt               time.Time                 `bun:"updated_at,nullzero,default:current_timestamp"`
	ConversionTransaction   *ConversionTransactionDao `bun:"rel:belongs-to,join:conversion_transaction_id=id"`
}

// toBlockchain converts a BlockchainDao to conversion.Blockchain.
func toBlockchain(dao *BlockchainDao) conversion.Blockchain {
	return conversion.Blockchain{
		Name:    dao.Name,
		ChainID: dao.ChainID,
		Family:  conversion.ChainFamily(dao.Family),
	}
}

// toToken converts a TokenDao to conversion.Token.
func toToken(dao *TokenDao) conversion.Token {
	tok := conversion.Token{
		RowID:    dao.ID,
		Symbol:   dao.Symbol,
		Decimals: dao.Decimals,
	}
	if dao.ContractAddress != nil {
		tok.ContractAddress = *dao.ContractAddress
	}
	if dao.Blockchain != nil {
		tok.Blockchain = toBlockchain(dao.Blockchain)
	}
	return tok
}

// toTokenPair converts a TokenPairDao to conversion.TokenPair.
func toTokenPair(dao *TokenPairDao) *conversion.TokenPair {
	pair := &conversion.TokenPair{
		ID:               dao.ID,
		MinValue:         dao.MinValue,
		MaxValue:         dao.MaxValue,
		ConversionFeePct: dao.ConversionFeePct,
	}
	if dao.FromToken != nil {
		pair.FromToken = toToken(dao.FromToken)
	}
	if dao.ToToken != nil {
		pair.ToToken = toToken(dao.ToToken)
	}
	return pair
}

// toWalletPairDao converts a conversion.WalletPair to WalletPairDao.
func toWalletPairDao(pair *conversion.WalletPair) *WalletPairDao {
	return &WalletPairDao{
		ID:             pair.RowID,
		WalletPairID:   pair.ID,
		TokenPairID:    pair.TokenPairID,
		FromAddress:    pair.FromAddress,
		ToAddress:      pair.ToAddress,
		DepositAddress: pair.DepositAddress,
	}
}

// toWalletPair converts a WalletPairDao to conversion.WalletPair.
func toWalletPair(dao *WalletPairDao) *conversion.WalletPair {
	return &conversion.WalletPair{
		RowID:          dao.ID,
		ID:             dao.WalletPairID,
		TokenPairID:    dao.TokenPairID,
		FromAddress:    dao.FromAddress,
		ToAddress:      dao.ToAddress,
		DepositAddress: dao.DepositAddress,
		CreatedAt:      dao.CreatedAt,
		UpdatedAt:      dao.UpdatedAt,
	}
}

// toConversionDao converts a conversion.Conversion to ConversionDao.
func toConversionDao(conv *conversion.Conversion) *ConversionDao {
	return &ConversionDao{
		ID:             conv.RowID,
		ConversionID:   conv.ID,
		WalletPairID:   conv.WalletPairID,
		DepositAmount:  conv.DepositAmount,
		FeeAmount:      conv.FeeAmount,
		ClaimAmount:    conv.ClaimAmount,
		Status:         string(conv.Status),
		ClaimSignature: conv.ClaimSignature,
		CreatedBy:      string(conv.CreatedBy),
	}
}

// toConversion converts a ConversionDao to conversion.Conversion.
func toConversion(dao *ConversionDao) *conversion.Conversion {
	return &conversion.Conversion{
		RowID:          dao.ID,
		ID:             dao.ConversionID,
		WalletPairID:   dao.WalletPairID,
		DepositAmount:  dao.DepositAmount,
		FeeAmount:      dao.FeeAmount,
		ClaimAmount:    dao.ClaimAmount,
		Status:         conversion.Status(dao.Status),
		ClaimSignature: dao.ClaimSignature,
		CreatedBy:      conversion.CreatedBy(dao.CreatedBy),
		CreatedAt:      dao.CreatedAt,
		UpdatedAt:      dao.UpdatedAt,
	}
}

// toConversionTransaction converts a ConversionTransactionDao to conversion.ConversionTransaction.
func toConversionTransaction(dao *ConversionTransactionDao) *conversion.ConversionTransaction {
	return &conversion.ConversionTransaction{
		RowID:        dao.ID,
		ConversionID: dao.ConversionID,
		Status:       conversion.TransactionStatus(dao.Status),
		CreatedBy:    conversion.CreatedBy(dao.CreatedBy),
		CreatedAt:    dao.CreatedAt,
		UpdatedAt:    dao.UpdatedAt,
	}
}

// toTransactionDao converts a conversion.Transaction to TransactionDao.
func toTransactionDao(tx *conversion.Transaction) *TransactionDao {
	return &TransactionDao{
		ID:                      tx.RowID,
		ConversionTransactionID: tx.ConversionTransactionID,
		TokenID:                 tx.TokenID,
		Visibility:              string(tx.Visibility),
		Operation:               string(tx.Operation),
		TransactionHash:         tx.Hash,
		Amount:                  tx.Amount,
		Confirmation:            tx.Confirmation,
		Status:                  string(tx.Status),
		CreatedBy:               string(tx.CreatedBy),
	}
}

// toTransaction converts a TransactionDao to conversion.Transaction.
func toTransaction(dao *TransactionDao) *conversion.Transaction {
	return &conversion.Transaction{
		RowID:                   dao.ID,
		ConversionTransactionID: dao.ConversionTransactionID,
		TokenID:                 dao.TokenID,
		Visibility:              conversion.TransactionVisibility(dao.Visibility),
		Operation:               conversion.TransactionOperation(dao.Operation),
		Hash:                    dao.TransactionHash,
		Amount:                  dao.Amount,
		Confirmation:            dao.Confirmation,
		Status:                  conversion.TransactionStatus(dao.Status),
		CreatedBy:               conversion.CreatedBy(dao.CreatedBy),
		CreatedAt:               dao.CreatedAt,
		UpdatedAt:               dao.UpdatedAt,
	}
}
