package conversionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/openbridge/converter-core/pkg/conversion"
)

type pgStore struct {
	db bun.IDB
}

// NewStore creates a new postgres implementation of the conversion store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) TokenPairByID(ctx context.Context, id string) (*conversion.TokenPair, error) {
	dao := new(TokenPairDao)
	err := s.db.NewSelect().
		Model(dao).
		Relation("FromToken").
		Relation("FromToken.Blockchain").
		Relation("ToToken").
		Relation("ToToken.Blockchain").
		Where("tp.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conversion.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token pair: %w", err)
	}
	return toTokenPair(dao), nil
}

func (s *pgStore) BlockchainByName(ctx context.Context, name string) (*conversion.Blockchain, error) {
	dao := new(BlockchainDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("b.name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conversion.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get blockchain: %w", err)
	}
	chain := toBlockchain(dao)
	return &chain, nil
}

// EnsureWalletPair inserts the pair or, when the (token_pair, from, to)
// binding already exists, returns the existing row untouched apart from its
// updated_at timestamp.
func (s *pgStore) EnsureWalletPair(ctx context.Context, pair *conversion.WalletPair) (*conversion.WalletPair, error) {
	dao := toWalletPairDao(pair)
	dao.ID = 0

	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (token_pair_id, from_address, to_address) DO UPDATE").
		Set("updated_at = NOW()").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet pair: %w", err)
	}
	return toWalletPair(dao), nil
}

func (s *pgStore) SetDepositAddress(ctx context.Context, walletPairRowID int64, address string) error {
	_, err := s.db.NewUpdate().
		Model((*WalletPairDao)(nil)).
		Set("deposit_address = ?", address).
		Set("updated_at = NOW()").
		Where("id = ?", walletPairRowID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set deposit address: %w", err)
	}
	return nil
}

func (s *pgStore) CreateConversion(ctx context.Context, conv *conversion.Conversion) error {
	dao := toConversionDao(conv)
	dao.ID = 0

	_, err := s.db.NewInsert().
		Model(dao).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create conversion: %w", err)
	}

	conv.RowID = dao.ID
	conv.CreatedAt = dao.CreatedAt
	conv.UpdatedAt = dao.UpdatedAt
	return nil
}

func (s *pgStore) ConversionDetail(ctx context.Context, conversionID string) (*conversion.Detail, error) {
	dao := new(ConversionDao)
	err := s.db.NewSelect().
		Model(dao).
		Relation("WalletPair").
		Relation("WalletPair.TokenPair").
		Relation("WalletPair.TokenPair.FromToken").
		Relation("WalletPair.TokenPair.FromToken.Blockchain").
		Relation("WalletPair.TokenPair.ToToken").
		Relation("WalletPair.TokenPair.ToToken.Blockchain").
		Where("c.conversion_id = ?", conversionID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conversion.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}

	transactions, err := s.TransactionsByConversionRowIDs(ctx, []int64{dao.ID})
	if err != nil {
		return nil, err
	}

	detail := &conversion.Detail{
		Conversion:   *toConversion(dao),
		Transactions: transactions[dao.ID],
	}
	if dao.WalletPair != nil {
		detail.WalletPair = *toWalletPair(dao.WalletPair)
		if dao.WalletPair.TokenPair != nil {
			detail.TokenPair = *toTokenPair(dao.WalletPair.TokenPair)
		}
	}
	return detail, nil
}

func (s *pgStore) LatestPendingConversion(ctx context.Context, walletPairRowID int64) (*conversion.Conversion, error) {
	dao := new(ConversionDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("c.wallet_pair_id = ?", walletPairRowID).
		Where("c.status = ?", conversion.StatusUserInitiated).
		Order("c.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conversion.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest pending conversion: %w", err)
	}
	return toConversion(dao), nil
}

func (s *pgStore) UpdateConversionStatus(ctx context.Context, conversionID string, status conversion.Status) error {
	_, err := s.db.NewUpdate().
		Model((*ConversionDao)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = NOW()").
		Where("conversion_id = ?", conversionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update conversion status: %w", err)
	}
	return nil
}

func (s *pgStore) SetClaimSignature(ctx context.Context, conversionID, signature string) error {
	_, err := s.db.NewUpdate().
		Model((*ConversionDao)(nil)).
		Set("claim_signature = ?", signature).
		Set("updated_at = NOW()").
		Where("conversion_id = ?", conversionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set claim signature: %w", err)
	}
	return nil
}

func (s *pgStore) CreateConversionTransaction(ctx context.Context, ct *conversion.ConversionTransaction) error {
	dao := &ConversionTransactionDao{
		ConversionID: ct.ConversionID,
		Status:       string(ct.Status),
		CreatedBy:    string(ct.CreatedBy),
	}

	_, err := s.db.NewInsert().
		Model(dao).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create conversion transaction: %w", err)
	}

	ct.RowID = dao.ID
	ct.CreatedAt = dao.CreatedAt
	ct.UpdatedAt = dao.UpdatedAt
	return nil
}

func (s *pgStore) CreateTransaction(ctx context.Context, tx *conversion.Transaction) error {
	dao := toTransactionDao(tx)
	dao.ID = 0

	_, err := s.db.NewInsert().
		Model(dao).
		Returning("*").
		Exec(ctx)
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			return ErrDuplicateTransactionHash
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	tx.RowID = dao.ID
	tx.CreatedAt = dao.CreatedAt
	tx.UpdatedAt = dao.UpdatedAt
	return nil
}

func (s *pgStore) UpdateTransaction(ctx context.Context, rowID int64, confirmation int, status conversion.TransactionStatus) error {
	_, err := s.db.NewUpdate().
		Model((*TransactionDao)(nil)).
		Set("confirmation = ?", confirmation).
		Set("status = ?", string(status)).
		Set("updated_at = NOW()").
		Where("id = ?", rowID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (s *pgStore) TransactionByHash(ctx context.Context, hash string) (*conversion.Transaction, error) {
	dao := new(TransactionDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("tx.transaction_hash = ?", hash).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conversion.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by hash: %w", err)
	}
	return toTransaction(dao), nil
}

func (s *pgStore) TransactionsByConversionRowIDs(ctx context.Context, rowIDs []int64) (map[int64][]conversion.Transaction, error) {
	result := make(map[int64][]conversion.Transaction)
	if len(rowIDs) == 0 {
		return result, nil
	}

	var ctDaos []ConversionTransactionDao
	err := s.db.NewSelect().
		Model(&ctDaos).
		Where("ct.conversion_id IN (?)", bun.In(rowIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversion transactions: %w", err)
	}
	if len(ctDaos) == 0 {
		return result, nil
	}

	ctToConversion := make(map[int64]int64, len(ctDaos))
	ctIDs := make([]int64, len(ctDaos))
	for i := range ctDaos {
		ctToConversion[ctDaos[i].ID] = ctDaos[i].ConversionID
		ctIDs[i] = ctDaos[i].ID
	}

	var txDaos []TransactionDao
	err = s.db.NewSelect().
		Model(&txDaos).
		Where("tx.conversion_transaction_id IN (?)", bun.In(ctIDs)).
		Order("tx.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	for i := range txDaos {
		convID := ctToConversion[txDaos[i].ConversionTransactionID]
		result[convID] = append(result[convID], *toTransaction(&txDaos[i]))
	}
	return result, nil
}

func (s *pgStore) ConversionHistory(ctx context.Context, address string, limit, offset int) (*HistoryPage, error) {
	wpIDs, err := s.walletPairIDsByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(wpIDs) == 0 {
		return &HistoryPage{}, nil
	}

	total, err := s.db.NewSelect().
		Model((*ConversionDao)(nil)).
		Where("c.wallet_pair_id IN (?)", bun.In(wpIDs)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversion history: %w", err)
	}

	var daos []ConversionDao
	err = s.db.NewSelect().
		Model(&daos).
		Relation("WalletPair").
		Relation("WalletPair.TokenPair").
		Relation("WalletPair.TokenPair.FromToken").
		Relation("WalletPair.TokenPair.FromToken.Blockchain").
		Relation("WalletPair.TokenPair.ToToken").
		Relation("WalletPair.TokenPair.ToToken.Blockchain").
		Where("c.wallet_pair_id IN (?)", bun.In(wpIDs)).
		Order("c.created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversion history: %w", err)
	}

	rowIDs := make([]int64, len(daos))
	for i := range daos {
		rowIDs[i] = daos[i].ID
	}
	transactions, err := s.TransactionsByConversionRowIDs(ctx, rowIDs)
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{Total: total, Items: make([]conversion.Detail, len(daos))}
	for i := range daos {
		detail := conversion.Detail{
			Conversion:   *toConversion(&daos[i]),
			Transactions: transactions[daos[i].ID],
		}
		if daos[i].WalletPair != nil {
			detail.WalletPair = *toWalletPair(daos[i].WalletPair)
			if daos[i].WalletPair.TokenPair != nil {
				detail.TokenPair = *toTokenPair(daos[i].WalletPair.TokenPair)
			}
		}
		page.Items[i] = detail
	}
	return page, nil
}

func (s *pgStore) ConversionCountByStatus(ctx context.Context, address string) (map[conversion.Status]int, error) {
	counts := make(map[conversion.Status]int)

	wpIDs, err := s.walletPairIDsByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(wpIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err = s.db.NewSelect().
		Model((*ConversionDao)(nil)).
		ColumnExpr("c.status AS status").
		ColumnExpr("COUNT(*) AS count").
		Where("c.wallet_pair_id IN (?)", bun.In(wpIDs)).
		Group("c.status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversions by status: %w", err)
	}

	for _, row := range rows {
		counts[conversion.Status(row.Status)] = row.Count
	}
	return counts, nil
}

// ConversionCountsSince counts conversions created since the given time,
// grouped by status. Feeds the periodic status report.
func (s *pgStore) ConversionCountsSince(ctx context.Context, since time.Time) (map[conversion.Status]int, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*ConversionDao)(nil)).
		ColumnExpr("c.status AS status").
		ColumnExpr("COUNT(*) AS count").
		Where("c.created_at >= ?", since).
		Group("c.status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversions since %s: %w", since, err)
	}

	counts := make(map[conversion.Status]int, len(rows))
	for _, row := range rows {
		counts[conversion.Status(row.Status)] = row.Count
	}
	return counts, nil
}

// ExpireConversionsBefore drives every conversion still in a pre-processing
// status and older than its source chain's cutoff to EXPIRED, in one atomic
// multi-row update. Conversions that changed status concurrently are not
// touched; rerunning with the same cutoffs is a no-op.
func (s *pgStore) ExpireConversionsBefore(ctx context.Context, cutoffs map[string]time.Time) (int64, error) {
	if len(cutoffs) == 0 {
		return 0, nil
	}

	q := s.db.NewUpdate().
		Model((*ConversionDao)(nil)).
		TableExpr("wallet_pairs AS wp").
		TableExpr("token_pairs AS tp").
		TableExpr("tokens AS t").
		TableExpr("blockchains AS b").
		Set("status = ?", string(conversion.StatusExpired)).
		Set("updated_at = NOW()").
		Where("c.wallet_pair_id = wp.id").
		Where("wp.token_pair_id = tp.id").
		Where("tp.from_token_id = t.id").
		Where("t.blockchain_id = b.id").
		Where("c.status IN (?)", bun.In([]string{
			string(conversion.StatusUserInitiated),
			string(conversion.StatusWaitingForClaim),
		})).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			for name, cutoff := range cutoffs {
				q = q.WhereOr("(b.name = ? AND c.created_at <= ?)", name, cutoff)
			}
			return q
		})

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to expire conversions: %w", err)
	}
	expired, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired conversions: %w", err)
	}
	return expired, nil
}

func (s *pgStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable},
		func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, &pgStore{db: tx})
		})
}

func (s *pgStore) walletPairIDsByAddress(ctx context.Context, address string) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().
		Model((*WalletPairDao)(nil)).
		Column("wp.id").
		Where("wp.from_address = ? OR wp.to_address = ?", address, address).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet pairs for address: %w", err)
	}
	return ids, nil
}
