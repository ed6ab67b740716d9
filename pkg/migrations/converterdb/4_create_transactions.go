package converterdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/openbridge/converter-core/pkg/conversionstore"
	mghelper "github.com/openbridge/converter-core/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating conversion_transactions and transactions tables...")
		if err := mghelper.CreateSchema(ctx, db,
			&conversionstore.ConversionTransactionDao{},
			&conversionstore.TransactionDao{},
		); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db,
			&conversionstore.ConversionTransactionDao{}, "conversion_id"); err != nil {
			return err
		}
		// transaction_hash uniqueness is the concurrency guard for evidence
		// idempotency, not just a lookup accelerator.
		return mghelper.CreateModelUniqueIndexes(ctx, db,
			&conversionstore.TransactionDao{}, "transaction_hash")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping conversion_transactions and transactions tables...")
		return mghelper.DropTables(ctx, db,
			&conversionstore.TransactionDao{},
			&conversionstore.ConversionTransactionDao{},
		)
	})
}
