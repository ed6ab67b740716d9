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
		log.Println("creating wallet_pairs table...")
		if err := mghelper.CreateSchema(ctx, db, &conversionstore.WalletPairDao{}); err != nil {
			return err
		}
		// One binding per (token pair, from, to); EnsureWalletPair upserts on it.
		_, err := db.NewCreateIndex().
			Model(&conversionstore.WalletPairDao{}).
			Index("idx_wallet_pairs_binding").
			Column("token_pair_id", "from_address", "to_address").
			Unique().
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping wallet_pairs table...")
		return mghelper.DropTables(ctx, db, &conversionstore.WalletPairDao{})
	})
}
