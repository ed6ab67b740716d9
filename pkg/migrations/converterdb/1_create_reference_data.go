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
		log.Println("creating blockchains, tokens and token_pairs tables...")
		if err := mghelper.CreateSchema(ctx, db,
			&conversionstore.BlockchainDao{},
			&conversionstore.TokenDao{},
			&conversionstore.TokenPairDao{},
		); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &conversionstore.TokenDao{}, "blockchain_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping blockchains, tokens and token_pairs tables...")
		return mghelper.DropTables(ctx, db,
			&conversionstore.TokenPairDao{},
			&conversionstore.TokenDao{},
			&conversionstore.BlockchainDao{},
		)
	})
}
