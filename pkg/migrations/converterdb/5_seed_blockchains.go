package converterdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/openbridge/converter-core/pkg/conversion"
	"github.com/openbridge/converter-core/pkg/conversionstore"
	mghelper "github.com/openbridge/converter-core/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("seeding blockchains...")
		return mghelper.InsertEntry(ctx, db,
			&conversionstore.BlockchainDao{
				Name:    conversion.ChainEthereum,
				ChainID: 11155111,
				Family:  string(conversion.FamilyAccount),
			},
			&conversionstore.BlockchainDao{
				Name:    conversion.ChainCardano,
				ChainID: 2,
				Family:  string(conversion.FamilyUTXO),
			},
		)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("removing seeded blockchains...")
		return mghelper.TruncateTables(ctx, db, &conversionstore.BlockchainDao{})
	})
}
