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
		log.Println("creating conversions table...")
		if err := mghelper.CreateSchema(ctx, db, &conversionstore.ConversionDao{}); err != nil {
			return err
		}
		// wallet_pair_id + status serves LatestPendingConversion, created_at the
		// expiry sweep.
		return mghelper.CreateModelIndexes(ctx, db, &conversionstore.ConversionDao{},
			"wallet_pair_id", "status", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping conversions table...")
		return mghelper.DropTables(ctx, db, &conversionstore.ConversionDao{})
	})
}
