package storage

import (
	"context"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage",
	fx.Provide(NewClient),
	fx.Provide(NewS3Store),
	fx.Provide(func(s *S3Store) ObjectStore { return s }),
	fx.Invoke(ensureBucket),
)

func ensureBucket(lc fx.Lifecycle, client *minio.Client, store *S3Store, log *zap.Logger) {
	log = log.Named("storage")
	if client == nil {
		log.Warn("object storage endpoint not configured; generation and downloads are unavailable")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.EnsureBucket(ctx); err != nil {
				log.Warn("ensure bucket failed", zap.Error(err))
			}
			return nil
		},
	})
}
