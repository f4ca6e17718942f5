package main

import (
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alexphiev/empreinte-enrich/internal/catalog"
	"github.com/alexphiev/empreinte-enrich/internal/media"
	"github.com/alexphiev/empreinte-enrich/pkg/commons"
	"github.com/alexphiev/empreinte-enrich/pkg/gplaces"
)

var (
	photosLimit       int
	photosConcurrency int
)

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "Fetch photos for places that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engine, err := initEngine()
		if err != nil {
			return err
		}

		opts := []media.Option{}
		if cfg.Google.PlacesKey != "" {
			opts = append(opts, media.WithGooglePlaces(gplaces.NewClient(cfg.Google.PlacesKey)))
		} else {
			zap.L().Info("no google places key configured, paid fallback disabled")
		}
		orchestrator := media.New(st, commons.NewClient(), engine, opts...)

		limit := photosLimit
		if limit == 0 {
			limit = cfg.Batch.Limit
		}
		places, err := st.ListPlaces(ctx, catalog.PlaceFilter{WithoutPhotos: true, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "list places without photos")
		}
		if len(places) == 0 {
			zap.L().Info("no places awaiting photos")
			return nil
		}

		concurrency := photosConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.Concurrency
		}
		zap.L().Info("fetching photos",
			zap.Int("places", len(places)),
			zap.Int("concurrency", concurrency),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		var succeeded, failed atomic.Int64
		for i := range places {
			place := places[i]
			g.Go(func() error {
				result := orchestrator.FetchPhotos(gctx, &place)
				if !result.Success {
					failed.Add(1)
					zap.L().Warn("photo fetch failed",
						zap.String("place_id", place.ID),
						zap.String("name", place.Name),
						zap.String("reason", result.Error),
					)
					return nil
				}
				succeeded.Add(1)
				zap.L().Info("photos fetched",
					zap.String("place_id", place.ID),
					zap.String("name", place.Name),
					zap.Int("photos", result.PhotosFound),
					zap.String("source", string(result.Source)),
				)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "photos batch")
		}

		zap.L().Info("photo fetch complete",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)
		return nil
	},
}

func init() {
	photosCmd.Flags().IntVar(&photosLimit, "limit", 0, "max places to process (default from config)")
	photosCmd.Flags().IntVar(&photosConcurrency, "concurrency", 0, "concurrent workers (default from config)")
	rootCmd.AddCommand(photosCmd)
}
