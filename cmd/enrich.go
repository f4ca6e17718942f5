package main

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alexphiev/empreinte-enrich/internal/catalog"
	"github.com/alexphiev/empreinte-enrich/internal/enrich"
	"github.com/alexphiev/empreinte-enrich/internal/model"
	"github.com/alexphiev/empreinte-enrich/internal/scorer"
	"github.com/alexphiev/empreinte-enrich/internal/summarize"
	"github.com/alexphiev/empreinte-enrich/pkg/gplaces"
	"github.com/alexphiev/empreinte-enrich/pkg/wikipedia"
)

var (
	enrichID          string
	enrichRef         string
	enrichLimit       int
	enrichConcurrency int
	enrichForce       bool
)

// enrichDeps bundles the collaborators one enrichment pass needs.
type enrichDeps struct {
	store      catalog.Store
	enricher   *enrich.Enricher
	engine     *scorer.Engine
	summarizer summarize.Summarizer
	places     gplaces.Client
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich places with encyclopedia data and recompute scores",
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

		wikiCache, err := initCache("wikipedia")
		if err != nil {
			return err
		}

		deps := enrichDeps{
			store:  st,
			engine: engine,
			enricher: enrich.New(wikipedia.NewClient(), wikiCache,
				enrich.WithLanguages(cfg.Wikipedia.Languages...)),
		}
		if cfg.Anthropic.Key != "" {
			deps.summarizer = summarize.NewAnthropic(cfg.Anthropic.Key, summarize.WithModel(cfg.Anthropic.Model))
		} else {
			zap.L().Info("no anthropic key configured, descriptions fall back to raw extracts")
		}
		if cfg.Google.PlacesKey != "" {
			deps.places = gplaces.NewClient(cfg.Google.PlacesKey)
		}

		if enrichID != "" {
			place, err := st.GetPlace(ctx, enrichID)
			if err != nil {
				return eris.Wrapf(err, "load place %s", enrichID)
			}
			return deps.enrichPlace(ctx, place, enrichRef, enrichForce)
		}

		limit := enrichLimit
		if limit == 0 {
			limit = cfg.Batch.Limit
		}
		places, err := st.ListPlaces(ctx, catalog.PlaceFilter{Limit: limit})
		if err != nil {
			return eris.Wrap(err, "list places")
		}
		if len(places) == 0 {
			zap.L().Info("no places to enrich")
			return nil
		}

		concurrency := enrichConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.Concurrency
		}
		zap.L().Info("enriching places",
			zap.Int("places", len(places)),
			zap.Int("concurrency", concurrency),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		var succeeded, failed atomic.Int64
		for i := range places {
			place := places[i]
			g.Go(func() error {
				if err := deps.enrichPlace(gctx, &place, "", enrichForce); err != nil {
					failed.Add(1)
					zap.L().Error("enrichment failed",
						zap.String("place_id", place.ID),
						zap.String("name", place.Name),
						zap.Error(err),
					)
					return nil // keep the batch going
				}
				succeeded.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "enrich batch")
		}

		zap.L().Info("enrichment complete",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)
		return nil
	},
}

// enrichPlace fetches encyclopedia material for one place, recomputes
// its enhancement score from current signals, and fills in a missing
// description.
func (d enrichDeps) enrichPlace(ctx context.Context, place *model.Place, ref string, force bool) error {
	var page *enrich.Page
	var err error
	if ref != "" {
		page, err = d.enricher.FetchByReference(ctx, ref, force)
	} else {
		page, err = d.enricher.FetchByName(ctx, place.Name, force)
	}
	if err != nil && !eris.Is(err, enrich.ErrNoArticle) {
		return err
	}

	var signals []model.EnrichmentSignal
	if page != nil {
		signals = append(signals, page.Signal())
	}

	hasPhotos, err := d.store.HasPhotos(ctx, place.ID)
	if err != nil {
		return eris.Wrapf(err, "check photos for %s", place.ID)
	}
	if hasPhotos {
		signals = append(signals, model.EnrichmentSignal{
			Kind:       model.SignalPhotoSet,
			Source:     "catalog",
			PhotoCount: 1,
		})
	}

	if sig := d.ratingSignal(ctx, place); sig != nil {
		signals = append(signals, *sig)
	}

	place.EnhancementScore = d.engine.EnhancementScore(signals, place.Website != "")
	place.RecomputeScore()
	if err := d.store.UpdateScores(ctx, place.ID, place.SourceScore, place.EnhancementScore, place.Score); err != nil {
		return eris.Wrapf(err, "update scores for %s", place.ID)
	}

	if place.Description == "" && page != nil && page.Extract != "" {
		if err := d.updateDescription(ctx, place, page); err != nil {
			return err
		}
	}

	zap.L().Info("place enriched",
		zap.String("place_id", place.ID),
		zap.String("name", place.Name),
		zap.Bool("article_found", page != nil),
		zap.Int("score", place.Score),
	)
	return nil
}

// ratingSignal fetches the provider rating for places already resolved
// to a provider id. Best-effort: a fetch failure just omits the signal.
func (d enrichDeps) ratingSignal(ctx context.Context, place *model.Place) *model.EnrichmentSignal {
	if d.places == nil || place.GooglePlaceID == "" {
		return nil
	}
	details, err := d.places.FetchDetails(ctx, place.GooglePlaceID)
	if err != nil {
		zap.L().Warn("rating fetch failed",
			zap.String("place_id", place.ID),
			zap.Error(err),
		)
		return nil
	}
	if details.Rating == nil {
		return nil
	}
	return &model.EnrichmentSignal{
		Kind:        model.SignalRating,
		Source:      "google",
		Rating:      details.Rating,
		ReviewCount: details.ReviewCount,
	}
}

func (d enrichDeps) updateDescription(ctx context.Context, place *model.Place, page *enrich.Page) error {
	description := page.Extract
	if d.summarizer != nil {
		generated, err := d.summarizer.Describe(ctx, summarize.Request{
			PlaceName: place.Name,
			Extract:   page.Extract,
			Infobox:   page.Infobox,
			Language:  page.Language,
		})
		if err != nil {
			// Fall back to the raw extract rather than leave the place
			// without a description.
			zap.L().Warn("description generation failed",
				zap.String("place_id", place.ID),
				zap.Error(err),
			)
		} else {
			description = generated
		}
	}
	if err := d.store.UpdateDescription(ctx, place.ID, description); err != nil {
		return eris.Wrapf(err, "update description for %s", place.ID)
	}
	place.Description = description
	return nil
}

func init() {
	enrichCmd.Flags().StringVar(&enrichID, "id", "", "enrich a single place by id")
	enrichCmd.Flags().StringVar(&enrichRef, "ref", "", "explicit article reference (lang:Title), only with --id")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max places to process (default from config)")
	enrichCmd.Flags().IntVar(&enrichConcurrency, "concurrency", 0, "concurrent workers (default from config)")
	enrichCmd.Flags().BoolVar(&enrichForce, "force-refresh", false, "bypass the source cache")
	rootCmd.AddCommand(enrichCmd)
}
