package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alexphiev/empreinte-enrich/internal/model"
	"github.com/alexphiev/empreinte-enrich/internal/verify"
	"github.com/alexphiev/empreinte-enrich/pkg/overpass"
)

var verifyLimit int

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify pending generated places against OpenStreetMap",
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

		resolver := verify.New(st, overpass.NewClient(), engine)

		limit := verifyLimit
		if limit == 0 {
			limit = cfg.Batch.Limit
		}
		counts, err := resolver.ResolvePending(ctx, limit)
		if err != nil {
			return err
		}

		zap.L().Info("verification complete",
			zap.Int("added", counts[model.MatchAdded]),
			zap.Int("no_match", counts[model.MatchNone]),
			zap.Int("no_nature_match", counts[model.MatchNoNature]),
			zap.Int("multiple_matches", counts[model.MatchMultiple]),
		)
		return nil
	},
}

func init() {
	verifyCmd.Flags().IntVar(&verifyLimit, "limit", 0, "max pending candidates to process (default from config)")
	rootCmd.AddCommand(verifyCmd)
}
