package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alexphiev/empreinte-enrich/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the on-disk source cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show entry counts per cache namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		namespaces, err := cacheNamespaces()
		if err != nil {
			return err
		}
		if len(namespaces) == 0 {
			fmt.Println("cache is empty")
			return nil
		}
		for _, ns := range namespaces {
			c, err := cache.New(cfg.Cache.Dir, ns)
			if err != nil {
				return err
			}
			fmt.Printf("%-16s %d entries\n", ns, c.Len())
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [namespace]",
	Short: "Delete cached source responses, all namespaces or one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var namespaces []string
		var err error
		if len(args) == 1 {
			namespaces = args
		} else {
			namespaces, err = cacheNamespaces()
			if err != nil {
				return err
			}
		}
		for _, ns := range namespaces {
			c, err := cache.New(cfg.Cache.Dir, ns)
			if err != nil {
				return err
			}
			if err := c.Clear(); err != nil {
				return err
			}
			zap.L().Info("cache namespace cleared", zap.String("namespace", ns))
		}
		return nil
	},
}

// cacheNamespaces lists the namespace subdirectories of the cache dir.
func cacheNamespaces() ([]string, error) {
	entries, err := os.ReadDir(cfg.Cache.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "read cache dir")
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
