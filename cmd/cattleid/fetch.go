package cmd

import (
	"os"

	"github.com/cozy-creator/cattleid/internal/artifacts"
	"github.com/cozy-creator/cattleid/internal/config"
	"github.com/cozy-creator/cattleid/pkg/logger"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [model]...",
	Short: "Download model bundles into the models directory",
	Long:  "Download the bundles of the given models, or of every model with a configured source, and verify their weight shards",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustGetConfig()

		logger, err := logger.InitLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ids := make([]string, len(args))
		for i, arg := range args {
			ids[i] = config.NormalizeModelID(arg)
		}

		fetcher := artifacts.NewFetcher(cfg,
			artifacts.WithLogger(logger),
			artifacts.WithProgress(os.Stderr),
		)

		return fetcher.FetchAll(cmd.Context(), ids)
	},
}
