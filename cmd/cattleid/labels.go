package cmd

import (
	"fmt"

	"github.com/cozy-creator/cattleid/internal/config"
	"github.com/cozy-creator/cattleid/internal/labels"
	"github.com/spf13/cobra"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Print the class label table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustGetConfig()

		table, err := labels.Fetch(cmd.Context(), cfg.Labels.Source, cfg.LabelsTimeout())
		if err != nil {
			return err
		}

		for i := range table {
			fmt.Printf("%d\t%s\n", i, table.Name(i))
		}

		return nil
	},
}
