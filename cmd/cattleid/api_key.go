package cmd

import (
	"fmt"

	"github.com/cozy-creator/cattleid/internal/config"
	"github.com/cozy-creator/cattleid/internal/utils/hashutil"
	"github.com/cozy-creator/cattleid/internal/utils/randutil"
	"github.com/spf13/cobra"
)

var apiKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Manage cattleid API keys",
}

func init() {
	newAPIKeyCmd := &cobra.Command{
		Use:   "new",
		Short: "Creates a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := randutil.RandomString(32)
			if err != nil {
				return err
			}

			fmt.Printf("API key created: %s\n", key)
			fmt.Printf("Add this hash to api_key_hashes in config.yaml:\n%s\n", hashutil.Sha3256Hash([]byte(key)))
			return nil
		},
	}

	listAPIKeysCmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured API key hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustGetConfig()

			if len(cfg.APIKeyHashes) == 0 {
				fmt.Println("No API keys configured; authentication is disabled")
				return nil
			}

			fmt.Println("API key hashes:")
			for _, hash := range cfg.APIKeyHashes {
				fmt.Println(randutil.MaskString(hash, 8, 4))
			}

			return nil
		},
	}

	apiKeyCmd.AddCommand(newAPIKeyCmd, listAPIKeysCmd)
}
