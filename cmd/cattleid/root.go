package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/cozy-creator/cattleid/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "CATTLEID"

var Cmd = &cobra.Command{
	Use:   "cattleid",
	Short: "Local cattle image identification",
	Long:  "Identify cattle in photos with locally run image classifiers, from the command line or over HTTP",

	SilenceUsage: true,

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`,
			`.`, `_`,
		))
		viper.AutomaticEnv()

		return config.InitConfig()
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("home", "", "Path to the cattleid home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")
	pflags.String("onnxruntime-lib", "", "Path to the onnxruntime shared library")
	pflags.String("environment", config.DefaultEnvironment, "Environment configuration: dev, prod or test")

	viper.BindPFlag("home", pflags.Lookup("home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))
	viper.BindPFlag("onnxruntime_lib", pflags.Lookup("onnxruntime-lib"))
	viper.BindPFlag("environment", pflags.Lookup("environment"))

	Cmd.AddCommand(serveCmd, identifyCmd, fetchCmd, labelsCmd, apiKeyCmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
