package cmd

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cozy-creator/cattleid/internal/app"
	"github.com/cozy-creator/cattleid/internal/config"
	"github.com/cozy-creator/cattleid/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identification server",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()

	flags.Int("port", config.DefaultPort, "Port to run the server on")
	flags.String("host", config.DefaultHost, "Host to run the server on")
	flags.Bool("disable-auth", false, "Disable API key authentication")
	flags.String("public-dir", "", "Path where the web front-end should be served from. Relative paths are relative to the current working directory.")
	flags.String("models-dir", "", "Directory holding the model bundles")
	flags.Int("inference-workers", 1, "Maximum number of concurrent inferences")
	flags.String("camera-url", "", "URL of an MJPEG or snapshot network camera")

	viper.BindPFlag("port", flags.Lookup("port"))
	viper.BindPFlag("host", flags.Lookup("host"))
	viper.BindPFlag("disable_auth", flags.Lookup("disable-auth"))
	viper.BindPFlag("public_dir", flags.Lookup("public-dir"))
	viper.BindPFlag("models_dir", flags.Lookup("models-dir"))
	viper.BindPFlag("inference_workers", flags.Lookup("inference-workers"))
	viper.BindPFlag("camera.url", flags.Lookup("camera-url"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.MustGetConfig()

	app, err := app.NewApp(cfg, app.WithRuntime())
	if err != nil {
		return err
	}
	defer app.Close()

	app.Start()

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}
	srv.SetupRoutes(app)

	errc := make(chan error, 1)
	go func() {
		app.Logger.Info("cattleid started", zap.String("addr", srv.Addr()))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalc)

	select {
	case err := <-errc:
		return err
	case <-signalc:
		app.Logger.Info("stopping server")
		return srv.Stop(app.Context())
	}
}
