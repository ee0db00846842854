package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cozy-creator/cattleid/internal/app"
	"github.com/cozy-creator/cattleid/internal/config"
	"github.com/cozy-creator/cattleid/internal/prediction"
	"github.com/cozy-creator/cattleid/internal/utils/imageutil"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>...",
	Short: "Identify the subject of one or more photos",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIdentify,
}

func init() {
	flags := identifyCmd.Flags()

	flags.String("model", "", "Model to identify with (defaults to default_model)")
	flags.String("crop", "", "Crop rectangle in source pixels: x,y,width,height")
	flags.Duration("load-timeout", 2*time.Minute, "How long to wait for models and labels to load")
}

type fileResult struct {
	File string `json:"file"`
	*prediction.Result
}

func runIdentify(cmd *cobra.Command, args []string) error {
	cfg := config.MustGetConfig()
	flags := cmd.Flags()

	modelID, _ := flags.GetString("model")
	if modelID == "" {
		modelID = cfg.DefaultModel
	}
	modelID = config.NormalizeModelID(modelID)

	var rect *imageutil.Rect
	if crop, _ := flags.GetString("crop"); crop != "" {
		r, err := imageutil.ParseRect(crop)
		if err != nil {
			return err
		}
		rect = &r
	}

	app, err := app.NewApp(cfg, app.WithRuntime())
	if err != nil {
		return err
	}
	defer app.Close()

	app.Start()

	timeout, _ := flags.GetDuration("load-timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if err := app.Session().WaitReady(ctx); err != nil {
		return fmt.Errorf("models did not finish loading: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		img, _, err := imageutil.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if rect != nil {
			if img, err = imageutil.Crop(img, *rect); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}

		result, err := app.Session().Identify(cmd.Context(), modelID, img)
		if err != nil {
			return err
		}

		if err := encoder.Encode(fileResult{File: path, Result: result}); err != nil {
			return err
		}
	}

	return nil
}
