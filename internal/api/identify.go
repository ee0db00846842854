package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cozy-creator/cattleid/internal/config"
	"github.com/cozy-creator/cattleid/internal/prediction"
	"github.com/cozy-creator/cattleid/internal/session"
	"github.com/cozy-creator/cattleid/internal/utils/imageutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ListModels(c *gin.Context) {
	app := getApp(c)
	s := app.Session()

	table, ready := s.Labels()
	respond(c, http.StatusOK, gin.H{
		"default_model": app.Config().DefaultModel,
		"models":        s.Status(),
		"labels": gin.H{
			"ready":   ready,
			"classes": len(table),
		},
	})
}

func GetLabels(c *gin.Context) {
	table, ready := getApp(c).Session().Labels()
	if !ready {
		respondError(c, http.StatusServiceUnavailable, "labels are still loading")
		return
	}

	respond(c, http.StatusOK, gin.H{"labels": table})
}

// Identify runs the full pipeline on an uploaded image: optional crop,
// encoding for the chosen model, inference and decision. Nothing is read
// or decoded until the model and labels are ready.
func Identify(c *gin.Context) {
	app := getApp(c)
	s := app.Session()

	modelID := config.NormalizeModelID(c.DefaultPostForm("model", app.Config().DefaultModel))
	if !s.Has(modelID) {
		respondError(c, http.StatusBadRequest, "unknown model: "+modelID)
		return
	}
	if !s.Ready(modelID) {
		respondError(c, http.StatusServiceUnavailable, "model "+modelID+" is not ready")
		return
	}

	data, err := readImage(c)
	if err != nil {
		imageErrorStatus(c, err)
		return
	}

	rect, err := bindRect(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	img, _, err := imageutil.Decode(data)
	if err != nil {
		imageErrorStatus(c, err)
		return
	}

	if rect != nil {
		if img, err = imageutil.Crop(img, *rect); err != nil {
			imageErrorStatus(c, err)
			return
		}
	}

	result, err := s.Identify(c.Request.Context(), modelID, img)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownModel):
			respondError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, session.ErrNotReady), errors.Is(err, session.ErrClosed):
			respondError(c, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respondError(c, http.StatusRequestTimeout, "request cancelled")
		default:
			app.Logger.Error("identify failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, prediction.PredictionFailed)
		}
		return
	}

	status := http.StatusOK
	if result.Failed() {
		status = http.StatusInternalServerError
	}

	respond(c, status, result)
}

// CropImage returns the uploaded image cropped to the requested rectangle
// as JPEG, for previewing a selection before identifying it.
func CropImage(c *gin.Context) {
	data, err := readImage(c)
	if err != nil {
		imageErrorStatus(c, err)
		return
	}

	rect, err := bindRect(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if rect == nil {
		respondError(c, http.StatusBadRequest, "crop rectangle is required")
		return
	}

	output, err := imageutil.CropJPEG(data, *rect, imageutil.DefaultJPEGQuality)
	if err != nil {
		imageErrorStatus(c, err)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", output)
}
