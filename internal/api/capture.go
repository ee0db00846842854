package api

import (
	"errors"
	"net/http"

	"github.com/cozy-creator/cattleid/internal/capture"
	"github.com/cozy-creator/cattleid/internal/utils/imageutil"
	"github.com/gin-gonic/gin"
)

func OpenCapture(c *gin.Context) {
	capt, err := getApp(c).Captures().Open(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}

	respond(c, http.StatusCreated, gin.H{"id": capt.ID})
}

// CaptureFrame freezes one frame of an open capture and returns it as
// JPEG. The camera is released whether or not the frame succeeds.
func CaptureFrame(c *gin.Context) {
	data, err := getApp(c).Captures().Frame(c.Request.Context(), c.Param("id"), imageutil.DefaultJPEGQuality)
	if err != nil {
		captureError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

func CancelCapture(c *gin.Context) {
	if err := getApp(c).Captures().Cancel(c.Param("id")); err != nil {
		captureError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func captureError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, capture.ErrCaptureNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, capture.ErrCaptureClosed):
		respondError(c, http.StatusConflict, err.Error())
	default:
		respondError(c, http.StatusBadGateway, err.Error())
	}
}
