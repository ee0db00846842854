package server

import (
	"net/http"

	"github.com/cozy-creator/cattleid/internal/api"
	"github.com/cozy-creator/cattleid/internal/api/middleware"
	"github.com/cozy-creator/cattleid/internal/app"
	"github.com/gin-gonic/gin"
)

func (s *Server) SetupRoutes(app *app.App) {
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := s.ginEngine.Group("/api/v1")
	apiV1.Use(handlerWrapper(app, middleware.AuthenticationMiddleware))

	apiV1.GET("/models", handlerWrapper(app, api.ListModels))
	apiV1.GET("/labels", handlerWrapper(app, api.GetLabels))
	apiV1.POST("/identify", handlerWrapper(app, api.Identify))
	apiV1.POST("/crop", handlerWrapper(app, api.CropImage))

	apiV1.POST("/capture", handlerWrapper(app, api.OpenCapture))
	apiV1.POST("/capture/:id/frame", handlerWrapper(app, api.CaptureFrame))
	apiV1.DELETE("/capture/:id", handlerWrapper(app, api.CancelCapture))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
