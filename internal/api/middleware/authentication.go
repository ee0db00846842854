package middleware

import (
	"net/http"

	"github.com/cozy-creator/cattleid/internal/app"
	"github.com/cozy-creator/cattleid/internal/utils/hashutil"
	"github.com/gin-gonic/gin"
)

// AuthenticationMiddleware checks X-API-Key against the configured sha3-256
// key hashes. Auth is off when disable_auth is set or no keys are configured.
func AuthenticationMiddleware(ctx *gin.Context) {
	app := ctx.MustGet("app").(*app.App)
	cfg := app.Config()

	if cfg.DisableAuth || len(cfg.APIKeyHashes) == 0 {
		ctx.Next()
		return
	}

	apikey := ctx.Request.Header.Get("X-API-Key")
	if apikey == "" {
		if ctx.Request.Header.Get("Authorization") != "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token based authorization is not allowed"})
			return
		}

		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized access"})
		return
	}

	apikeyHash := hashutil.Sha3256Hash([]byte(apikey))
	for _, hash := range cfg.APIKeyHashes {
		if hashutil.EqualHex(apikeyHash, hash) {
			ctx.Next()
			return
		}
	}

	ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "The provided API key is invalid"})
}
