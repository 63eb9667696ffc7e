package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	handler "github.com/raid-guild/erc20-paymaster-go/api"
)

// newRouter mounts the paymaster handlers on a gin engine.
func newRouter(h *handler.Handler) *gin.Engine {
	router := gin.Default()
	router.Use(configureCORS())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/validate", gin.WrapF(h.Validate))
	router.POST("/settle", gin.WrapF(h.Settle))
	router.GET("/status", gin.WrapF(h.Status))

	return router
}

// configureCORS returns a configured CORS middleware
func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	// Get allowed origins from environment variable
	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		origins := strings.Split(originsEnv, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		corsConfig.AllowOrigins = origins
	}

	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-API-Key"}

	return cors.New(corsConfig)
}
