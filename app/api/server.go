package api

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lmzhao/zhisieve/app/cfg"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	// Set Gin mode (can be controlled via GIN_MODE environment variable)
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware, the relay runs on a different origin
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	// Health and status endpoints
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	// Read-only inspection endpoints
	r.GET("/dom/render", handler.GetRenderedDocument)
	r.GET("/dom/hidden", handler.GetHidden)
	r.GET("/decisions", handler.GetDecisions)

	// Mutating endpoints (authenticated when an API key is configured)
	mutating := r.Group("/")
	if apiAccessKey != "" {
		mutating.Use(authMiddleware(apiAccessKey))
		log.Printf("Mutating endpoints enabled with authentication")
	} else {
		log.Printf("Mutating endpoints enabled without authentication (API_ACCESS_KEY not set)")
	}
	{
		mutating.POST("/dom/document", handler.PostDocument)
		mutating.POST("/dom/mutations", handler.PostMutations)
		mutating.POST("/commands", handler.PostCommand)
		mutating.POST("/classify", handler.PostClassify)
		mutating.GET("/config", handler.GetConfig)
	}

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"health":    "/health",
			"stats":     "/stats",
			"render":    "/dom/render",
			"hidden":    "/dom/hidden",
			"decisions": "/decisions",
			"document":  "/dom/document (POST)",
			"mutations": "/dom/mutations (POST)",
			"commands":  "/commands (POST)",
			"classify":  "/classify (POST)",
			"config":    "/config",
		}

		c.JSON(200, gin.H{
			"service":     "zhisieve",
			"version":     cfg.GetVersion(),
			"description": "Server-side content filter for Zhihu pages: mirrors the DOM, hides keyword-matched feed items and comments",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for mutating endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get API key from X-API-Key header
		providedKey := c.GetHeader("X-API-Key")

		// Also check Authorization header with Bearer prefix
		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
