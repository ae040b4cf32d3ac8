package apiroutes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/john-matlock-eng/journal-vault/api"
	"github.com/john-matlock-eng/journal-vault/api/interceptors"
	"github.com/john-matlock-eng/journal-vault/global"
	"github.com/john-matlock-eng/journal-vault/metrics"
	"github.com/john-matlock-eng/journal-vault/repository"
	"github.com/john-matlock-eng/journal-vault/services"
	"github.com/john-matlock-eng/journal-vault/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewAPIRouter creates the gin engine with the middleware every route shares.
func NewAPIRouter() *gin.Engine {
	if global.Conf.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	return router
}

// REST API routes
func ConfigRoutes(router *gin.Engine, dbSelector *repository.CouchDBSelector, env *types.Environment) *gin.Engine {
	// init metrics
	if global.Conf.Prometheus.Enabled {
		metrics.InitMetrics()

		authorized := router.Group("/metrics", gin.BasicAuth(gin.Accounts{
			global.Conf.Prometheus.Username: global.Conf.Prometheus.Password,
		}))
		authorized.GET("", gin.WrapH(promhttp.Handler()))
	}

	// SERVICE definitions
	encryptionService := services.NewEncryptionService(dbSelector, env)
	shareService := services.NewShareService(dbSelector, env)
	aiShareService := services.NewAIShareService(dbSelector, shareService, env)
	userService := services.NewUserService(dbSelector)

	// API definitions
	encryptionApi := api.NewEncryptionApi(encryptionService)
	shareApi := api.NewShareApi(shareService, encryptionService)
	aiShareApi := api.NewAIShareApi(aiShareService, encryptionService)
	userApi := api.NewUserApi(userService)
	healthApi := api.NewHealthCheckApi()

	// PUBLIC API
	publicApi := router.Group("/api", metrics.MetricsMiddleware(), interceptors.RateLimitMiddleware())
	{
		publicApi.GET("/v1/healthcheck", healthApi.HealthCheck)
	}

	// every key material route requires a valid bearer token
	rootApi := router.Group("/api", metrics.MetricsMiddleware(), interceptors.RateLimitMiddleware(), interceptors.BearerMiddleware())
	{
		rootApi.POST("/v1/encryption/setup", encryptionApi.Setup)
		rootApi.GET("/v1/encryption/check", encryptionApi.Check)
		rootApi.GET("/v1/encryption/keys/:userId", encryptionApi.GetUserBundle)
		rootApi.DELETE("/v1/encryption/keys", encryptionApi.Reset)

		rootApi.POST("/v1/encryption/shares", shareApi.CreateShare)
		rootApi.GET("/v1/encryption/shares", shareApi.ListShares)
		rootApi.GET("/v1/encryption/shares/:shareId/key", shareApi.GetShareKey)
		rootApi.DELETE("/v1/encryption/shares/:shareId", shareApi.RevokeShare)

		rootApi.POST("/v1/encryption/ai-shares", aiShareApi.CreateAIShares)
		rootApi.GET("/v1/encryption/ai-shares/:requestId", aiShareApi.GetAnalysisRequest)

		rootApi.PUT("/v1/users/email-mapping", userApi.RegisterEmailMapping)
		rootApi.GET("/v1/users/by-email/:email", userApi.GetUserByEmail)
	}

	return router
}
