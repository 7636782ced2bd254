package main

import (
	"fmt"
	"net/http"
	"os"

	"cryptofolio/internal/coingecko"
	"cryptofolio/internal/config"
	"cryptofolio/internal/database"
	"cryptofolio/internal/handlers"
	"cryptofolio/internal/logger"
	"cryptofolio/internal/middleware"
	"cryptofolio/internal/services"
	"cryptofolio/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Cryptofolio API
// @version         1.0
// @description     Cryptofolio lets authenticated users track cryptocurrency holdings priced live from CoinGecko and view aggregate portfolio metrics.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.Migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Register custom binding validators
	validator.Register()

	// Price gateway, with an optional Redis cache in front of it
	var priceCache coingecko.PriceCache
	if appConfig.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: appConfig.RedisAddr})
		priceCache = coingecko.NewRedisCache(redisClient, appConfig.PriceCacheTTL)
		log.Infof("Price cache enabled (redis at %s, ttl %s)", appConfig.RedisAddr, appConfig.PriceCacheTTL)
	}
	priceGateway := coingecko.NewClient(
		&http.Client{Timeout: appConfig.CoinGeckoTimeout},
		appConfig.CoinGeckoBaseURL,
		priceCache,
	)

	// Initialize services
	db := dbManager.DB()
	portfolioService := services.NewPortfolioService(db, priceGateway)

	// Initialize handlers
	holdingHandler := handlers.NewHoldingHandler(portfolioService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group, all routes require an identity-provider-issued token
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware())

	coins := v1.Group("/coins")
	coins.POST("", holdingHandler.CreateHolding)
	coins.GET("", holdingHandler.GetHoldings)
	coins.GET("/available", holdingHandler.GetAvailableCoins)
	coins.DELETE("/:names", holdingHandler.DeleteHoldings)

	v1.GET("/portfolio", portfolioHandler.GetPortfolio)

	log.Infof("Starting Cryptofolio backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
