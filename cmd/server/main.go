package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/auth"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/database"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/engine"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/ledger"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/oracle"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the products API server with graceful shutdown
// support. The Ledger and Price Oracle are in-process simulations; swapping
// in real clients is a wiring change here only.
func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "culturebridge.db"
	}
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(middleware.JWTSecret())
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	ledgerClient := ledger.NewSimulator(ledger.DefaultSimulatorConfig())
	oracleFeed := oracle.NewStaticFeed()

	oracleHandlers := oracle.NewGinHandlers(oracleFeed)

	eng := engine.New(db, ledgerClient, oracleFeed, engine.DefaultConfig())
	engineHandlers := engine.NewGinHandlers(eng)

	// Create and start the background reconciler
	reconciler := engine.NewReconciler(eng)
	reconcilerCtx, reconcilerCancel := context.WithCancel(context.Background())
	defer reconcilerCancel()

	go reconciler.Start(reconcilerCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, engineHandlers, oracleHandlers)

	// Get port from env otherwise it's 8080
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers.
// Auth routes are public; every product route requires a JWT whose
// client id is the caller's wallet address.
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	engineHandlers *engine.GinHandlers,
	oracleHandlers *oracle.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Loan routes
		loans := v1.Group("/loans")
		loans.Use(middleware.JWTAuth())
		{
			loans.POST("", engineHandlers.CreateLoanHandler())
			loans.GET("/:loan_id", engineHandlers.GetLoanHandler())
			loans.POST("/:loan_id/match", engineHandlers.MatchLoanOfferHandler())
			loans.POST("/:loan_id/repay", engineHandlers.RepayLoanHandler())
			loans.POST("/:loan_id/liquidate", engineHandlers.LiquidateLoanHandler())
			loans.POST("/:loan_id/cancel", engineHandlers.CancelLoanHandler())
		}

		// Rental routes
		rentals := v1.Group("/rentals")
		rentals.Use(middleware.JWTAuth())
		{
			rentals.POST("", engineHandlers.CreateRentalHandler())
			rentals.GET("/:rental_id", engineHandlers.GetRentalHandler())
			rentals.POST("/:rental_id/rent", engineHandlers.RentAssetHandler())
			rentals.POST("/:rental_id/complete", engineHandlers.CompleteRentalHandler())
			rentals.POST("/:rental_id/expire", engineHandlers.ExpireRentalHandler())
			rentals.POST("/:rental_id/delist", engineHandlers.DelistRentalHandler())
		}

		// Fraction routes
		fractions := v1.Group("/fractions")
		fractions.Use(middleware.JWTAuth())
		{
			fractions.POST("", engineHandlers.CreateFractionHandler())
			fractions.GET("/:fraction_id", engineHandlers.GetFractionHandler())
			fractions.POST("/:fraction_id/redeem", engineHandlers.RedeemFractionHandler())
		}

		// Derivative routes
		derivatives := v1.Group("/derivatives")
		derivatives.Use(middleware.JWTAuth())
		{
			derivatives.POST("", engineHandlers.CreateDerivativeHandler())
			derivatives.GET("/:derivative_id", engineHandlers.GetDerivativeHandler())
			derivatives.POST("/:derivative_id/purchase", engineHandlers.PurchaseDerivativeHandler())
			derivatives.POST("/:derivative_id/exercise", engineHandlers.ExerciseDerivativeHandler())
			derivatives.POST("/:derivative_id/cancel", engineHandlers.CancelDerivativeHandler())
		}

		// Portfolio
		portfolio := v1.Group("/portfolio")
		portfolio.Use(middleware.JWTAuth())
		{
			portfolio.GET("", engineHandlers.PortfolioHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/oracle/quote", oracleHandlers.SetQuoteHandler())
		}
	}
}
