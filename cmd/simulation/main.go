package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/auth"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/database"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/engine"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/ledger"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/oracle"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/pkg/middleware"
)

const (
	minScenarios  = 10
	maxScenarios  = 40
	numWorkers    = 4
	serverAddress = "http://localhost:8080"

	ownerKey        = "0xalice"
	ownerSecret     = "secret-alice"
	takerKey        = "0xbob"
	takerSecret     = "secret-bob"
	rentalTermSecs  = 1
	scenarioTimeout = 15 * time.Second
)

var collections = []string{"0xculture-punks", "0xbridge-apes", "0xheritage-art"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient drives the products API as two authenticated wallets:
// the owner side (lists, writes contracts) and the taker side (lends,
// rents, buys).
type simulationClient struct {
	baseURL    string
	ownerToken string
	takerToken string
	client     *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: scenarioTimeout},
		stats: map[string]*routeStats{
			"auth":              {name: "Authentication"},
			"quote":             {name: "Set Oracle Quote"},
			"create_loan":       {name: "Create Loan"},
			"match_loan":        {name: "Match Loan Offer"},
			"repay_loan":        {name: "Repay Loan"},
			"create_rental":     {name: "Create Rental"},
			"rent":              {name: "Rent Asset"},
			"complete_rental":   {name: "Complete Rental"},
			"create_fraction":   {name: "Create Fraction"},
			"redeem_fraction":   {name: "Redeem Fraction"},
			"create_derivative": {name: "Create Derivative"},
			"purchase":          {name: "Purchase Derivative"},
			"exercise":          {name: "Exercise Derivative"},
			"portfolio":         {name: "Portfolio"},
		},
	}

	ownerToken, err := sc.authenticate(ownerKey, ownerSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate owner: %w", err)
	}
	sc.ownerToken = ownerToken

	takerToken, err := sc.authenticate(takerKey, takerSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate taker: %w", err)
	}
	sc.takerToken = takerToken

	return sc, nil
}

func (sc *simulationClient) track(statKey string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	rs := sc.stats[statKey]
	rs.addDuration(time.Since(start))
	if failed {
		rs.failures++
	}
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate(apiKey, apiSecret string) (string, error) {
	start := time.Now()
	failed := false
	defer func() { sc.track("auth", start, failed) }()

	body, err := json.Marshal(map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	})
	if err != nil {
		failed = true
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		failed = true
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		failed = true
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		failed = true
		return "", err
	}

	return result.Data.Token, nil
}

// call issues one authenticated API request and decodes the data envelope
// into a generic map. Create endpoints get a fresh idempotency key.
func (sc *simulationClient) call(method, path, token, statKey string, payload interface{}, withIdempotency bool) (map[string]interface{}, error) {
	start := time.Now()
	failed := false
	defer func() { sc.track(statKey, start, failed) }()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			failed = true
			return nil, err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		failed = true
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if withIdempotency {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		failed = true
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		failed = true
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		failed = true
		return nil, fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		failed = true
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

func (sc *simulationClient) setQuote(contract, tokenID, value string) error {
	_, err := sc.call("POST", "/api/v1/internal/oracle/quote", sc.ownerToken, "quote", map[string]string{
		"contract_address": contract,
		"token_id":         tokenID,
		"value":            value,
	}, false)
	return err
}

// randomAsset picks a collection and mints a fresh token id so scenarios
// never contend for the same NFT.
func randomAsset() (string, string) {
	return collections[rand.Intn(len(collections))], uuid.New().String()[:8]
}

// wei builds a decimal wei string from a whole multiplier of 0.01 ETH.
func wei(centiEth int64) string {
	return fmt.Sprintf("%d0000000000000000", centiEth)
}

// runLoanScenario walks one loan through list, match, repay.
func (sc *simulationClient) runLoanScenario() error {
	contract, tokenID := randomAsset()

	// Collateral valued at 1.5 ETH supports a 1 ETH principal at 70%.
	if err := sc.setQuote(contract, tokenID, wei(150)); err != nil {
		return fmt.Errorf("quote: %w", err)
	}

	created, err := sc.call("POST", "/api/v1/loans", sc.ownerToken, "create_loan", map[string]interface{}{
		"contract_address":          contract,
		"token_id":                  tokenID,
		"principal_min":             wei(10),
		"interest_rate_bps":         500,
		"duration_seconds":          7 * 24 * 3600,
		"collateral_factor_bps":     7000,
		"liquidation_threshold_bps": 8500,
	}, true)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	loanID, _ := created["loan_id"].(string)

	path := fmt.Sprintf("/api/v1/loans/%s", loanID)
	if _, err := sc.call("POST", path+"/match", sc.takerToken, "match_loan", map[string]string{
		"principal": wei(100),
	}, false); err != nil {
		return fmt.Errorf("match: %w", err)
	}

	// Pay the full-term ceiling so accrued interest never leaves the
	// payment short.
	if _, err := sc.call("POST", path+"/repay", sc.ownerToken, "repay_loan", map[string]string{
		"payment": wei(105),
	}, false); err != nil {
		return fmt.Errorf("repay: %w", err)
	}

	log.Info().Str("loan_id", loanID).Msg("loan lifecycle completed")
	return nil
}

// runRentalScenario walks one rental through list, rent, and the timed
// completion after the term lapses.
func (sc *simulationClient) runRentalScenario() error {
	contract, tokenID := randomAsset()

	created, err := sc.call("POST", "/api/v1/rentals", sc.ownerToken, "create_rental", map[string]interface{}{
		"contract_address":  contract,
		"token_id":          tokenID,
		"rental_fee":        wei(1),
		"duration_seconds":  rentalTermSecs,
		"collateral":        wei(5),
		"revenue_sharing":   true,
		"revenue_share_bps": 3000,
	}, true)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	rentalID, _ := created["rental_id"].(string)

	path := fmt.Sprintf("/api/v1/rentals/%s", rentalID)
	if _, err := sc.call("POST", path+"/rent", sc.takerToken, "rent", nil, false); err != nil {
		return fmt.Errorf("rent: %w", err)
	}

	time.Sleep(rentalTermSecs*time.Second + 200*time.Millisecond)

	if _, err := sc.call("POST", path+"/complete", sc.takerToken, "complete_rental", nil, false); err != nil {
		return fmt.Errorf("complete: %w", err)
	}

	log.Info().Str("rental_id", rentalID).Msg("rental lifecycle completed")
	return nil
}

// runFractionScenario fractionalizes an NFT and buys it back whole.
func (sc *simulationClient) runFractionScenario() error {
	contract, tokenID := randomAsset()

	created, err := sc.call("POST", "/api/v1/fractions", sc.ownerToken, "create_fraction", map[string]interface{}{
		"contract_address": contract,
		"token_id":         tokenID,
		"total_supply":     "1000000",
		"reserve_price":    wei(200),
	}, true)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	fractionID, _ := created["fraction_id"].(string)

	path := fmt.Sprintf("/api/v1/fractions/%s", fractionID)
	if _, err := sc.call("POST", path+"/redeem", sc.takerToken, "redeem_fraction", map[string]string{
		"payment": wei(200),
		"shares":  "1000000",
	}, false); err != nil {
		return fmt.Errorf("redeem: %w", err)
	}

	log.Info().Str("fraction_id", fractionID).Msg("fraction lifecycle completed")
	return nil
}

// runDerivativeScenario writes a call, sells it, moves the market above
// the strike, and exercises.
func (sc *simulationClient) runDerivativeScenario() error {
	contract, tokenID := randomAsset()

	created, err := sc.call("POST", "/api/v1/derivatives", sc.ownerToken, "create_derivative", map[string]interface{}{
		"contract_address": contract,
		"token_id":         tokenID,
		"kind":             "CALL_OPTION",
		"strike_price":     wei(50),
		"premium":          wei(2),
		"expiration_time":  time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, true)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	derivativeID, _ := created["derivative_id"].(string)

	path := fmt.Sprintf("/api/v1/derivatives/%s", derivativeID)
	if _, err := sc.call("POST", path+"/purchase", sc.takerToken, "purchase", nil, false); err != nil {
		return fmt.Errorf("purchase: %w", err)
	}

	// Market moves above the strike, putting the call in the money.
	if err := sc.setQuote(contract, tokenID, wei(80)); err != nil {
		return fmt.Errorf("quote: %w", err)
	}

	if _, err := sc.call("POST", path+"/exercise", sc.takerToken, "exercise", nil, false); err != nil {
		return fmt.Errorf("exercise: %w", err)
	}

	log.Info().Str("derivative_id", derivativeID).Msg("derivative lifecycle completed")
	return nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 110))
	fmt.Printf("%-22s %8s %8s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 110))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-22s %8d %8d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 110))
}

type scenarioKind int

const (
	scenarioLoan scenarioKind = iota
	scenarioRental
	scenarioFraction
	scenarioDerivative
)

// main runs the products simulation: it starts a local API server and
// drives randomized full lifecycles across all four products.
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetScenarios := rand.Intn(maxScenarios-minScenarios) + minScenarios
	log.Info().Int("target_scenarios", targetScenarios).Msg("Starting simulation")

	type outcome struct {
		kind scenarioKind
		err  error
	}
	results := make(chan outcome, targetScenarios)
	work := make(chan scenarioKind, targetScenarios)
	for i := 0; i < targetScenarios; i++ {
		work <- scenarioKind(i % 4)
	}
	close(work)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for kind := range work {
				var err error
				switch kind {
				case scenarioLoan:
					err = simClient.runLoanScenario()
				case scenarioRental:
					err = simClient.runRentalScenario()
				case scenarioFraction:
					err = simClient.runFractionScenario()
				case scenarioDerivative:
					err = simClient.runDerivativeScenario()
				}
				if err != nil {
					log.Error().Err(err).Int("kind", int(kind)).Msg("scenario failed")
				}
				results <- outcome{kind: kind, err: err}
				time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
			}
		}()
	}

	wg.Wait()
	close(results)

	completed := make(map[scenarioKind]int)
	failed := make(map[scenarioKind]int)
	total, failures := 0, 0
	for res := range results {
		total++
		if res.err != nil {
			failures++
			failed[res.kind]++
		} else {
			completed[res.kind]++
		}
	}

	// Both wallets read their portfolios at the end.
	if _, err := simClient.call("GET", "/api/v1/portfolio", simClient.ownerToken, "portfolio", nil, false); err != nil {
		log.Error().Err(err).Msg("owner portfolio read failed")
	}
	if _, err := simClient.call("GET", "/api/v1/portfolio", simClient.takerToken, "portfolio", nil, false); err != nil {
		log.Error().Err(err).Msg("taker portfolio read failed")
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("PRODUCTS SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	names := map[scenarioKind]string{
		scenarioLoan:       "Loans",
		scenarioRental:     "Rentals",
		scenarioFraction:   "Fractions",
		scenarioDerivative: "Derivatives",
	}
	for kind, name := range names {
		fmt.Printf("%-12s completed: %3d  failed: %3d\n", name, completed[kind], failed[kind])
	}
	fmt.Println(strings.Repeat("=", 80))

	successRate := float64(total-failures) / float64(total) * 100
	log.Info().
		Float64("success_rate", successRate).
		Int("total_scenarios", total).
		Int("failures", failures).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// startServer initializes and starts the products API server in-process,
// mirroring cmd/server with an ephemeral database. The simulated ledger
// reverts a small fraction of intents, so a handful of scenario failures
// is expected output, not a bug.
func startServer() error {
	db, err := database.NewDatabase("file::memory:?cache=shared")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(middleware.JWTSecret())
	authService.RegisterAPICredentials(ownerKey, ownerSecret)
	authService.RegisterAPICredentials(takerKey, takerSecret)

	ledgerClient := ledger.NewSimulator(ledger.DefaultSimulatorConfig())
	oracleFeed := oracle.NewStaticFeed()
	eng := engine.New(db, ledgerClient, oracleFeed, engine.DefaultConfig())

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	engineHandlers := engine.NewGinHandlers(eng)
	oracleHandlers := oracle.NewGinHandlers(oracleFeed)

	setupRoutes(router, authHandlers, engineHandlers, oracleHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	engineHandlers *engine.GinHandlers,
	oracleHandlers *oracle.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

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

		fractions := v1.Group("/fractions")
		fractions.Use(middleware.JWTAuth())
		{
			fractions.POST("", engineHandlers.CreateFractionHandler())
			fractions.GET("/:fraction_id", engineHandlers.GetFractionHandler())
			fractions.POST("/:fraction_id/redeem", engineHandlers.RedeemFractionHandler())
		}

		derivatives := v1.Group("/derivatives")
		derivatives.Use(middleware.JWTAuth())
		{
			derivatives.POST("", engineHandlers.CreateDerivativeHandler())
			derivatives.GET("/:derivative_id", engineHandlers.GetDerivativeHandler())
			derivatives.POST("/:derivative_id/purchase", engineHandlers.PurchaseDerivativeHandler())
			derivatives.POST("/:derivative_id/exercise", engineHandlers.ExerciseDerivativeHandler())
			derivatives.POST("/:derivative_id/cancel", engineHandlers.CancelDerivativeHandler())
		}

		portfolio := v1.Group("/portfolio")
		portfolio.Use(middleware.JWTAuth())
		{
			portfolio.GET("", engineHandlers.PortfolioHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth())
		{
			internal.POST("/oracle/quote", oracleHandlers.SetQuoteHandler())
		}
	}
}
