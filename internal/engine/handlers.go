package engine

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/derivative"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/fraction"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/lending"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/rental"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/pkg/response"
)

// GinHandlers exposes the coordinator's operations over HTTP. The caller's
// wallet address comes from the JWT claims; amounts travel as decimal
// strings in wei.
type GinHandlers struct {
	engine *Engine
}

func NewGinHandlers(e *Engine) *GinHandlers {
	return &GinHandlers{engine: e}
}

// callerAddress pulls the authenticated wallet address out of the context.
func callerAddress(c *gin.Context) (string, bool) {
	clientID := c.GetString("clientID")
	if clientID == "" {
		response.Unauthorized(c, "missing client identity")
		return "", false
	}
	return clientID, true
}

// idempotencyKey requires the Idempotency-Key header on create endpoints.
func idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		response.BadRequest(c, "Idempotency-Key header is required")
		return "", false
	}
	return key, true
}

// Loans

type createLoanRequest struct {
	ContractAddress         string       `json:"contract_address" binding:"required"`
	TokenID                 string       `json:"token_id" binding:"required"`
	PaymentAsset            string       `json:"payment_asset"`
	PrincipalMin            types.Amount `json:"principal_min"`
	InterestRateBps         int64        `json:"interest_rate_bps"`
	DurationSeconds         int64        `json:"duration_seconds"`
	CollateralFactorBps     int64        `json:"collateral_factor_bps"`
	LiquidationThresholdBps int64        `json:"liquidation_threshold_bps"`
}

func (h *GinHandlers) CreateLoanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		key, ok := idempotencyKey(c)
		if !ok {
			return
		}
		var req createLoanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		loan, err := h.engine.CreateLoanListing(c.Request.Context(), CreateLoanParams{
			ContractAddress:         req.ContractAddress,
			TokenID:                 req.TokenID,
			Borrower:                caller,
			PaymentAsset:            req.PaymentAsset,
			PrincipalMin:            req.PrincipalMin,
			InterestRateBps:         req.InterestRateBps,
			DurationSeconds:         req.DurationSeconds,
			CollateralFactorBps:     req.CollateralFactorBps,
			LiquidationThresholdBps: req.LiquidationThresholdBps,
		}, key)
		response.Handle(c, loan, err)
	}
}

func (h *GinHandlers) GetLoanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		loan, err := h.engine.GetLoan(c.Param("loan_id"))
		response.Handle(c, loan, err)
	}
}

func (h *GinHandlers) MatchLoanOfferHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		var req struct {
			Principal types.Amount `json:"principal"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		loan, err := h.engine.MatchLoanOffer(c.Request.Context(), c.Param("loan_id"), caller, req.Principal)
		response.Handle(c, loan, err)
	}
}

func (h *GinHandlers) RepayLoanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		var req struct {
			Payment types.Amount `json:"payment"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		loan, err := h.engine.RepayLoan(c.Request.Context(), c.Param("loan_id"), caller, req.Payment)
		response.Handle(c, loan, err)
	}
}

func (h *GinHandlers) LiquidateLoanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		loan, err := h.engine.LiquidateLoan(c.Request.Context(), c.Param("loan_id"), caller)
		response.Handle(c, loan, err)
	}
}

func (h *GinHandlers) CancelLoanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		loan, err := h.engine.CancelLoan(c.Request.Context(), c.Param("loan_id"), caller)
		response.Handle(c, loan, err)
	}
}

// Rentals

type createRentalRequest struct {
	ContractAddress string       `json:"contract_address" binding:"required"`
	TokenID         string       `json:"token_id" binding:"required"`
	PaymentAsset    string       `json:"payment_asset"`
	RentalFee       types.Amount `json:"rental_fee"`
	DurationSeconds int64        `json:"duration_seconds"`
	Collateral      types.Amount `json:"collateral"`
	RevenueSharing  bool         `json:"revenue_sharing"`
	RevenueShareBps int64        `json:"revenue_share_bps"`
}

func (h *GinHandlers) CreateRentalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		key, ok := idempotencyKey(c)
		if !ok {
			return
		}
		var req createRentalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		r, err := h.engine.CreateRentalListing(c.Request.Context(), CreateRentalParams{
			ContractAddress: req.ContractAddress,
			TokenID:         req.TokenID,
			Owner:           caller,
			PaymentAsset:    req.PaymentAsset,
			RentalFee:       req.RentalFee,
			DurationSeconds: req.DurationSeconds,
			Collateral:      req.Collateral,
			RevenueSharing:  req.RevenueSharing,
			RevenueShareBps: req.RevenueShareBps,
		}, key)
		response.Handle(c, r, err)
	}
}

func (h *GinHandlers) GetRentalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := h.engine.GetRental(c.Param("rental_id"))
		response.Handle(c, r, err)
	}
}

func (h *GinHandlers) RentAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		r, err := h.engine.RentAsset(c.Request.Context(), c.Param("rental_id"), caller)
		response.Handle(c, r, err)
	}
}

func (h *GinHandlers) CompleteRentalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		r, err := h.engine.CompleteRental(c.Request.Context(), c.Param("rental_id"), caller)
		response.Handle(c, r, err)
	}
}

func (h *GinHandlers) ExpireRentalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		r, err := h.engine.ExpireRental(c.Request.Context(), c.Param("rental_id"), caller)
		response.Handle(c, r, err)
	}
}

func (h *GinHandlers) DelistRentalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		r, err := h.engine.DelistRental(c.Request.Context(), c.Param("rental_id"), caller)
		response.Handle(c, r, err)
	}
}

// Fractions

type createFractionRequest struct {
	ContractAddress string       `json:"contract_address" binding:"required"`
	TokenID         string       `json:"token_id" binding:"required"`
	PaymentAsset    string       `json:"payment_asset"`
	TotalSupply     types.Amount `json:"total_supply"`
	ReservePrice    types.Amount `json:"reserve_price"`
}

func (h *GinHandlers) CreateFractionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		key, ok := idempotencyKey(c)
		if !ok {
			return
		}
		var req createFractionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		f, err := h.engine.CreateFraction(c.Request.Context(), CreateFractionParams{
			ContractAddress: req.ContractAddress,
			TokenID:         req.TokenID,
			OriginalOwner:   caller,
			PaymentAsset:    req.PaymentAsset,
			TotalSupply:     req.TotalSupply,
			ReservePrice:    req.ReservePrice,
		}, key)
		response.Handle(c, f, err)
	}
}

func (h *GinHandlers) GetFractionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := h.engine.GetFraction(c.Param("fraction_id"))
		response.Handle(c, f, err)
	}
}

func (h *GinHandlers) RedeemFractionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		var req struct {
			Payment types.Amount `json:"payment"`
			Shares  types.Amount `json:"shares"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		f, err := h.engine.RedeemFraction(c.Request.Context(), c.Param("fraction_id"), caller, req.Payment, req.Shares)
		response.Handle(c, f, err)
	}
}

// Derivatives

type createDerivativeRequest struct {
	ContractAddress string       `json:"contract_address" binding:"required"`
	TokenID         string       `json:"token_id" binding:"required"`
	PaymentAsset    string       `json:"payment_asset"`
	Kind            string       `json:"kind" binding:"required"`
	StrikePrice     types.Amount `json:"strike_price"`
	Premium         types.Amount `json:"premium"`
	ExpirationTime  time.Time    `json:"expiration_time"`
}

func (h *GinHandlers) CreateDerivativeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		key, ok := idempotencyKey(c)
		if !ok {
			return
		}
		var req createDerivativeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		d, err := h.engine.CreateDerivative(c.Request.Context(), CreateDerivativeParams{
			ContractAddress: req.ContractAddress,
			TokenID:         req.TokenID,
			Creator:         caller,
			PaymentAsset:    req.PaymentAsset,
			Kind:            req.Kind,
			StrikePrice:     req.StrikePrice,
			Premium:         req.Premium,
			ExpirationTime:  req.ExpirationTime,
		}, key)
		response.Handle(c, d, err)
	}
}

func (h *GinHandlers) GetDerivativeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := h.engine.GetDerivative(c.Param("derivative_id"))
		response.Handle(c, d, err)
	}
}

func (h *GinHandlers) PurchaseDerivativeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		d, err := h.engine.PurchaseDerivative(c.Request.Context(), c.Param("derivative_id"), caller)
		response.Handle(c, d, err)
	}
}

func (h *GinHandlers) ExerciseDerivativeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		d, err := h.engine.ExerciseDerivative(c.Request.Context(), c.Param("derivative_id"), caller)
		response.Handle(c, d, err)
	}
}

func (h *GinHandlers) CancelDerivativeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}
		d, err := h.engine.CancelDerivative(c.Request.Context(), c.Param("derivative_id"), caller)
		response.Handle(c, d, err)
	}
}

// Portfolio

// Portfolio is every product position the caller participates in.
type Portfolio struct {
	Loans       []lending.Loan          `json:"loans"`
	Rentals     []rental.Rental         `json:"rentals"`
	Fractions   []fraction.Fraction     `json:"fractions"`
	Derivatives []derivative.Derivative `json:"derivatives"`
}

func (h *GinHandlers) PortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerAddress(c)
		if !ok {
			return
		}

		loans, err := h.engine.ListLoansByParticipant(caller)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		rentals, err := h.engine.ListRentalsByParticipant(caller)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		fractions, err := h.engine.ListFractionsByParticipant(caller)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		derivatives, err := h.engine.ListDerivativesByParticipant(caller)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, Portfolio{
			Loans:       loans,
			Rentals:     rentals,
			Fractions:   fractions,
			Derivatives: derivatives,
		})
	}
}
