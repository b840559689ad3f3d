package oracle

import (
	"github.com/gin-gonic/gin"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/pkg/response"
)

// GinHandlers exposes the static feed's admin surface. The simulation
// moves prices through it; production deployments wire a real feed and
// drop these routes.
type GinHandlers struct {
	feed *StaticFeed
}

func NewGinHandlers(feed *StaticFeed) *GinHandlers {
	return &GinHandlers{feed: feed}
}

type setQuoteRequest struct {
	ContractAddress string       `json:"contract_address" binding:"required"`
	TokenID         string       `json:"token_id" binding:"required"`
	Value           types.Amount `json:"value"`
}

// SetQuoteHandler pins a fresh full-confidence valuation for an asset.
func (h *GinHandlers) SetQuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setQuoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		asset := types.AssetRef{ContractAddress: req.ContractAddress, TokenID: req.TokenID}
		h.feed.SetQuote(asset, req.Value)
		response.Success(c, gin.H{"asset": asset.String(), "value": req.Value})
	}
}
