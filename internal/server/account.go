package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/logoforge/internal/auth"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
	"github.com/smallbiznis/logoforge/pkg/db/pagination"
)

func (s *Server) GetEntitlement(c *gin.Context) {
	userID, err := auth.RequireUser(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.entitlementSvc.GetEntitlement(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (s *Server) ListTransactions(c *gin.Context) {
	userID, err := auth.RequireUser(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.transactionSvc.List(c.Request.Context(), userID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type createCheckoutRequest struct {
	VariantID    string `json:"variant_id"`
	GenerationID string `json:"generation_id"`
}

func (s *Server) CreateCheckout(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.checkoutSvc.CreateCheckout(ctx, paymentdomain.CheckoutRequest{
		UserID:       userID,
		Email:        auth.EmailFromContext(ctx),
		VariantID:    req.VariantID,
		GenerationID: req.GenerationID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
