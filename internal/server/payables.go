package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	payabledomain "github.com/smallbiznis/marketpay/internal/payable/domain"
)

type createPayableRequest struct {
	OwnerID  string          `json:"owner_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	Plan          string `json:"plan"`
	Title         string `json:"title"`
	TargetURL     string `json:"target_url"`
	CartReference string `json:"cart_reference"`
}

func (s *Server) CreatePayable(c *gin.Context) {
	kind, err := parseKindParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createPayableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actor := actorFromContext(c)
	ownerID := actor.ID
	if raw := strings.TrimSpace(req.OwnerID); raw != "" {
		parsed, err := parseOwnerID(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		ownerID = parsed
	}

	view, err := s.payableSvc.Create(c.Request.Context(), payabledomain.CreateRequest{
		Kind:          kind,
		OwnerID:       ownerID,
		Amount:        req.Amount,
		Currency:      strings.TrimSpace(req.Currency),
		Actor:         actor,
		Plan:          strings.TrimSpace(req.Plan),
		Title:         strings.TrimSpace(req.Title),
		TargetURL:     strings.TrimSpace(req.TargetURL),
		CartReference: strings.TrimSpace(req.CartReference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": view})
}

func (s *Server) GetPayable(c *gin.Context) {
	kind, err := parseKindParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.payableSvc.Get(c.Request.Context(), payabledomain.GetRequest{
		Kind:  kind,
		ID:    id,
		Actor: actorFromContext(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) RetryPayable(c *gin.Context) {
	kind, err := parseKindParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.payableSvc.Retry(c.Request.Context(), payabledomain.RetryRequest{
		Kind:  kind,
		ID:    id,
		Actor: actorFromContext(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.payableSvc.CancelSubscription(c.Request.Context(), payabledomain.CancelRequest{
		ID:    id,
		Actor: actorFromContext(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
