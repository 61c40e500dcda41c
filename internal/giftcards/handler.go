package giftcards

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/common"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"github.com/richxcame/giftcard-checkout/pkg/middleware"
	"go.uber.org/zap"
)

// SessionHeader carries the shopper's cart session id
const SessionHeader = "X-Session-ID"

// Handler handles HTTP requests for gift cards
type Handler struct {
	cart     *CartService
	orders   *OrderService
	refunds  *RefundService
	read     ReadAPI
	migrator *Migrator
	// throttle guards the routes that take a raw gift card code
	throttle gin.HandlerFunc
}

// NewHandler creates a new gift card handler
func NewHandler(cart *CartService, orders *OrderService, refunds *RefundService, read ReadAPI, migrator *Migrator) *Handler {
	return &Handler{cart: cart, orders: orders, refunds: refunds, read: read, migrator: migrator}
}

// WithCodeThrottle installs middleware in front of the code lookup routes
func (h *Handler) WithCodeThrottle(throttle gin.HandlerFunc) *Handler {
	h.throttle = throttle
	return h
}

type applyCodeRequest struct {
	Code string `json:"code" validate:"required,giftcode"`
}

type totalsRequest struct {
	Total float64 `json:"total" validate:"gte=0,money"`
}

type revenueRequest struct {
	RevenueTotals
	Refund bool `json:"refund"`
}

// ========================================
// CART
// ========================================

// ApplyCode applies a gift card code to the cart
// POST /api/v1/cart/gift-cards
func (h *Handler) ApplyCode(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req applyCodeRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	card, err := h.cart.ApplyCode(c.Request.Context(), sessionID, req.Code)
	if err != nil {
		h.fail(c, err, "failed to apply gift card")
		return
	}

	common.CreatedResponse(c, card.View())
}

// RemoveCard removes a gift card from the cart
// DELETE /api/v1/cart/gift-cards/:card_id
func (h *Handler) RemoveCard(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.cart.RemoveCard(c.Request.Context(), sessionID, c.Param("card_id")); err != nil {
		h.fail(c, err, "failed to remove gift card")
		return
	}

	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "gift card removed")
}

// Totals recalculates the cart total after gift cards
// POST /api/v1/cart/totals
func (h *Handler) Totals(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req totalsRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	totals, err := h.cart.Recalculate(c.Request.Context(), sessionID, req.Total)
	if err != nil {
		h.fail(c, err, "failed to calculate totals")
		return
	}

	common.SuccessResponse(c, totals)
}

// Balance looks up the balance of a gift card
// GET /api/v1/gift-cards/:code/balance
func (h *Handler) Balance(c *gin.Context) {
	info, err := h.cart.Balance(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err, "failed to look up gift card")
		return
	}

	common.SuccessResponse(c, info)
}

// ========================================
// CHECKOUT
// ========================================

// Validate re-checks the balances of the applied cards
// POST /api/v1/checkout/validate
func (h *Handler) Validate(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.orders.Revalidate(c.Request.Context(), sessionID); err != nil {
		h.fail(c, err, "failed to validate gift cards")
		return
	}

	common.SuccessResponseWithStatus(c, http.StatusOK, nil, "gift cards are valid")
}

// Submit revalidates and reserves the applied cards for an order
// POST /api/v1/checkout/orders/:id/gift-cards
func (h *Handler) Submit(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.orders.Revalidate(ctx, sessionID); err != nil {
		h.fail(c, err, "failed to validate gift cards")
		return
	}

	cards, err := h.orders.Submit(ctx, sessionID, orderID)
	if err != nil {
		h.fail(c, err, "failed to redeem gift cards")
		return
	}

	views := make([]AppliedCardView, 0, len(cards))
	for i := range cards {
		views = append(views, cards[i].View())
	}
	common.CreatedResponse(c, views)
}

// AppliedCards returns the gift cards stored on an order
// GET /api/v1/orders/:id/gift-cards
func (h *Handler) AppliedCards(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	common.SuccessResponse(c, gin.H{
		"cards":          h.read.AppliedCards(ctx, orderID),
		"total_applied":  h.read.TotalApplied(ctx, orderID),
		"total_refunded": h.read.TotalRefunded(ctx, orderID),
	})
}

// ========================================
// ADMIN
// ========================================

// Summary returns the gift card payments on an order
// GET /api/v1/admin/orders/:id/gift-cards
func (h *Handler) Summary(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	summary, err := h.orders.Summary(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, err, "failed to get gift card summary")
		return
	}

	common.SuccessResponse(c, summary)
}

// Capture captures the reserved cards of an order by hand
// POST /api/v1/admin/orders/:id/gift-cards/capture
func (h *Handler) Capture(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	result, err := h.orders.Capture(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, err, "failed to capture gift cards")
		return
	}

	h.logAdminAction(c, "capture", orderID)
	common.SuccessResponse(c, result)
}

// Release releases the reserved cards of an order by hand
// POST /api/v1/admin/orders/:id/gift-cards/release
func (h *Handler) Release(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	result, err := h.orders.Release(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, err, "failed to release gift cards")
		return
	}

	h.logAdminAction(c, "release", orderID)
	common.SuccessResponse(c, result)
}

// Refund refunds the gift card portion of an order
// POST /api/v1/admin/orders/:id/gift-cards/refund
func (h *Handler) Refund(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req RefundRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}
	req.OrderID = orderID

	receipt, err := h.refunds.Refund(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err, "failed to refund gift cards")
		return
	}

	h.logAdminAction(c, "refund", orderID)
	common.CreatedResponse(c, receipt)
}

// Revenue corrects reported sales totals for the gift card payments on an order
// POST /api/v1/admin/orders/:id/gift-cards/revenue
func (h *Handler) Revenue(c *gin.Context) {
	orderID, ok := h.orderID(c)
	if !ok {
		return
	}

	var req revenueRequest
	if !middleware.ValidateAndBind(c, &req) {
		return
	}

	common.SuccessResponse(c, h.read.CorrectRevenue(c.Request.Context(), orderID, req.RevenueTotals, req.Refund))
}

// StartMigration schedules the legacy data migration
// POST /api/v1/admin/gift-cards/migrations
func (h *Handler) StartMigration(c *gin.Context) {
	job, err := h.migrator.Start(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to schedule migration")
		return
	}
	if job == nil {
		common.SuccessResponseWithStatus(c, http.StatusOK, nil, "gift card data is up to date")
		return
	}

	common.SuccessResponseWithStatus(c, http.StatusAccepted, job, "migration scheduled")
}

// RegisterRoutes registers gift card routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	throttled := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		if h.throttle == nil {
			return []gin.HandlerFunc{handler}
		}
		return []gin.HandlerFunc{h.throttle, handler}
	}

	cart := r.Group("/api/v1/cart")
	{
		cart.POST("/gift-cards", throttled(h.ApplyCode)...)
		cart.DELETE("/gift-cards/:card_id", h.RemoveCard)
		cart.POST("/totals", h.Totals)
	}

	checkout := r.Group("/api/v1/checkout")
	{
		checkout.POST("/validate", h.Validate)
		checkout.POST("/orders/:id/gift-cards", h.Submit)
	}

	r.GET("/api/v1/gift-cards/:code/balance", throttled(h.Balance)...)
	r.GET("/api/v1/orders/:id/gift-cards", h.AppliedCards)

	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.AuthMiddleware(jwtSecret))
	admin.Use(middleware.RequireRole(middleware.RoleAdmin))
	{
		admin.GET("/orders/:id/gift-cards", h.Summary)
		admin.POST("/orders/:id/gift-cards/capture", h.Capture)
		admin.POST("/orders/:id/gift-cards/release", h.Release)
		admin.POST("/orders/:id/gift-cards/refund", h.Refund)
		admin.POST("/orders/:id/gift-cards/revenue", h.Revenue)
		admin.POST("/gift-cards/migrations", h.StartMigration)
	}
}

// ========================================
// HELPERS
// ========================================

func (h *Handler) sessionID(c *gin.Context) (string, bool) {
	sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
	if sessionID == "" {
		common.ErrorResponse(c, http.StatusBadRequest, "missing session id")
		return "", false
	}
	return sessionID, true
}

func (h *Handler) orderID(c *gin.Context) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid order ID")
		return uuid.Nil, false
	}
	return orderID, true
}

func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	appErr := ToAppError(err, language(c))
	if appErr.Code >= http.StatusInternalServerError && appErr.Code != http.StatusServiceUnavailable {
		logger.WithContext(c.Request.Context()).Error(fallback, zap.Error(err))
		common.ErrorResponse(c, http.StatusInternalServerError, fallback)
		return
	}
	common.AppErrorResponse(c, appErr)
}

func (h *Handler) logAdminAction(c *gin.Context, action string, orderID uuid.UUID) {
	logger.WithContext(c.Request.Context()).Info("gift card admin action",
		zap.String("action", action),
		zap.String("order_id", orderID.String()),
		zap.String("admin_id", c.GetString("user_id")),
	)
}

// language picks the primary language tag from Accept-Language
func language(c *gin.Context) string {
	header := c.GetHeader("Accept-Language")
	if len(header) < 2 {
		return ""
	}
	return strings.ToLower(header[:2])
}
