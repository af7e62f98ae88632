// Package cart: HTTP API корзины пользователя.
package cart

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/httpx"
)

// Handler обслуживает HTTP API корзины.
type Handler struct {
	carts  domain.CartRepository
	logger *log.Entry
	now    func() time.Time
}

// NewHandler создаёт обработчик корзины.
func NewHandler(carts domain.CartRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "cart-http")
	}
	return &Handler{
		carts:  carts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes подключает маршруты /api/v1/carts.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	carts := router.Group("/api/v1/carts/:user_id")
	carts.GET("", h.GetCart)
	carts.PUT("/lines/:item_id", h.PutLine)
	carts.DELETE("/lines/:item_id", h.RemoveLine)
	carts.DELETE("", h.ClearCart)
}

// GetCart возвращает строки корзины и их сумму.
func (h *Handler) GetCart(c *gin.Context) {
	h.respondCart(c, c.Param("user_id"))
}

// PutLine добавляет или заменяет строку; цена фиксируется на момент добавления.
func (h *Handler) PutLine(c *gin.Context) {
	var req checkoutv1.PutCartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, "invalid payload: "+err.Error())
		return
	}

	userID := c.Param("user_id")
	line := domain.CartLine{
		UserID:         userID,
		ItemID:         c.Param("item_id"),
		Qty:            req.Qty,
		UnitPriceMinor: req.UnitPriceMinor,
		AddedAt:        h.now(),
	}
	if err := h.carts.PutLine(c.Request.Context(), line); err != nil {
		h.logger.WithError(err).WithFields(log.Fields{"user_id": userID, "item_id": line.ItemID}).Warn("put cart line failed")
		httpx.WriteError(c, err)
		return
	}
	h.respondCart(c, userID)
}

func (h *Handler) RemoveLine(c *gin.Context) {
	userID := c.Param("user_id")
	if err := h.carts.RemoveLine(c.Request.Context(), userID, c.Param("item_id")); err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.respondCart(c, userID)
}

// ClearCart очищает корзину. Повторная очистка отвечает тем же 204.
func (h *Handler) ClearCart(c *gin.Context) {
	userID := c.Param("user_id")
	if err := h.carts.Clear(c.Request.Context(), userID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("clear cart failed")
		httpx.WriteError(c, err)
		return
	}
	h.logger.WithField("user_id", userID).Info("cart cleared")
	c.Status(http.StatusNoContent)
}

func (h *Handler) respondCart(c *gin.Context, userID string) {
	lines, err := h.carts.Lines(c.Request.Context(), userID)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}

	resp := checkoutv1.CartResponse{UserID: userID, Lines: make([]checkoutv1.CartLine, 0, len(lines))}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, checkoutv1.CartLine{
			ItemID:         line.ItemID,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			AddedAt:        line.AddedAt,
		})
		resp.TotalMinor += line.SubtotalMinor()
	}
	c.JSON(http.StatusOK, resp)
}
