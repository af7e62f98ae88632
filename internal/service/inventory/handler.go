// Package inventory реализует сервис склада: HTTP API над партиями товара и заглушка
// InventoryService для тестов саги.
package inventory

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	checkoutv1 "github.com/vladislavdragonenkov/checkout/api/checkout/v1"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/httpx"
)

// Handler обслуживает HTTP API склада.
type Handler struct {
	lots   domain.LotRepository
	logger *log.Entry
	now    func() time.Time
}

// NewHandler создаёт обработчик поверх хранилища партий.
func NewHandler(lots domain.LotRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "inventory-http")
	}
	return &Handler{
		lots:   lots,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes подключает маршруты /api/v1.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	api.GET("/items/:item_id/lots", h.ListLots)
	api.POST("/lots", h.CreateLot)
	api.GET("/lots/:lot_id", h.GetLot)
	api.POST("/lots/:lot_id/decrement", h.DecrementLot)
}

// ListLots возвращает партии товара с положительным остатком, ранние сроки первыми.
func (h *Handler) ListLots(c *gin.Context) {
	lots, err := h.lots.ListAvailable(c.Request.Context(), c.Param("item_id"))
	if err != nil {
		h.logger.WithError(err).WithField("item_id", c.Param("item_id")).Error("list lots failed")
		httpx.WriteError(c, err)
		return
	}

	resp := checkoutv1.ListLotsResponse{Lots: make([]checkoutv1.Lot, 0, len(lots))}
	for _, lot := range lots {
		resp.Lots = append(resp.Lots, toLotDTO(lot))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetLot(c *gin.Context) {
	lot, err := h.lots.Get(c.Request.Context(), c.Param("lot_id"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLotDTO(lot))
}

// CreateLot заводит новую партию (наполнение склада).
func (h *Handler) CreateLot(c *gin.Context) {
	var req checkoutv1.CreateLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, "invalid payload: "+err.Error())
		return
	}
	if req.Quantity <= 0 {
		httpx.WriteError(c, domain.ErrInvalidQuantity)
		return
	}
	if req.ExpiresAt.IsZero() {
		httpx.BadRequest(c, "expires_at is required")
		return
	}

	now := h.now()
	lot := domain.Lot{
		ID:           req.ID,
		ItemID:       req.ItemID,
		BatchNo:      req.BatchNo,
		ExpiresAt:    req.ExpiresAt.UTC(),
		QtyAvailable: req.Quantity,
		QtyTotal:     req.Quantity,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if lot.ID == "" {
		lot.ID = uuid.NewString()
	}
	if errs := lot.Validate(); len(errs) > 0 {
		httpx.WriteError(c, errors.Join(errs...))
		return
	}

	if err := h.lots.Create(c.Request.Context(), lot); err != nil {
		httpx.WriteError(c, err)
		return
	}
	h.logger.WithFields(log.Fields{"lot_id": lot.ID, "item_id": lot.ItemID, "qty": lot.QtyTotal}).Info("lot created")
	c.JSON(http.StatusCreated, toLotDTO(lot))
}

// DecrementLot атомарно списывает остаток партии.
// 409: остатка не хватает, повтор с тем же reference отвечает 200 без повторного списания.
func (h *Handler) DecrementLot(c *gin.Context) {
	var req checkoutv1.DecrementLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, "invalid payload: "+err.Error())
		return
	}

	lotID := c.Param("lot_id")
	err := h.lots.Decrement(c.Request.Context(), domain.DecrementRequest{
		LotID:     lotID,
		Qty:       req.Quantity,
		Reference: req.Reference,
	})
	if err != nil {
		entry := h.logger.WithError(err).WithFields(log.Fields{
			"lot_id":    lotID,
			"qty":       req.Quantity,
			"reference": req.Reference,
		})
		if errors.Is(err, domain.ErrInsufficientLotQuantity) {
			entry.Warn("lot decrement rejected")
		} else {
			entry.Error("lot decrement failed")
		}
		httpx.WriteError(c, err)
		return
	}

	lot, err := h.lots.Get(c.Request.Context(), lotID)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLotDTO(lot))
}

func toLotDTO(lot domain.Lot) checkoutv1.Lot {
	return checkoutv1.Lot{
		ID:           lot.ID,
		ItemID:       lot.ItemID,
		BatchNo:      lot.BatchNo,
		ExpiresAt:    lot.ExpiresAt,
		QtyAvailable: lot.QtyAvailable,
		QtyTotal:     lot.QtyTotal,
	}
}
