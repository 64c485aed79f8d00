package tracker

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akovalyov/priceguard/internal/catalog"
)

// Store is the subset of repository operations the HTTP layer needs.
type Store interface {
	AddItem(ctx context.Context, ownerID int64, ref, name string, price float64) (*TrackedItem, error)
	ListItems(ctx context.Context, ownerID int64) ([]TrackedItem, error)
	RemoveItem(ctx context.Context, id int64) error
	History(ctx context.Context, itemID int64) ([]PriceObservation, error)
	SetInterval(ctx context.Context, ownerID int64, seconds int) error
}

// Lookup resolves an external reference against the catalog source.
type Lookup interface {
	Lookup(ctx context.Context, ref string) (catalog.Item, error)
}

type Handler struct {
	store  Store
	lookup Lookup
	log    *zap.Logger
}

func NewHandler(store Store, lookup Lookup, log *zap.Logger) *Handler {
	return &Handler{store: store, lookup: lookup, log: log}
}

type addItemRequest struct {
	OwnerID int64  `json:"owner_id" binding:"required"`
	Ref     string `json:"ref" binding:"required"`
}

func (h *Handler) CreateItem(c *gin.Context) {
	var input addItemRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !isDigits(input.Ref) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ref must be numeric"})
		return
	}

	ctx := c.Request.Context()
	info, err := h.lookup.Lookup(ctx, input.Ref)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found in catalog"})
			return
		}
		h.log.Warn("catalog lookup failed", zap.String("ref", input.Ref), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "catalog unavailable, try again later"})
		return
	}

	item, err := h.store.AddItem(ctx, input.OwnerID, input.Ref, info.Name, info.Price)
	if err != nil {
		if errors.Is(err, ErrAlreadyTracked) {
			c.JSON(http.StatusConflict, gin.H{"error": "already tracked"})
			return
		}
		h.log.Error("add item failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add item"})
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) ListItems(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Query("owner_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_id"})
		return
	}
	list, err := h.store.ListItems(c.Request.Context(), ownerID)
	if err != nil {
		h.log.Error("list items failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch items"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) RemoveItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.store.RemoveItem(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.log.Error("remove item failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove item"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *Handler) GetHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	hist, err := h.store.History(c.Request.Context(), id)
	if err != nil {
		h.log.Error("fetch history failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
		return
	}
	c.JSON(http.StatusOK, hist)
}

type setIntervalRequest struct {
	IntervalSeconds int `json:"interval_seconds" binding:"required"`
}

func (h *Handler) SetInterval(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("owner_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_id"})
		return
	}
	var input setIntervalRequest
	if err := c.ShouldBindJSON(&input); err != nil || input.IntervalSeconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval_seconds must be positive"})
		return
	}
	if err := h.store.SetInterval(c.Request.Context(), ownerID, input.IntervalSeconds); err != nil {
		h.log.Error("set interval failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save interval"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner_id": ownerID, "interval_seconds": input.IntervalSeconds})
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
