package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mergimg0/ttnts121-sub002/internal/api"
	"github.com/mergimg0/ttnts121-sub002/internal/auth"
	"github.com/mergimg0/ttnts121-sub002/internal/logger"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// ListFailed returns unresolved failed refunds, oldest first.
func (h *Handler) ListFailed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.repo.ListFailed(c.Request.Context(), limit, offset)
	if err != nil {
		logger.Error("failed to list failed refunds", "error", err.Error())
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load refunds"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListForBooking(c *gin.Context) {
	entries, err := h.repo.ListByBooking(c.Request.Context(), c.Param("bookingID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load refunds"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// Resolve marks a failed refund as settled outside the system, e.g. by a
// manual refund in the provider dashboard.
func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BindError(c, err)
		return
	}

	by, _ := auth.GetUserEmail(c)
	id := c.Param("entryID")

	err := h.repo.Resolve(c.Request.Context(), id, req.GatewayRef, by)
	if errors.Is(err, ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		logger.Error("failed to resolve refund", "entry_id", id, "error", err.Error())
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to resolve refund"})
		return
	}

	logger.Info("refund resolved manually", "entry_id", id, "resolved_by", by)
	c.JSON(http.StatusOK, api.MessageResponse{Message: "refund resolved"})
}
