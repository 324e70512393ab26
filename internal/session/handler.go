package session

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mergimg0/ttnts121-sub002/internal/api"
)

type Handler struct {
	repo Repository
	now  func() time.Time
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo, now: time.Now}
}

// @Summary      List upcoming sessions
// @Description  Sessions that have not started and are open, with free seats. Used to pick a transfer target.
// @Tags         sessions
// @Produce      json
// @Param        limit query int false "Max results"
// @Success      200 {array} session.WithAvailability
// @Failure      500 {object} api.ErrorResponse
// @Router       /sessions/upcoming [get]
func (h *Handler) ListUpcoming(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	sessions, err := h.repo.ListUpcoming(c.Request.Context(), h.now(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to fetch sessions"})
		return
	}

	out := make([]WithAvailability, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessions[i].WithAvailability())
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Get a session
// @Tags         sessions
// @Produce      json
// @Param        sessionID path string true "Session ID"
// @Success      200 {object} session.WithAvailability
// @Failure      404 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /sessions/{sessionID} [get]
func (h *Handler) Get(c *gin.Context) {
	s, err := h.repo.GetSessionByID(c.Request.Context(), c.Param("sessionID"))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Failed to fetch session"})
		return
	}

	c.JSON(http.StatusOK, s.WithAvailability())
}
