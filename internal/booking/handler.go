package booking

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mergimg0/ttnts121-sub002/internal/api"
	"github.com/mergimg0/ttnts121-sub002/internal/auth"
	"github.com/mergimg0/ttnts121-sub002/internal/logger"
	"github.com/mergimg0/ttnts121-sub002/internal/payment"
)

// ChargeEventSource re-reads a webhook event from the payment provider.
type ChargeEventSource interface {
	FetchChargeEvent(ctx context.Context, eventID string) (*payment.ChargeEvent, error)
}

type Handler struct {
	cancellations CancellationService
	transfers     TransferService
	balances      BalanceService
	confirmations ConfirmationService
	events        ChargeEventSource
}

func NewHandler(
	cancellations CancellationService,
	transfers TransferService,
	balances BalanceService,
	confirmations ConfirmationService,
	events ChargeEventSource,
) *Handler {
	return &Handler{
		cancellations: cancellations,
		transfers:     transfers,
		balances:      balances,
		confirmations: confirmations,
		events:        events,
	}
}

func callerEmail(c *gin.Context) (string, bool) {
	email, ok := auth.GetUserEmail(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "user not authenticated"})
		return "", false
	}
	return email, true
}

func writeError(c *gin.Context, err error) {
	kind := KindOf(err)
	status := HTTPStatus(kind)

	msg := "internal error"
	var e *Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Error("booking request failed",
			"path", c.FullPath(),
			"booking_id", c.Param("bookingID"),
			"kind", string(kind),
			"error", err.Error(),
		)
	}

	c.JSON(status, api.ErrorResponse{Error: msg, Code: string(kind)})
}

// @Summary      Preview a cancellation
// @Description  Shows whether the booking can be cancelled now and what would be refunded. Nothing is changed.
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        bookingID path string true "Booking ID"
// @Success      200 {object} booking.CancellationPreview
// @Failure      401 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /bookings/{bookingID}/cancellation [get]
func (h *Handler) PreviewCancellation(c *gin.Context) {
	email, ok := callerEmail(c)
	if !ok {
		return
	}

	preview, err := h.cancellations.Preview(c.Request.Context(), email, c.Param("bookingID"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

// @Summary      Cancel a booking
// @Description  Cancels the booking, refunds per the session's refund policy and frees the seat.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        bookingID path string true "Booking ID"
// @Param        request body booking.CancelRequest false "Optional reason"
// @Success      200 {object} booking.CancellationResult
// @Failure      400 {object} api.ErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /bookings/{bookingID}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	email, ok := callerEmail(c)
	if !ok {
		return
	}

	var req CancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			api.BindError(c, err)
			return
		}
	}

	res, err := h.cancellations.Cancel(c.Request.Context(), email, c.Param("bookingID"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// @Summary      Move a booking to another session
// @Description  Same price or cheaper moves immediately. Dearer returns a checkout URL for the difference.
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        bookingID path string true "Booking ID"
// @Param        request body booking.TransferRequest true "Target session"
// @Success      200 {object} booking.TransferResult
// @Failure      400 {object} api.ErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      502 {object} api.ErrorResponse
// @Router       /bookings/{bookingID}/transfer [post]
func (h *Handler) Transfer(c *gin.Context) {
	email, ok := callerEmail(c)
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BindError(c, err)
		return
	}

	res, err := h.transfers.Transfer(c.Request.Context(), email, c.Param("bookingID"), req.TargetSessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// @Summary      Pay the remaining balance
// @Tags         bookings
// @Produce      json
// @Security     BearerAuth
// @Param        bookingID path string true "Booking ID"
// @Success      200 {object} booking.BalancePaymentResult
// @Failure      401 {object} api.ErrorResponse
// @Failure      403 {object} api.ErrorResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      502 {object} api.ErrorResponse
// @Router       /bookings/{bookingID}/balance-payment [post]
func (h *Handler) RequestBalancePayment(c *gin.Context) {
	email, ok := callerEmail(c)
	if !ok {
		return
	}

	res, err := h.balances.RequestBalancePayment(c.Request.Context(), email, c.Param("bookingID"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

type webhookEvent struct {
	ID  string `json:"id" binding:"required"`
	Key string `json:"key"`
}

// OmiseWebhook acknowledges provider events. Only the event id is taken from
// the body; the event itself is fetched back from the provider. A non-2xx
// reply makes the provider redeliver.
func (h *Handler) OmiseWebhook(c *gin.Context) {
	var body webhookEvent
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid event"})
		return
	}
	if body.Key != "" && body.Key != "charge.complete" {
		c.JSON(http.StatusOK, api.MessageResponse{Message: "ignored"})
		return
	}

	ctx := c.Request.Context()
	ev, err := h.events.FetchChargeEvent(ctx, body.ID)
	if err != nil {
		logger.Error("failed to fetch webhook event", "event_id", body.ID, "error", err.Error())
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "could not verify event"})
		return
	}
	if ev.Key != "charge.complete" {
		c.JSON(http.StatusOK, api.MessageResponse{Message: "ignored"})
		return
	}

	if err := h.confirmations.HandleChargeCompleted(ctx, *ev); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.MessageResponse{Message: "ok"})
}
