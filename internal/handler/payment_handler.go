package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mauriciomholiveira/cobranca-api/internal/models"
	"github.com/mauriciomholiveira/cobranca-api/internal/service"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
	"github.com/mauriciomholiveira/cobranca-api/pkg/response"
)

// PaymentHandler exposes the billing endpoints: month listing with lazy
// generation, partial edits, settlement, messaging and exports.
type PaymentHandler struct {
	billing  *service.BillingService
	messages *service.MessageService
	exports  *service.ExportService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(billing *service.BillingService, messages *service.MessageService, exports *service.ExportService) *PaymentHandler {
	return &PaymentHandler{billing: billing, messages: messages, exports: exports}
}

// List godoc
// @Summary List a month's payments, generating missing rows
// @Tags Payments
// @Produce json
// @Param mes query string true "Billing period (YYYY-MM)"
// @Param client_id query string false "Filter by client"
// @Param professor_id query string false "Filter by professor (admins only)"
// @Param status query string false "Filter by status (PENDENTE, ATRASADO, PAGO)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	var filter models.PaymentFilter
	filter.MonthRef = c.DefaultQuery("mes", models.CurrentMonthRef())
	filter.ClientID = c.Query("client_id")
	filter.ProfessorID = scopeProfessorID(c, c.Query("professor_id"))
	filter.Status = models.PaymentStatus(c.Query("status"))
	filter.Page, filter.PageSize = parsePageQuery(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	payments, pagination, err := h.billing.ListMonth(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Get godoc
// @Summary Get payment detail
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.billing.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Patch godoc
// @Summary Partially update an open payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body service.PatchPaymentRequest true "Fields to update"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{id} [patch]
func (h *PaymentHandler) Patch(c *gin.Context) {
	var req service.PatchPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.billing.Patch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Pay godoc
// @Summary Settle a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body service.MarkPaidRequest false "Settlement overrides"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{id}/pay [post]
func (h *PaymentHandler) Pay(c *gin.Context) {
	var req service.MarkPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	payment, err := h.billing.MarkPaid(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Revert godoc
// @Summary Undo a settlement
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{id}/revert [post]
func (h *PaymentHandler) Revert(c *gin.Context) {
	payment, err := h.billing.Revert(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Message godoc
// @Summary Render a WhatsApp message and deep link for a payment
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Param kind query string true "Message kind (reminder, due_today, overdue, receipt)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/{id}/message [get]
func (h *PaymentHandler) Message(c *gin.Context) {
	kind := models.MessageKind(c.DefaultQuery("kind", string(models.MessageKindReminder)))
	message, err := h.messages.Build(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, message, nil)
}

// MarkMessageSent godoc
// @Summary Record that a message was sent for a payment
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Param kind path string true "Message kind (reminder, due_today, overdue)"
// @Success 204
// @Security BearerAuth
// @Router /payments/{id}/message/{kind}/sent [post]
func (h *PaymentHandler) MarkMessageSent(c *gin.Context) {
	kind := models.MessageKind(c.Param("kind"))
	if err := h.messages.MarkSent(c.Request.Context(), c.Param("id"), kind); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Summary godoc
// @Summary Aggregated month summary with per-professor breakdown
// @Tags Payments
// @Produce json
// @Param mes query string true "Billing period (YYYY-MM)"
// @Param professor_id query string false "Scope to one professor (admins only)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /payments/summary [get]
func (h *PaymentHandler) Summary(c *gin.Context) {
	monthRef := c.DefaultQuery("mes", models.CurrentMonthRef())
	professorID := scopeProfessorID(c, c.Query("professor_id"))

	summary, err := h.billing.Summary(c.Request.Context(), monthRef, professorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Download a month statement as CSV or PDF
// @Tags Payments
// @Produce octet-stream
// @Param mes query string true "Billing period (YYYY-MM)"
// @Param format query string false "File format (csv or pdf)"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /payments/export [get]
func (h *PaymentHandler) Export(c *gin.Context) {
	monthRef := c.DefaultQuery("mes", models.CurrentMonthRef())
	professorID := scopeProfessorID(c, c.Query("professor_id"))
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	file, err := h.exports.MonthStatement(c.Request.Context(), monthRef, professorID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
