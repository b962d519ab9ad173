package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/mauriciomholiveira/cobranca-api/internal/service"
	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
	"github.com/mauriciomholiveira/cobranca-api/pkg/response"
)

// AdminHandler exposes maintenance endpoints: reconciliation and backups.
type AdminHandler struct {
	reconcile *service.ReconcileService
	backups   *service.BackupService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(reconcile *service.ReconcileService, backups *service.BackupService) *AdminHandler {
	return &AdminHandler{reconcile: reconcile, backups: backups}
}

// Reconcile godoc
// @Summary Run the billing reconciliation pass
// @Description Generates the current month, marks overdue charges, removes
// @Description orphaned open payments and re-syncs open amounts. Safe to call
// @Description repeatedly.
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reconcile [post]
func (h *AdminHandler) Reconcile(c *gin.Context) {
	result, err := h.reconcile.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CreateBackup godoc
// @Summary Create a JSON snapshot of all billing data
// @Tags Admin
// @Produce json
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/backups [post]
func (h *AdminHandler) CreateBackup(c *gin.Context) {
	result, err := h.backups.Create(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// DownloadBackup godoc
// @Summary Download a backup file using a signed token
// @Tags Admin
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /backups/download [get]
func (h *AdminHandler) DownloadBackup(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	path, err := h.backups.Resolve(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
