package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicworks/assetgraph-backend/internal/graph"
	"github.com/civicworks/assetgraph-backend/internal/http/response"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/services"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

type SyncHandler struct {
	log         *logger.Logger
	syncService services.SyncService
	store       graph.Store
	syncTimeout time.Duration
}

func NewSyncHandler(log *logger.Logger, syncService services.SyncService, store graph.Store, syncTimeout time.Duration) *SyncHandler {
	return &SyncHandler{
		log:         log.With("handler", "SyncHandler"),
		syncService: syncService,
		store:       store,
		syncTimeout: syncTimeout,
	}
}

// StartSync runs a sync job to completion within the configured timeout.
// Per-record failures come back inside the SyncResult, not as an HTTP error.
func (h *SyncHandler) StartSync(c *gin.Context) {
	// Body is optional; an empty request runs with defaults.
	var opts types.SyncOptions
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.syncTimeout)
	defer cancel()

	result, err := h.syncService.SyncAssets(ctx, opts)
	if err != nil {
		h.log.Error("Sync run failed", "error", err)
		// Structural failure; the partial result still tells the caller how
		// far the run got.
		c.JSON(http.StatusBadGateway, result)
		return
	}
	response.RespondOK(c, result)
}

type cleanupRequest struct {
	OrganisationID string `json:"organisation_id"`
}

func (h *SyncHandler) StartCleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.syncTimeout)
	defer cancel()

	result, err := h.syncService.CleanupOrphans(ctx, req.OrganisationID)
	if err != nil {
		h.log.Error("Cleanup run failed", "error", err)
		c.JSON(http.StatusBadGateway, result)
		return
	}
	response.RespondOK(c, result)
}

func (h *SyncHandler) CheckConsistency(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.syncTimeout)
	defer cancel()

	report, err := graph.CheckConsistency(ctx, h.store)
	if err != nil {
		response.RespondMappedError(c, err)
		return
	}
	response.RespondOK(c, report)
}
