package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/civicworks/assetgraph-backend/internal/http/response"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/services"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

type HierarchyHandler struct {
	log            *logger.Logger
	viewService    services.ViewService
	hierarchy      services.HierarchyService
	contextService services.ContextService
	queryTimeout   time.Duration
}

func NewHierarchyHandler(log *logger.Logger, viewService services.ViewService, hierarchy services.HierarchyService, contextService services.ContextService, queryTimeout time.Duration) *HierarchyHandler {
	return &HierarchyHandler{
		log:            log.With("handler", "HierarchyHandler"),
		viewService:    viewService,
		hierarchy:      hierarchy,
		contextService: contextService,
		queryTimeout:   queryTimeout,
	}
}

func (h *HierarchyHandler) queryCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.queryTimeout)
}

func (h *HierarchyHandler) GetHierarchyForView(c *gin.Context) {
	viewID, err := uuid.Parse(c.Param("viewId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_view_id", err)
		return
	}
	ctx, cancel := h.queryCtx(c)
	defer cancel()
	nodes, err := h.viewService.GetHierarchyForView(ctx, viewID)
	if err != nil {
		response.RespondMappedError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"nodes": nodes})
}

func (h *HierarchyHandler) GetHierarchyStatistics(c *gin.Context) {
	viewID, err := uuid.Parse(c.Param("viewId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_view_id", err)
		return
	}
	ctx, cancel := h.queryCtx(c)
	defer cancel()
	stats, err := h.viewService.GetHierarchyStatistics(ctx, viewID)
	if err != nil {
		response.RespondMappedError(c, err)
		return
	}
	response.RespondOK(c, stats)
}

func (h *HierarchyHandler) CreateView(c *gin.Context) {
	var view types.HierarchyView
	if err := c.ShouldBindJSON(&view); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	created, err := h.viewService.CreateView(c.Request.Context(), &view)
	if err != nil {
		response.RespondMappedError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *HierarchyHandler) UpdateView(c *gin.Context) {
	viewID, err := uuid.Parse(c.Param("viewId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_view_id", err)
		return
	}
	var patch types.ViewPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	updated, err := h.viewService.UpdateView(c.Request.Context(), viewID, patch)
	if err != nil {
		response.RespondMappedError(c, err)
		return
	}
	response.RespondOK(c, updated)
}

func (h *HierarchyHandler) GetHierarchyNode(c *gin.Context) {
	node, err := h.hierarchy.GetNode(c.Param("nodeId"))
	if err != nil {
		response.RespondMappedError(c, err)
		return
	}
	response.RespondOK(c, node)
}

func (h *HierarchyHandler) Rebuild(c *gin.Context) {
	if err := h.hierarchy.RebuildAll(c.Request.Context()); err != nil {
		response.RespondMappedError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"rebuilt": true})
}

func (h *HierarchyHandler) GetAssetHierarchyContext(c *gin.Context) {
	ctx, cancel := h.queryCtx(c)
	defer cancel()
	assetContext, err := h.contextService.GetAssetHierarchyContext(ctx, c.Param("assetId"))
	if err != nil {
		response.RespondMappedError(c, err)
		return
	}
	response.RespondOK(c, assetContext)
}
