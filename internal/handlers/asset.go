package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicworks/assetgraph-backend/internal/http/response"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/services"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

// AssetHandler exposes the registration surface. Registering or
// unregistering a model is the only path that rebuilds the forest
// automatically.
type AssetHandler struct {
	log       *logger.Logger
	hierarchy services.HierarchyService
}

func NewAssetHandler(log *logger.Logger, hierarchy services.HierarchyService) *AssetHandler {
	return &AssetHandler{
		log:       log.With("handler", "AssetHandler"),
		hierarchy: hierarchy,
	}
}

func (h *AssetHandler) RegisterAssetModel(c *gin.Context) {
	var model types.AssetModel
	if err := c.ShouldBindJSON(&model); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.hierarchy.RegisterAssetModel(c.Request.Context(), &model); err != nil {
		response.RespondMappedError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"registered": model.ID})
}

func (h *AssetHandler) UnregisterAssetModel(c *gin.Context) {
	assetID := c.Param("assetId")
	if err := h.hierarchy.UnregisterAssetModel(c.Request.Context(), assetID); err != nil {
		response.RespondMappedError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"unregistered": assetID})
}
