package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/civicworks/assetgraph-backend/internal/handlers"
)

type RouterConfig struct {
	HealthHandler    *handlers.HealthHandler
	SyncHandler      *handlers.SyncHandler
	HierarchyHandler *handlers.HierarchyHandler
	AssetHandler     *handlers.AssetHandler
	AllowOrigins     []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)

	api := router.Group("/api")
	{
		// Sync job surface
		api.POST("/sync", cfg.SyncHandler.StartSync)
		api.POST("/sync/cleanup", cfg.SyncHandler.StartCleanup)
		api.GET("/consistency", cfg.SyncHandler.CheckConsistency)

		// Asset registration surface
		api.POST("/assets/models", cfg.AssetHandler.RegisterAssetModel)
		api.DELETE("/assets/models/:assetId", cfg.AssetHandler.UnregisterAssetModel)
		api.GET("/assets/:assetId/context", cfg.HierarchyHandler.GetAssetHierarchyContext)

		// Hierarchy query surface
		api.POST("/hierarchy/rebuild", cfg.HierarchyHandler.Rebuild)
		api.GET("/hierarchy/views/:viewId", cfg.HierarchyHandler.GetHierarchyForView)
		api.GET("/hierarchy/views/:viewId/statistics", cfg.HierarchyHandler.GetHierarchyStatistics)
		api.POST("/hierarchy/views", cfg.HierarchyHandler.CreateView)
		api.PATCH("/hierarchy/views/:viewId", cfg.HierarchyHandler.UpdateView)
		api.GET("/hierarchy/nodes/:nodeId", cfg.HierarchyHandler.GetHierarchyNode)
	}

	return router
}
