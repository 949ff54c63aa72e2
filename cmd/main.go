package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	redisclient "github.com/civicworks/assetgraph-backend/internal/clients/redis"
	"github.com/civicworks/assetgraph-backend/internal/db"
	"github.com/civicworks/assetgraph-backend/internal/graph"
	"github.com/civicworks/assetgraph-backend/internal/handlers"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/platform/neo4jdb"
	"github.com/civicworks/assetgraph-backend/internal/repos"
	"github.com/civicworks/assetgraph-backend/internal/server"
	"github.com/civicworks/assetgraph-backend/internal/services"
	"github.com/civicworks/assetgraph-backend/internal/types"
	"github.com/civicworks/assetgraph-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	syncTimeout := time.Duration(utils.GetEnvAsInt("SYNC_TIMEOUT_SECONDS", 300, log)) * time.Second
	queryTimeout := time.Duration(utils.GetEnvAsInt("QUERY_TIMEOUT_SECONDS", 30, log)) * time.Second
	syncWorkers := utils.GetEnvAsInt("SYNC_WORKERS", 4, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Graph store: Neo4j when configured, in-memory mirror otherwise.
	var graphStore graph.Store
	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Neo4j init failed", "error", err)
		os.Exit(1)
	}
	if neo4jClient != nil {
		neo4jClient.EnsureSchema(context.Background(), []string{
			types.LabelAsset,
			types.LabelServiceFunction,
			types.LabelLocation,
			types.LabelOrgUnit,
			types.LabelFundingCategory,
		})
		graphStore = graph.NewNeo4jStore(neo4jClient, log)
		defer neo4jClient.Close(context.Background())
	} else {
		log.Warn("NEO4J_URI not set, using in-memory graph store")
		graphStore = graph.NewMemoryStore()
	}

	// Change bus (optional)
	changeBus, err := redisclient.NewChangeBus(log)
	if err != nil {
		log.Warn("Redis change bus init failed, continuing without it", "error", err)
		changeBus = nil
	}
	if changeBus != nil {
		defer changeBus.Close()
	}

	// Repos
	assetRepo := repos.NewAssetRepo(thePG, log)
	viewRepo := repos.NewHierarchyViewRepo(thePG, log)

	// Services
	syncService := services.NewSyncService(assetRepo, graphStore, changeBus, log, syncWorkers)
	hierarchyService := services.NewHierarchyService(graphStore, changeBus, log)
	viewService := services.NewViewService(viewRepo, hierarchyService, log)
	contextService := services.NewContextService(hierarchyService, log)

	if err := viewService.EnsureDefaultViews(context.Background()); err != nil {
		log.Error("Failed to seed default views", "error", err)
		os.Exit(1)
	}

	// Handlers
	healthHandler := handlers.NewHealthHandler()
	syncHandler := handlers.NewSyncHandler(log, syncService, graphStore, syncTimeout)
	hierarchyHandler := handlers.NewHierarchyHandler(log, viewService, hierarchyService, contextService, queryTimeout)
	assetHandler := handlers.NewAssetHandler(log, hierarchyService)

	// Router
	var origins []string
	if raw := utils.GetEnv("CORS_ALLOW_ORIGINS", "", log); raw != "" {
		origins = strings.Split(raw, ",")
	}
	router := server.NewRouter(server.RouterConfig{
		HealthHandler:    healthHandler,
		SyncHandler:      syncHandler,
		HierarchyHandler: hierarchyHandler,
		AssetHandler:     assetHandler,
		AllowOrigins:     origins,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
