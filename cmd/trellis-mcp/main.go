package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/semaphore"

	"github.com/ternarybob/trellis/internal/common"
	"github.com/ternarybob/trellis/internal/handlers"
	"github.com/ternarybob/trellis/internal/services/graph"
	"github.com/ternarybob/trellis/internal/services/schema"
	"github.com/ternarybob/trellis/internal/services/trees"
	"github.com/ternarybob/trellis/internal/services/workflow"
	"github.com/ternarybob/trellis/internal/storage/badger"
)

func main() {
	configPath := os.Getenv("TRELLIS_CONFIG")
	if configPath == "" {
		configPath = "trellis.toml"
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// On stdio the console writer is dropped; protocol frames own stdout.
	logger := common.InitLogger(config)

	storageManager, err := badger.NewManager(logger, &config.Storage)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open store")
		os.Exit(1)
	}
	defer storageManager.Close()

	graphService := graph.NewService(storageManager.Items(), storageManager.Dependencies(), logger)
	schemaService := schema.NewService(storageManager.Notes(), config, logger)
	workflowLoader := workflow.NewLoader(config, logger)
	engine := workflow.NewEngine(storageManager, workflowLoader, schemaService, graphService, logger)
	treeService := trees.NewService(storageManager, graphService, schemaService, engine, logger)

	services := &handlers.Services{
		Config:  config,
		Store:   storageManager,
		Graph:   graphService,
		Schemas: schemaService,
		Engine:  engine,
		Trees:   treeService,
		Logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		"trellis",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// DATABASE_MAX_CONNECTIONS caps concurrent tool executions; the store
	// itself serializes writers underneath.
	sem := semaphore.NewWeighted(int64(config.Storage.MaxConnections))
	register := func(tool mcp.Tool, handler server.ToolHandlerFunc) {
		mcpServer.AddTool(tool, withConcurrencyCap(sem, handler))
	}

	register(createManageItemsTool(), handlers.ManageItems(services))
	register(createQueryItemsTool(), handlers.QueryItems(services))
	register(createManageNotesTool(), handlers.ManageNotes(services))
	register(createQueryNotesTool(), handlers.QueryNotes(services))
	register(createManageDependenciesTool(), handlers.ManageDependencies(services))
	register(createQueryDependenciesTool(), handlers.QueryDependencies(services))
	register(createAdvanceItemTool(), handlers.AdvanceItem(services))
	register(createGetNextStatusTool(), handlers.GetNextStatus(services))
	register(createGetContextTool(), handlers.GetContext(services))
	register(createGetNextItemTool(), handlers.GetNextItem(services))
	register(createGetBlockedItemsTool(), handlers.GetBlockedItems(services))
	register(createCreateWorkTreeTool(), handlers.CreateWorkTree(services))
	register(createCompleteTreeTool(), handlers.CompleteTree(services))

	switch config.Transport.Mode {
	case common.TransportHTTP:
		common.PrintBanner(common.GetFullVersion())
		addr := fmt.Sprintf("%s:%d", config.Transport.Host, config.Transport.Port)
		logger.Info().Str("addr", addr).Msg("Serving streamable HTTP at /mcp")
		httpServer := server.NewStreamableHTTPServer(mcpServer,
			server.WithEndpointPath("/mcp"),
		)
		if err := httpServer.Start(addr); err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("HTTP transport failed to bind")
			os.Exit(2)
		}
	default:
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.Error().Err(err).Msg("MCP server failed")
			os.Exit(1)
		}
	}
}
