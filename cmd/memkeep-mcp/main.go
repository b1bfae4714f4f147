// memkeep-mcp exposes the memory store over MCP stdio so assistant sessions
// can store and recall memories directly, without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/curator"
	"github.com/memkeep/memkeep/internal/embedding"
	"github.com/memkeep/memkeep/internal/store"
	"github.com/memkeep/memkeep/internal/types"
)

type app struct {
	store   store.Store
	curator *curator.Curator
}

func main() {
	_ = godotenv.Load()
	// MCP servers must keep stdout clean for the protocol.
	log.SetOutput(os.Stderr)

	cfg, err := config.Load(os.Getenv("MEMKEEP_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath, embedding.NewClient(cfg.OllamaURL, cfg.EmbedModel))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	a := &app{store: st, curator: curator.New(st, cfg.ArchiveDir)}

	s := server.NewMCPServer(
		"memkeep-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(searchTool(), a.handleSearch)
	s.AddTool(addTool(), a.handleAdd)
	s.AddTool(healthTool(), a.handleHealth)
	s.AddTool(autoCurateTool(), a.handleAutoCurate)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func searchTool() mcp.Tool {
	return mcp.NewTool("memory_search",
		mcp.WithDescription("Search stored session memories by similarity. Returns the most relevant memories with their metadata and similarity scores."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language search query"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum memories to return (default 5, max 10)"),
		),
	)
}

func (a *app) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	maxResults := 5
	if n, ok := args["max_results"].(float64); ok && n > 0 {
		maxResults = int(n)
	}
	if maxResults > 10 {
		maxResults = 10
	}

	results, err := a.store.Search(query, maxResults, 0, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No matching memories found."), nil
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func addTool() mcp.Tool {
	return mcp.NewTool("memory_add",
		mcp.WithDescription("Store a session summary as a memory. Use at the end of a work session to capture what was done."),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The session summary text"),
		),
		mcp.WithString("title",
			mcp.Description("Short title for the memory"),
		),
		mcp.WithString("project",
			mcp.Description("Project the session was about"),
		),
	)
}

func (a *app) handleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	content, _ := args["content"].(string)
	if content == "" {
		return mcp.NewToolResultError("content is required"), nil
	}
	if len(content) > types.MaxContentLen {
		return mcp.NewToolResultError(fmt.Sprintf("content exceeds %d characters", types.MaxContentLen)), nil
	}
	title, _ := args["title"].(string)
	project, _ := args["project"].(string)

	m := &types.Memory{
		ID:      uuid.NewString(),
		Content: content,
		Metadata: types.Metadata{
			Title:   title,
			Project: project,
			Source:  types.SourceClaudeCode,
		},
	}
	if err := a.store.Add(m); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("store failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Stored memory %s", m.ID)), nil
}

func healthTool() mcp.Tool {
	return mcp.NewTool("memory_health",
		mcp.WithDescription("Report collection health: memory count, quality distribution, duplicates, and curation recommendations."),
	)
}

func (a *app) handleHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(a.curator.AnalyzeHealth(), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode health: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func autoCurateTool() mcp.Tool {
	return mcp.NewTool("memory_auto_curate",
		mcp.WithDescription("Run the standard curation pass: deduplicate, archive stale memories, enhance low-quality metadata. Dry run by default."),
		mcp.WithBoolean("execute",
			mcp.Description("Apply changes instead of reporting what would happen (default false)"),
		),
	)
}

func (a *app) handleAutoCurate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	execute, _ := args["execute"].(bool)

	result := a.curator.AutoCurate(!execute)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
