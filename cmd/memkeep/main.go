// memkeep is the command-line client for the memory service.
//
// Usage:
//
//	memkeep <command> [flags]
//
// Commands: health, search, add, list, delete, dedupe, archive, consolidate,
// enhance, analyze, auto-curate. Curation commands run in dry-run mode unless
// --execute is given.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/memkeep/memkeep/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("MEMKEEP_CONFIG"))
	if err != nil {
		fatal("config: %v", err)
	}
	baseURL := cfg.BaseURL()
	if v := os.Getenv("MEMKEEP_URL"); v != "" {
		baseURL = v
	}
	c := &client{baseURL: baseURL}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "health":
		c.get("/api/health")
	case "search":
		cmdSearch(c, args)
	case "add":
		cmdAdd(c, args)
	case "list":
		cmdList(c, args)
	case "delete":
		cmdDelete(c, args)
	case "dedupe":
		cmdDedupe(c, args)
	case "archive":
		cmdArchive(c, args)
	case "consolidate":
		cmdConsolidate(c, args)
	case "enhance":
		cmdEnhance(c, args)
	case "analyze":
		c.get("/api/curator/analyze")
	case "auto-curate":
		cmdAutoCurate(c, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `memkeep - memory service client

Commands:
  health                       Service health and metrics
  search -query Q [-n N]       Similarity search
  add [-title T] [-file F]     Add a memory (content from -file or stdin)
  list [-page N] [-limit N]    List stored memories
  delete -id ID                Delete one memory
  dedupe [--execute]           Remove exact duplicates
  archive [-days N] [--execute]  Archive old memories
  consolidate -ids a,b,c [-title T]  Merge memories into one
  enhance -id ID               Derive missing metadata for one memory
  analyze                      Full collection health analysis
  auto-curate [--execute]      Dedupe + archive + enhance in one pass

Environment: MEMKEEP_URL overrides the service address.`)
}

func cmdSearch(c *client, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	query := fs.String("query", "", "Search query (required)")
	n := fs.Int("n", 5, "Max results")
	threshold := fs.Float64("threshold", 0, "Minimum similarity")
	source := fs.String("source", "", "Filter by source")
	fs.Parse(args)
	if *query == "" {
		fatal("search: -query is required")
	}
	c.post("/api/search", map[string]any{
		"query":                *query,
		"max_results":          *n,
		"similarity_threshold": *threshold,
		"source_filter":        *source,
	})
}

func cmdAdd(c *client, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "Memory title")
	date := fs.String("date", "", "Session date (YYYY-MM-DD, default today)")
	techs := fs.String("tech", "", "Comma-separated technologies")
	project := fs.String("project", "", "Project name")
	file := fs.String("file", "", "Read content from file (default stdin)")
	fs.Parse(args)

	var content []byte
	var err error
	if *file != "" {
		content, err = os.ReadFile(*file)
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fatal("read content: %v", err)
	}

	body := map[string]any{
		"content": string(content),
		"title":   *title,
		"date":    *date,
		"project": *project,
	}
	if *techs != "" {
		body["technologies"] = strings.Split(*techs, ",")
	}
	c.post("/api/add_memory", body)
}

func cmdList(c *client, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	page := fs.Int("page", 1, "Page number")
	limit := fs.Int("limit", 10, "Page size")
	fs.Parse(args)
	c.get(fmt.Sprintf("/api/memories?page=%d&limit=%d", *page, *limit))
}

func cmdDelete(c *client, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "Memory id (required)")
	fs.Parse(args)
	if *id == "" {
		fatal("delete: -id is required")
	}
	c.do(http.MethodDelete, "/api/memory/"+*id, nil)
}

func cmdDedupe(c *client, args []string) {
	c.post("/api/curator/deduplicate", map[string]any{"dry_run": !hasExecute(args)})
}

func cmdArchive(c *client, args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	days := fs.Int("days", 0, "Age cutoff in days (0 = server default)")
	execute := fs.Bool("execute", false, "Actually archive instead of dry run")
	fs.Parse(args)
	c.post("/api/curator/archive", map[string]any{"days": *days, "dry_run": !*execute})
}

func cmdConsolidate(c *client, args []string) {
	fs := flag.NewFlagSet("consolidate", flag.ExitOnError)
	ids := fs.String("ids", "", "Comma-separated memory ids (required)")
	title := fs.String("title", "", "Title for the merged memory")
	fs.Parse(args)
	if *ids == "" {
		fatal("consolidate: -ids is required")
	}
	c.post("/api/curator/consolidate", map[string]any{
		"memory_ids": strings.Split(*ids, ","),
		"title":      *title,
	})
}

func cmdEnhance(c *client, args []string) {
	fs := flag.NewFlagSet("enhance", flag.ExitOnError)
	id := fs.String("id", "", "Memory id (required)")
	fs.Parse(args)
	if *id == "" {
		fatal("enhance: -id is required")
	}
	c.post("/api/curator/enhance/"+*id, nil)
}

func cmdAutoCurate(c *client, args []string) {
	c.post("/api/curator/auto-curate", map[string]any{"dry_run": !hasExecute(args)})
}

func hasExecute(args []string) bool {
	for _, a := range args {
		if a == "--execute" || a == "-execute" {
			return true
		}
	}
	return false
}

// ─── HTTP client ─────────────────────────────────────────────────────────────

type client struct {
	baseURL string
}

func (c *client) get(path string) {
	c.do(http.MethodGet, path, nil)
}

func (c *client) post(path string, body any) {
	c.do(http.MethodPost, path, body)
}

func (c *client) do(method, path string, body any) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fatal("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		fatal("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal("request failed (is memkeepd running at %s?): %v", c.baseURL, err)
	}
	defer resp.Body.Close()

	var pretty bytes.Buffer
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("read response: %v", err)
	}
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		os.Stdout.Write(raw)
	} else {
		pretty.WriteTo(os.Stdout)
		fmt.Println()
	}

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
