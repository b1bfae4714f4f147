// session-hook forwards a session summary to the memory service. It is meant
// to run from assistant lifecycle hooks, so it always exits 0: a missing or
// slow service must never break the session that invoked it.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/notify"
)

func main() {
	title := flag.String("title", "", "Title for the stored memory")
	project := flag.String("project", "", "Project name")
	file := flag.String("file", "", "Read the summary from file (default stdin)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("MEMKEEP_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "session-hook: config: %v\n", err)
		os.Exit(0)
	}
	baseURL := cfg.BaseURL()
	if v := os.Getenv("MEMKEEP_URL"); v != "" {
		baseURL = v
	}

	var content []byte
	if *file != "" {
		content, err = os.ReadFile(*file)
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "session-hook: read summary: %v\n", err)
		os.Exit(0)
	}
	if strings.TrimSpace(string(content)) == "" {
		os.Exit(0) // nothing to store
	}

	n := notify.New(baseURL)
	if n.Send("/api/add_memory", map[string]any{
		"content": string(content),
		"title":   *title,
		"project": *project,
	}) {
		fmt.Fprintln(os.Stderr, "session-hook: summary stored")
	}
	os.Exit(0)
}
