package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/observability"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/pipeline"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/scanner"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/search"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and background workers",
	Long: `Start the Photo Webapp API server.
The server exposes the scan, process, job, search and ask endpoints and
runs the background dispatcher that executes queued jobs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Duration("poll-interval", 2*time.Second, "Job dispatcher poll interval")
}

// initSemanticIndex loads or rebuilds the in-memory vector index for the
// default scope. The database stays the source of truth, so failures only
// cost speed.
func initSemanticIndex(ctx context.Context, store *database.Store, cfg *config.Config) *database.HNSWIndex {
	index := database.NewHNSWIndex()

	embeddings, err := store.Embeddings.ListAll(ctx, cfg.Library.Scope)
	if err != nil {
		fmt.Printf("Warning: failed to list embeddings: %v\n", err)
		fmt.Printf("Semantic search will use PostgreSQL queries (slower)\n")
		return index
	}

	path := cfg.Database.HNSWIndexPath
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := index.Load(path); err == nil {
				index.RefreshKnown(embeddings)
				fmt.Printf("Semantic HNSW index loaded with %d embeddings (from %s)\n", index.Count(), path)
				return index
			}
			fmt.Printf("Warning: failed to load HNSW index from %s, rebuilding\n", path)
		}
		index.SetPath(path)
	}

	if err := index.Build(embeddings); err != nil {
		fmt.Printf("Warning: failed to build HNSW index: %v\n", err)
		return index
	}
	fmt.Printf("Semantic HNSW index built with %d embeddings\n", index.Count())
	return index
}

func resolveServeHostPort(cmd *cobra.Command) (string, int) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return host, port
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	metrics := observability.NewDefault()
	index := initSemanticIndex(ctx, store, cfg)

	pipe, modelClient, err := buildPipeline(ctx, cfg, store, metrics, index)
	if err != nil {
		return err
	}

	resolver := search.NewResolver(store, modelClient, cfg.Search)
	resolver.EnableHNSW(index, cfg.Library.Scope)

	dispatcher := pipeline.NewDispatcher(store, scanner.New(store, cfg.Library.Root), pipe,
		mustGetDuration(cmd, "poll-interval"), metrics)
	go dispatcher.Run(ctx)

	host, port := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, store, resolver, nil, host, port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		if err := index.Save(); err != nil {
			fmt.Printf("Warning: failed to save HNSW index: %v\n", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
	}()

	return server.Start()
}
