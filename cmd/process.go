package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the enrichment pipeline over pending media",
	Long: `Run the enrichment pipeline for a scope. Without --stage every item
with pending stages goes through the full chain; with --stage only that
stage is reprocessed.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().String("scope", "", "Library scope (defaults to LIBRARY_SCOPE)")
	processCmd.Flags().String("stage", "", "Single stage to reprocess (metadata, thumbnail, faces, embedding, objects)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if scope := mustGetString(cmd, "scope"); scope != "" {
		cfg.Library.Scope = scope
	}

	jobType := database.JobTypeEnrich
	if stageName := mustGetString(cmd, "stage"); stageName != "" {
		stage := database.Stage(stageName)
		if !stage.Valid() {
			return fmt.Errorf("unknown stage %q", stageName)
		}
		jobType = database.StageJobType(stage)
	}

	ctx := context.Background()
	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	pipe, _, err := buildPipeline(ctx, cfg, store, nil, nil)
	if err != nil {
		return err
	}

	job := &database.Job{Type: jobType, Scope: cfg.Library.Scope}
	if err := store.Jobs.Enqueue(ctx, job); err != nil {
		if errors.Is(err, database.ErrAlreadyRunning) {
			return fmt.Errorf("a %s job is already pending or running for scope %q", jobType, cfg.Library.Scope)
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	claimed, err := store.Jobs.ClaimNext(ctx, jobType)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if claimed == nil {
		return errors.New("job was claimed by another worker; watch it via the jobs API")
	}

	fmt.Printf("Processing scope %s (%s)\n", claimed.Scope, claimed.Type)

	done := make(chan struct{})
	go trackJobProgress(ctx, store, claimed.ID, "Enriching media", done)
	go cancelOnInterrupt(ctx, store, claimed.ID, done)

	runErr := pipe.Run(ctx, claimed)
	close(done)
	time.Sleep(250 * time.Millisecond) // let the bar render its final state
	if runErr != nil {
		return fmt.Errorf("processing failed: %w", runErr)
	}

	final, err := store.Jobs.Get(ctx, claimed.ID)
	if err != nil {
		return fmt.Errorf("failed to read final job state: %w", err)
	}
	fmt.Printf("\nJob %s: %d of %d items processed, %d failed\n",
		final.Status, final.ProcessedItems, final.TotalItems, final.FailedItems)
	return nil
}
