package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the library and update the media inventory",
	Long: `Walk the library root, register new media, detect changed files and
soft-delete entries whose files disappeared. Newly discovered items are
left pending for the enrichment pipeline.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("scope", "", "Library scope (defaults to LIBRARY_SCOPE)")
	scanCmd.Flags().String("root", "", "Library root directory (defaults to LIBRARY_ROOT)")
}

// trackJobProgress mirrors job counters onto a progress bar until done closes.
func trackJobProgress(ctx context.Context, store *database.Store, jobID, description string, done <-chan struct{}) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			bar.Finish()
			return
		case <-ticker.C:
			job, err := store.Jobs.Get(ctx, jobID)
			if err != nil {
				continue
			}
			if job.TotalItems > 0 && bar.GetMax() != job.TotalItems {
				bar.ChangeMax(job.TotalItems)
			}
			bar.Set(job.ProcessedItems)
		}
	}
}

// cancelOnInterrupt requests job cancellation on the first interrupt signal.
func cancelOnInterrupt(ctx context.Context, store *database.Store, jobID string, done <-chan struct{}) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-done:
	case <-sigChan:
		fmt.Println("\nCancelling at the next file boundary...")
		if err := store.Jobs.RequestCancel(ctx, jobID); err != nil {
			fmt.Printf("Warning: failed to request cancel: %v\n", err)
		}
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if scope := mustGetString(cmd, "scope"); scope != "" {
		cfg.Library.Scope = scope
	}
	if root := mustGetString(cmd, "root"); root != "" {
		cfg.Library.Root = root
	}

	ctx := context.Background()
	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	job := &database.Job{Type: database.JobTypeScan, Scope: cfg.Library.Scope}
	if err := store.Jobs.Enqueue(ctx, job); err != nil {
		if errors.Is(err, database.ErrAlreadyRunning) {
			return fmt.Errorf("a scan is already pending or running for scope %q", cfg.Library.Scope)
		}
		return fmt.Errorf("failed to enqueue scan: %w", err)
	}

	claimed, err := store.Jobs.ClaimNext(ctx, database.JobTypeScan)
	if err != nil {
		return fmt.Errorf("failed to claim scan job: %w", err)
	}
	if claimed == nil {
		return errors.New("scan job was claimed by another worker; watch it via the jobs API")
	}

	fmt.Printf("Scanning %s (scope %s)\n", cfg.Library.Root, claimed.Scope)

	done := make(chan struct{})
	go trackJobProgress(ctx, store, claimed.ID, "Scanning library", done)
	go cancelOnInterrupt(ctx, store, claimed.ID, done)

	runErr := scanner.New(store, cfg.Library.Root).Run(ctx, claimed)
	close(done)
	time.Sleep(250 * time.Millisecond) // let the bar render its final state
	if runErr != nil {
		return fmt.Errorf("scan failed: %w", runErr)
	}

	final, err := store.Jobs.Get(ctx, claimed.ID)
	if err != nil {
		return fmt.Errorf("failed to read final job state: %w", err)
	}
	fmt.Printf("\nScan %s: %d of %d files processed, %d failed\n",
		final.Status, final.ProcessedItems, final.TotalItems, final.FailedItems)
	return nil
}
