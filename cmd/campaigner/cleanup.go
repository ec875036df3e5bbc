package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bpr-rehab/campaigner/internal/db"
	"github.com/bpr-rehab/campaigner/internal/models"
	"github.com/bpr-rehab/campaigner/internal/repository"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Recover stale jobs and reconcile campaign counters",
	RunE:  runCleanup,
}

var (
	cleanupStaleMinutes int
	cleanupDryRun       bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupStaleMinutes, "stale-minutes", 30, "Requeue IN_PROGRESS jobs claimed more than N minutes ago")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be changed without changing it")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	cutoff := time.Now().Add(-time.Duration(cleanupStaleMinutes) * time.Minute)

	if cleanupDryRun {
		var stale int
		err := database.QueryRow(`
			SELECT COUNT(*) FROM campaign_jobs
			WHERE status = ? AND claimed_at < ?`,
			models.JobInProgress, cutoff,
		).Scan(&stale)
		if err != nil {
			return err
		}
		fmt.Printf("Dry run: %d stale jobs would be requeued\n", stale)
		return nil
	}

	jobs := repository.NewJobRepository(database.DB)
	requeued, err := jobs.RequeueStale(cutoff)
	if err != nil {
		return fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	fmt.Printf("Requeued %d stale jobs\n", requeued)

	// Counters can drift if a dispatch crashed between sending and
	// accounting; rebuild them from the job table.
	campaigns := repository.NewCampaignRepository(database.DB)
	rows, err := database.Query(`SELECT id FROM campaigns WHERE status != ?`, models.CampaignDraft)
	if err != nil {
		return err
	}
	defer rows.Close()

	var reconciled int
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if err := campaigns.ReconcileCounters(id); err != nil {
			return fmt.Errorf("failed to reconcile campaign %s: %w", id, err)
		}
		reconciled++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	fmt.Printf("Reconciled counters for %d campaigns\n", reconciled)

	return nil
}
