package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bpr-rehab/campaigner/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run <campaign-id>",
	Short: "Dispatch a campaign batch by batch until it completes",
	Long: `Run drives a prepared campaign to completion: it dispatches one
batch, waits the campaign's batch interval, and repeats until the queue
is empty or the campaign is paused or cancelled.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var runPrepare bool

func init() {
	runCmd.Flags().BoolVar(&runPrepare, "prepare", false, "Prepare the campaign before dispatching")
}

func runRun(cmd *cobra.Command, args []string) error {
	campaignID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Shutdown(context.Background())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	controller := application.Controller()

	if runPrepare {
		prep, err := controller.Prepare(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("prepare failed: %w", err)
		}
		fmt.Printf("Prepared: %d jobs in %d batches\n", prep.JobsCreated, prep.Batches)
	}

	for {
		res, err := controller.Dispatch(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("dispatch failed: %w", err)
		}

		if res.BatchNumber >= 0 {
			fmt.Printf("Batch %d: sent %d, failed %d, remaining %d\n",
				res.BatchNumber, res.Sent, res.Failed, res.Remaining)
		}
		if res.Done {
			fmt.Println("Campaign completed")
			return nil
		}

		select {
		case <-ctx.Done():
			fmt.Println("Interrupted; campaign stays SENDING and can be resumed")
			return nil
		case <-time.After(time.Duration(res.NextDispatchMs) * time.Millisecond):
		}
	}
}
