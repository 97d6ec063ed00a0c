package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/hints"
	"github.com/lahirugmg/business-cost-tracker/internal/ingest"
	"github.com/lahirugmg/business-cost-tracker/internal/receipts"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
)

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <file>",
		Short: "Run one receipt through the extraction pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()
			st, err := openStack(ctx, true, logger)
			if err != nil {
				return err
			}
			defer st.close()

			user, err := st.resolveUser(ctx, flagUserEmail)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := st.receipts.Submit(ctx, receipts.SubmitRequest{
				UserID:   user.ID,
				Filename: filepath.Base(args[0]),
				Data:     data,
			})
			if err != nil {
				return err
			}

			printSubmitResult(res)
			return nil
		},
	}
}

func printSubmitResult(res receipts.SubmitResult) {
	if res.Deduplicated {
		fmt.Printf("Already uploaded, matched receipt %s\n", res.Receipt.ID)
	} else {
		fmt.Printf("Receipt processed: %s\n", res.Receipt.ID)
	}
	if res.Receipt.MerchantName != nil {
		fmt.Printf("- Merchant: %s\n", *res.Receipt.MerchantName)
	}
	if res.Receipt.ReceiptDate != nil {
		fmt.Printf("- Date: %s\n", res.Receipt.ReceiptDate.Format("2006-01-02"))
	}
	if res.Receipt.ReceiptTotal != nil {
		fmt.Printf("- Total: %s\n", res.Receipt.ReceiptTotal.StringFixed(2))
	}
	fmt.Printf("- Status: %s\n", res.Receipt.Status)
	fmt.Printf("Transactions: %d\n", len(res.Transactions))
	for _, tx := range res.Transactions {
		fmt.Printf("- %8s  %-18s %s\n", tx.Amount.StringFixed(2), tx.Category, tx.Description)
	}
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <dir>",
		Short: "Process every receipt file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()
			st, err := openStack(ctx, true, logger)
			if err != nil {
				return err
			}
			defer st.close()

			user, err := st.resolveUser(ctx, flagUserEmail)
			if err != nil {
				return err
			}
			submit := func(ctx context.Context, userID uuid.UUID, filename string, data []byte) (uuid.UUID, bool, error) {
				res, err := st.receipts.Submit(ctx, receipts.SubmitRequest{
					UserID:   userID,
					Filename: filename,
					Data:     data,
				})
				if err != nil {
					return uuid.Nil, false, err
				}
				return res.Receipt.ID, res.Deduplicated, nil
			}
			outcomes, stats, err := ingest.NewDirectoryIngestor(submit, logger).
				IngestDirectory(ctx, user.ID, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Batch complete!\n")
			fmt.Printf("- Scanned: %d\n", stats.Scanned)
			fmt.Printf("- Matched: %d\n", stats.Matched)
			fmt.Printf("- Succeeded: %d\n", stats.Succeeded)
			fmt.Printf("- Deduplicated: %d\n", stats.Deduplicated)
			fmt.Printf("- Failed: %d\n", stats.Failed)
			for _, o := range outcomes {
				if o.Err != "" {
					fmt.Printf("- FAILED %s: %s\n", o.SourcePath, o.Err)
				}
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var out, fromStr, toStr string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the expense ledger to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()
			st, err := openStack(ctx, false, logger)
			if err != nil {
				return err
			}
			defer st.close()

			user, err := st.resolveUser(ctx, flagUserEmail)
			if err != nil {
				return err
			}
			from, err := parseDateFlag("from", fromStr)
			if err != nil {
				return err
			}
			to, err := parseDateFlag("to", toStr)
			if err != nil {
				return err
			}

			var data []byte
			if strings.EqualFold(filepath.Ext(out), ".csv") {
				data, err = st.exports.ExportExpensesCSV(ctx, user.ID, from, to)
			} else {
				data, err = st.exports.ExportExpensesXLSX(ctx, user.ID, from, to)
			}
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Exported %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "expenses.xlsx", "output file, format by extension (.xlsx or .csv)")
	cmd.Flags().StringVar(&fromStr, "from", "", "window start, YYYY-MM-DD")
	cmd.Flags().StringVar(&toStr, "to", "", "window end, YYYY-MM-DD")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity and hint storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger()
			cfg := common.LoadConfig()

			drv, closeDB, err := repository.Open(ctx, repository.Config{
				Driver:      cfg.Database.Driver,
				DSN:         cfg.Database.DSN,
				DialTimeout: cfg.Database.DialTimeout,
			}, logger)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer closeDB()
			if err := repository.HealthCheck(ctx, drv, 5*time.Second, logger); err != nil {
				return fmt.Errorf("database health: %w", err)
			}
			fmt.Printf("database: ok (driver=%s)\n", cfg.Database.Driver)

			store, closeHints, err := openHintStore(cfg.Hints)
			if err != nil {
				return fmt.Errorf("open hint store: %w", err)
			}
			defer closeHints()
			table := hints.NewTable(ctx, store, logger)
			fmt.Printf("hint categories: %d\n", len(table.Snapshot()))
			return nil
		},
	}
}

func parseDateFlag(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s date, use YYYY-MM-DD: %w", name, err)
	}
	return &t, nil
}
