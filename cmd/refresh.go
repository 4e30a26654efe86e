package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signvault/refresh"
)

var fromDownloads bool

var refreshCmd = &cobra.Command{
	Use:   "refresh [document-id...]",
	Short: "Refresh the latest signature time of documents",
	Long: `Resolve the latest signature time of the given documents, or of every
document in the downloads ledger with --from-downloads, and store the results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !fromDownloads && len(args) == 0 {
			return errors.New("pass document ids or --from-downloads")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		var results map[string]*time.Time
		if fromDownloads {
			results, err = a.refresher.RefreshFromLedger(ctx)
			if errors.Is(err, refresh.ErrNoDownloads) {
				a.logger.Info("Nothing to refresh, the downloads ledger is empty")
				return nil
			}
			if err != nil {
				return fmt.Errorf("refresh from downloads: %w", err)
			}
		} else {
			results = a.refresher.RefreshBatch(ctx, args)
		}
		return printResults(cmd.OutOrStdout(), results)
	},
}

var registerDatesCmd = &cobra.Command{
	Use:   "register-dates",
	Short: "Persist known signature times of listed documents into the ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		results, err := a.refresher.RegisterDates(ctx)
		if perr := printResults(cmd.OutOrStdout(), results); perr != nil {
			return perr
		}
		if err != nil {
			return fmt.Errorf("register dates: %w", err)
		}
		return nil
	},
}

// printResults writes the results as a JSON list sorted by id. Unresolved
// documents carry a null time.
func printResults(w io.Writer, results map[string]*time.Time) error {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		var value any
		if t := results[id]; t != nil {
			value = t.Format(time.RFC3339)
		}
		out = append(out, map[string]any{"uuid": id, "ultimaAssinatura": value})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(refreshCmd, registerDatesCmd)
	refreshCmd.Flags().BoolVar(&fromDownloads, "from-downloads", false, "Refresh every document in the downloads ledger")
}
