package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Ashfaaq98/range-console/internal/store"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded refresh cycles",
	Long: `List refresh cycles recorded in the audit database (--audit-db or
audit.path in the config file).

Examples:
  # Last 20 cycles
  range-console history --audit-db ./data/audit.db

  # Only failed cycles
  range-console history --state error

  # Drop cycles older than a day
  range-console history --prune 24h`,
	RunE: runHistory,
}

var (
	historyLimit int
	historyState string
	historyPrune time.Duration
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of cycles to show")
	historyCmd.Flags().StringVar(&historyState, "state", "", "Filter by state: ready, error")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete cycles older than this before listing")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	if config.Audit.Path == "" {
		return fmt.Errorf("no audit database configured (use --audit-db or audit.path)")
	}

	st, err := store.NewStore(resolvePathRelativeToBase(getWorkingDir(), config.Audit.Path))
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if historyPrune > 0 {
		n, err := st.PruneBefore(ctx, time.Now().Add(-historyPrune))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d cycles older than %s\n\n", n, historyPrune)
	}

	cycles, err := st.ListCycles(ctx, strings.ToLower(historyState), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list cycles: %w", err)
	}
	counts, err := st.CycleCounts(ctx)
	if err != nil {
		return err
	}
	printHistory(out, cycles, counts, time.Now())
	return nil
}

func printHistory(w io.Writer, cycles []store.CycleRecord, counts map[string]int, now time.Time) {
	if len(cycles) == 0 {
		fmt.Fprintln(w, "No cycles recorded.")
		return
	}

	fmt.Fprintf(w, "Showing %d cycles (ready=%d error=%d):\n\n", len(cycles), counts["ready"], counts["error"])
	for i, c := range cycles {
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, strings.ToUpper(c.State), c.ID)
		fmt.Fprintf(w, "   Finished: %s (%s)\n", c.FinishedAt.Format("2006-01-02 15:04:05"), humanize.RelTime(c.FinishedAt, now, "ago", "from now"))
		fmt.Fprintf(w, "   Duration: %dms\n", c.DurationMS)
		if c.Message != "" {
			fmt.Fprintf(w, "   Message: %s\n", c.Message)
		} else {
			fmt.Fprintf(w, "   Requests: %d  Suricata: %d  Timeline: %d\n", c.HTTPRequests, c.IntrusionEvents, c.TimelineMarks)
		}
		fmt.Fprintln(w)
	}
}
