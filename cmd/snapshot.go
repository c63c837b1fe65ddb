package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/Ashfaaq98/range-console/internal/dashboard"
	"github.com/Ashfaaq98/range-console/internal/store"
	"github.com/Ashfaaq98/range-console/internal/telemetry"
)

var snapshotJSON bool

// snapshotCmd runs one refresh cycle and prints the result
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Run one refresh cycle and print the dashboard snapshot",
	Long: `Read all four telemetry sources once, build the dashboard snapshot and
print it. This works in any terminal environment and is useful in scripts.

Examples:
  # Text summary
  range-console snapshot

  # Full snapshot as JSON
  range-console snapshot --json`,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "Print the snapshot as JSON")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	logger := log.New(io.Discard, "", 0)
	if config.Log.Debug() {
		logger = log.New(os.Stderr, "[scheduler] ", log.LstdFlags)
	}

	baseDir := getWorkingDir()
	snapshots := dashboard.NewStore()
	scheduler := dashboard.NewScheduler(newClient(config, config.Sources.Locations(baseDir)), snapshots, dashboard.Options{
		FetchTimeout: config.Refresh.Timeout,
		Logger:       logger,
		Debug:        config.Log.Debug(),
	})

	if config.Audit.Path != "" {
		st, err := store.NewStore(resolvePathRelativeToBase(baseDir, config.Audit.Path))
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer st.Close()
		scheduler.Subscribe(store.Recorder(st, snapshots, logger))
	}

	if err := scheduler.RunOnce(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	snap, at, _ := snapshots.Load()

	out := cmd.OutOrStdout()
	if snapshotJSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printSnapshot(out, snap, at, scheduler.Status())
	return nil
}

func printSnapshot(w io.Writer, snap *telemetry.Snapshot, at time.Time, st dashboard.Status) {
	fmt.Fprintln(w, "MITM Cyber Range Dashboard")
	fmt.Fprintf(w, "Last updated: %s (cycle %s, %s)\n\n", at.Format("2006-01-02 15:04:05"), snap.CycleID, st.Duration().Round(time.Millisecond))

	fmt.Fprintf(w, "Total HTTP Requests:  %s\n", humanize.Comma(snap.Summary.Get(telemetry.CounterHTTPRequests)))
	fmt.Fprintf(w, "Total Connections:    %s\n", humanize.Comma(snap.Summary.Get(telemetry.CounterConnections)))
	fmt.Fprintf(w, "Unique URLs:          %s\n", humanize.Comma(snap.Summary.Get(telemetry.CounterUniqueURLs)))
	fmt.Fprintf(w, "Suricata Events:      %s\n\n", humanize.Comma(snap.Summary.Get(telemetry.CounterSuricataEvents)))

	fmt.Fprintln(w, "Attack Timeline:")
	if len(snap.Timeline) == 0 {
		fmt.Fprintln(w, "   No attack events recorded yet")
	}
	for _, m := range snap.Timeline {
		fmt.Fprintf(w, "   %s  %s\n", m.Timestamp, m.Kind.Label())
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "HTTP Methods Distribution:")
	dist := dashboard.SortedDistribution(snap.MethodDistribution)
	if len(dist) == 0 {
		fmt.Fprintln(w, "   No HTTP requests intercepted yet")
	}
	for _, mc := range dist {
		fmt.Fprintf(w, "   %-8s %d\n", mc.Method, mc.Count)
	}
	fmt.Fprintln(w)

	reqs := snap.HTTPRequests()
	fmt.Fprintf(w, "Intercepted HTTP Requests: %d\n", len(reqs))
	fmt.Fprintf(w, "Network Events (Suricata): %d\n", len(snap.IntrusionEvents))
	if kinds := eventTypeCounts(snap.IntrusionEvents); kinds != "" {
		fmt.Fprintf(w, "   %s\n", kinds)
	}
}

func eventTypeCounts(events []telemetry.IntrusionEvent) string {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.EventType]++
	}
	parts := make([]string, 0, len(counts))
	for _, mc := range dashboard.SortedDistribution(counts) {
		parts = append(parts, fmt.Sprintf("%s=%d", mc.Method, mc.Count))
	}
	return strings.Join(parts, " ")
}
