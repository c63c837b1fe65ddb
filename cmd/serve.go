package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Ashfaaq98/range-console/internal/bus"
	"github.com/Ashfaaq98/range-console/internal/dashboard"
	"github.com/Ashfaaq98/range-console/internal/ingest"
	"github.com/Ashfaaq98/range-console/internal/store"
	"github.com/Ashfaaq98/range-console/internal/ui"
	"github.com/Ashfaaq98/range-console/internal/web"
)

var (
	noTUI    bool
	forceTUI bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the refresh loop and the dashboard",
	Long: `Start range-console, which includes:

1. A refresh loop reading all four telemetry sources every interval
2. The terminal dashboard (or headless logging with --no-tui)
3. Optional source watching for file changes (--watch)
4. Optional cycle publishing to Redis Streams (--redis)
5. Optional cycle audit log in SQLite (--audit-db)
6. Optional read-only JSON API (--http-bind)

The serve command runs until interrupted (Ctrl+C) or q is pressed.

Examples:
  # Start with TUI (default)
  range-console serve

  # Start without TUI (headless mode)
  range-console serve --no-tui

  # Poll a remote collector every 5 seconds and expose the API
  range-console serve --summary http://collector:8000/summary.json --interval 5s --http-bind 127.0.0.1:8090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Run in headless mode without TUI")
	serveCmd.Flags().BoolVar(&forceTUI, "force-tui", false, "Force TUI mode even in unsupported terminals")
	serveCmd.Flags().Duration("interval", dashboard.DefaultInterval, "Refresh interval")
	serveCmd.Flags().Bool("watch", false, "Refresh early when a local source file changes")
	serveCmd.Flags().String("http-bind", "", "Bind address for the read-only JSON API (empty disables)")

	viper.BindPFlag("refresh.interval", serveCmd.Flags().Lookup("interval"))
	viper.BindPFlag("watch.enabled", serveCmd.Flags().Lookup("watch"))
	viper.BindPFlag("http.bind", serveCmd.Flags().Lookup("http-bind"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	// Initialize logger - use file logging for TUI mode to keep terminal clean
	willUseTUI := determineTUIMode()
	logOut := io.Writer(os.Stderr)
	componentOut := io.Writer(os.Stderr)
	if willUseTUI {
		// Silent TUI mode: logs go to file, errors still visible on terminal
		if logFile := setupFileLogger(); logFile != nil {
			defer logFile.Close()
			logOut = io.MultiWriter(logFile, &errorFilterWriter{os.Stderr})
			componentOut = logFile
		} else {
			componentOut = io.Discard
		}
	}
	logger := log.New(logOut, "[serve] ", log.LstdFlags)
	newLogger := func(prefix string) *log.Logger {
		return log.New(componentOut, prefix, log.LstdFlags)
	}

	logger.Println("Starting range-console")

	baseDir := getWorkingDir()
	locations := config.Sources.Locations(baseDir)
	for name, loc := range locations.Each() {
		logger.Printf("Source %s: %s", name, loc)
	}
	client := newClient(config, locations)

	snapshots := dashboard.NewStore()
	scheduler := dashboard.NewScheduler(client, snapshots, dashboard.Options{
		Interval:     config.Refresh.Interval,
		FetchTimeout: config.Refresh.Timeout,
		Logger:       newLogger("[scheduler] "),
		Debug:        config.Log.Debug(),
	})

	// Initialize bus (Redis or Null)
	busLogger := newLogger("[bus] ")
	eventBus := bus.NewBus(config.Redis.URL, busLogger)
	defer eventBus.Close()
	scheduler.Subscribe(bus.Publisher(eventBus, snapshots, busLogger))

	// Optional cycle audit log
	if config.Audit.Path != "" {
		dbPath := resolvePathRelativeToBase(baseDir, config.Audit.Path)
		logger.Printf("Recording refresh cycles to %s", dbPath)
		st, err := store.NewStore(dbPath)
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer st.Close()
		scheduler.Subscribe(store.Recorder(st, snapshots, newLogger("[audit] ")))
	}

	// Create a cancellable context for background services
	// This allows us to properly shut down background services when TUI exits
	svcCtx, svcCancel := context.WithCancel(ctx)
	defer svcCancel()

	var dash *ui.UI
	if willUseTUI {
		dash = ui.NewUI(svcCtx, scheduler, snapshots, newLogger("[UI] "))
		scheduler.Subscribe(dash.Observer())
	}

	g, gctx := errgroup.WithContext(svcCtx)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if config.Watch.Enabled {
		watcher := ingest.NewWatcher(scheduler.Refresh, ingest.WatchOptions{
			Locations: locations.URIs(),
			Logger:    newLogger("[ingest-watch] "),
		})
		if watcher.Enabled() {
			g.Go(func() error {
				if err := watcher.Run(gctx); err != nil && gctx.Err() == nil {
					logger.Printf("Source watcher failed: %v", err)
				}
				return nil
			})
		} else {
			logger.Println("Watch requested but no local sources configured")
		}
	}

	// Optional HTTP view server (runs alongside TUI/headless)
	if config.HTTP.Bind != "" {
		srv := web.NewServer(scheduler, snapshots, web.Options{
			Bind:   config.HTTP.Bind,
			RPS:    config.HTTP.RPS,
			Burst:  config.HTTP.Burst,
			Logger: newLogger("[web] "),
		})
		if err := srv.Start(gctx); err != nil {
			logger.Printf("HTTP API start error: %v", err)
		}
	}

	if dash != nil {
		logger.Println("Starting TUI...")
		if err := dash.Start(svcCtx); err != nil {
			svcCancel()
			_ = g.Wait()
			return fmt.Errorf("TUI error: %w", err)
		}
		logger.Println("TUI exited, cancelling background services...")
	} else {
		logger.Println("Running in headless mode...")
		<-svcCtx.Done()
		logger.Println("Received shutdown signal")
	}

	svcCancel()
	err := g.Wait()
	scheduler.Wait()
	logger.Println("range-console stopped")
	return err
}

func newClient(config Config, locations ingest.Locations) *ingest.Client {
	parser := ingest.NewParser()
	if config.Sources.Delimiter != "" {
		parser.Delimiter = config.Sources.Delimiter
	}
	return ingest.NewClient(ingest.NewMuxFetcher(config.Refresh.Timeout), parser, locations)
}

// canInitializeTUI tests if tcell can actually be initialized
func canInitializeTUI() bool {
	screen, err := tcell.NewScreen()
	if err != nil {
		return false
	}
	if err := screen.Init(); err != nil {
		return false
	}
	// Clean up immediately
	screen.Fini()
	return true
}

// determineTUIMode determines if TUI will be used (extracted for logging setup)
func determineTUIMode() bool {
	if noTUI {
		return false
	}
	if !forceTUI && !canInitializeTUI() {
		fmt.Fprintln(os.Stderr, "TUI cannot be initialized in this terminal; running headless (use --force-tui to override)")
		return false
	}
	return true
}

func getExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	return getExecutableDir()
}

func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	// Normalize leading "./" for consistent joining
	p = strings.TrimPrefix(p, "./")
	return filepath.Join(base, p)
}

// setupFileLogger creates a log file for TUI mode
func setupFileLogger() *os.File {
	logDir := filepath.Join(getWorkingDir(), "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// If we can't create logs directory, we'll fall back to stderr
		return nil
	}

	logPath := filepath.Join(logDir, "range-console.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil
	}
	return logFile
}

// errorFilterWriter only writes error messages to the underlying writer
type errorFilterWriter struct {
	writer io.Writer
}

func (w *errorFilterWriter) Write(p []byte) (n int, err error) {
	lc := strings.ToLower(string(p))
	if strings.Contains(lc, "error") ||
		strings.Contains(lc, "failed") ||
		strings.Contains(lc, "panic") {
		return w.writer.Write(p)
	}
	// Suppress non-error logs in TUI mode
	return len(p), nil
}
