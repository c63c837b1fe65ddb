package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ashfaaq98/range-console/internal/ingest"
)

var (
	cfgFile  string
	redisURL string
	logLevel string
	auditDB  string
)

// envKeyReplacer maps config keys to env names, e.g. refresh.interval -> RANGE_CONSOLE_REFRESH_INTERVAL.
var envKeyReplacer = strings.NewReplacer(".", "_")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "range-console",
	Short: "Terminal dashboard for MITM cyber range telemetry",
	Long: `Range-console polls the telemetry written by a MITM cyber range capture
pipeline and renders it as a live terminal dashboard.

Sources (local paths or http(s) URLs):
- summary counters (JSON object)
- intercepted proxy events (JSON array)
- intrusion sensor events (JSON array)
- attack timeline (two-column delimited text with a header)

Every refresh cycle reads all four sources concurrently and replaces the
dashboard only when all of them load; a failed cycle keeps the last good data
on screen.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.range-console.yaml)")
	pf.String("summary", "./data/summary.json", "Summary counters source (path or URL)")
	pf.String("intercepted", "./data/mitm_events.json", "Intercepted events source (path or URL)")
	pf.String("intrusion", "./data/suricata_events.json", "Intrusion sensor events source (path or URL)")
	pf.String("timeline", "./data/attack_timeline.csv", "Attack timeline source (path or URL)")
	pf.Duration("timeout", 8*time.Second, "Per-cycle fetch timeout")
	pf.StringVar(&redisURL, "redis", "", "Redis URL for publishing cycle events (empty disables)")
	pf.StringVar(&auditDB, "audit-db", "", "SQLite path for the refresh cycle audit log (empty disables)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info)")

	// Bind flags to viper
	viper.BindPFlag("sources.summary", pf.Lookup("summary"))
	viper.BindPFlag("sources.intercepted", pf.Lookup("intercepted"))
	viper.BindPFlag("sources.intrusion", pf.Lookup("intrusion"))
	viper.BindPFlag("sources.timeline", pf.Lookup("timeline"))
	viper.BindPFlag("refresh.timeout", pf.Lookup("timeout"))
	viper.BindPFlag("redis.url", pf.Lookup("redis"))
	viper.BindPFlag("audit.path", pf.Lookup("audit-db"))
	viper.BindPFlag("log.level", pf.Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".range-console" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".range-console")
	}

	viper.SetEnvPrefix("RANGE_CONSOLE")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sources.summary", "./data/summary.json")
	v.SetDefault("sources.intercepted", "./data/mitm_events.json")
	v.SetDefault("sources.intrusion", "./data/suricata_events.json")
	v.SetDefault("sources.timeline", "./data/attack_timeline.csv")
	v.SetDefault("sources.delimiter", ",")
	v.SetDefault("refresh.interval", 10*time.Second)
	v.SetDefault("refresh.timeout", 8*time.Second)
	v.SetDefault("watch.enabled", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("audit.path", "")
	v.SetDefault("http.bind", "")
	v.SetDefault("http.rps", 10)
	v.SetDefault("http.burst", 20)
	v.SetDefault("log.level", "info")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return configFrom(viper.GetViper())
}

func configFrom(v *viper.Viper) Config {
	return Config{
		Sources: SourcesConfig{
			Summary:     v.GetString("sources.summary"),
			Intercepted: v.GetString("sources.intercepted"),
			Intrusion:   v.GetString("sources.intrusion"),
			Timeline:    v.GetString("sources.timeline"),
			Delimiter:   v.GetString("sources.delimiter"),
		},
		Refresh: RefreshConfig{
			Interval: v.GetDuration("refresh.interval"),
			Timeout:  v.GetDuration("refresh.timeout"),
		},
		Watch: WatchConfig{
			Enabled: v.GetBool("watch.enabled"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Audit: AuditConfig{
			Path: v.GetString("audit.path"),
		},
		HTTP: HTTPConfig{
			Bind:  v.GetString("http.bind"),
			RPS:   v.GetInt("http.rps"),
			Burst: v.GetInt("http.burst"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Sources SourcesConfig `mapstructure:"sources"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Audit   AuditConfig   `mapstructure:"audit"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
}

type SourcesConfig struct {
	Summary     string `mapstructure:"summary"`
	Intercepted string `mapstructure:"intercepted"`
	Intrusion   string `mapstructure:"intrusion"`
	Timeline    string `mapstructure:"timeline"`
	Delimiter   string `mapstructure:"delimiter"`
}

// Locations resolves relative local sources against base. URLs pass through.
func (s SourcesConfig) Locations(base string) ingest.Locations {
	resolve := func(p string) string {
		if p == "" || ingest.IsRemote(p) {
			return p
		}
		return resolvePathRelativeToBase(base, ingest.LocalPath(p))
	}
	return ingest.Locations{
		Summary:     resolve(s.Summary),
		Intercepted: resolve(s.Intercepted),
		Intrusion:   resolve(s.Intrusion),
		Timeline:    resolve(s.Timeline),
	}
}

type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type WatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AuditConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	Bind  string `mapstructure:"bind"`
	RPS   int    `mapstructure:"rps"`
	Burst int    `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Debug reports whether debug lines are enabled.
func (l LogConfig) Debug() bool {
	return l.Level == "debug"
}
