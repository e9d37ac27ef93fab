package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"consultboard/internal/board"
	"consultboard/internal/capture"
	"consultboard/internal/config"
	"consultboard/internal/listui"
	appLog "consultboard/internal/log"
	"consultboard/internal/model"
	"consultboard/internal/navigate"
	"consultboard/internal/record"
	"consultboard/internal/refresh"
	"consultboard/internal/web"
)

const version = "0.1.0"

// rootFlags holds values shared by every subcommand.
type rootFlags struct {
	configPath string
	envFile    string
	listen     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "consultboard",
		Short:         "Weekly board of phone consult requests",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "/etc/consultboard/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Dotenv file with CONSULTBOARD_* overrides (optional)")
	rootCmd.PersistentFlags().StringVar(&flags.listen, "listen", "", "HTTP listen address (overrides config if set)")

	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(onceCmd(flags))
	rootCmd.AddCommand(snapshotCmd(flags))
	return rootCmd
}

func serveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the board and refresh it on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, conf)
		},
	}
}

func onceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Fetch both list views once and print the board as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			b, r := buildPipeline(conf)
			r.RunOnce(cmd.Context())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snapshotJSON(b.Snapshot()))
		},
	}
}

func snapshotCmd(flags *rootFlags) *cobra.Command {
	var pageURL, out string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture a PNG of a running board",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if pageURL == "" {
				pageURL = boardURL(conf)
			}
			if out == "" {
				out = conf.Capture.OutputPath
			}
			return capture.BoardPNG(cmd.Context(), capture.Options{
				URL:        pageURL,
				OutputPath: out,
				Width:      conf.Capture.Width,
				Height:     conf.Capture.Height,
			})
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "Board URL (defaults to the configured listen address)")
	cmd.Flags().StringVar(&out, "out", "", "Output PNG path (defaults to capture.output_path)")
	return cmd
}

// loadConfig reads the YAML file, overlays the environment and configures
// logging.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return nil, err
	}
	if err := conf.ApplyEnv(flags.envFile); err != nil {
		appLog.Error("failed to load env file", err, "env_file", flags.envFile)
		return nil, err
	}
	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := refresh.ValidateSchedule(conf.RefreshCron); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", conf.RefreshCron, err)
	}
	appLog.Configure(conf.Log.Level, conf.Log.Pretty)

	appLog.Info("effective config",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"object", conf.Store.ObjectAPIName,
		"this_week_view", conf.Store.ThisWeekListView,
		"all_view", conf.Store.AllListView,
		"capture", conf.Capture.Enabled,
		"basic_auth", conf.BasicAuth != nil,
	)
	return conf, nil
}

// buildPipeline wires the list-view client, the board and the refresher.
func buildPipeline(conf *config.Config) (*board.Controller, *refresh.Refresher) {
	loc := resolveLocationOrLocal(conf.Timezone)
	timeout := time.Duration(conf.Store.TimeoutSeconds) * time.Second

	client := listui.NewClient(listui.Options{
		BaseURL:    conf.Store.BaseURL,
		APIVersion: conf.Store.APIVersion,
		Token:      conf.Store.Token,
		CacheDir:   conf.CacheDir,
		Timeout:    timeout,
	})
	b := board.New(board.Options{
		Location:      loc,
		ObjectAPIName: conf.Store.ObjectAPIName,
		Navigator: navigate.Redirector{
			BaseURL: conf.RecordPageBaseURL,
			Open:    navigate.OpenFromContext,
		},
	})
	return b, refresh.New(client, b, queriesFor(conf), timeout)
}

func runServer(ctx context.Context, conf *config.Config) error {
	b, r := buildPipeline(conf)
	if conf.Capture.Enabled {
		r.AfterRun = func(ctx context.Context) {
			err := capture.BoardPNG(ctx, capture.Options{
				URL:        boardURL(conf),
				OutputPath: conf.Capture.OutputPath,
				Width:      conf.Capture.Width,
				Height:     conf.Capture.Height,
			})
			if err != nil {
				appLog.Error("board snapshot failed", err)
				return
			}
			appLog.Debug("board snapshot written", "path", conf.Capture.OutputPath)
		}
	}

	server := web.NewServer(conf, b, r)
	if err := r.Start(ctx, conf.RefreshCron); err != nil {
		return err
	}
	err := server.Start(ctx)
	appLog.Info("consultboard exiting")
	return err
}

// queriesFor maps each record set to its list view, requesting only the
// fields the board reads.
func queriesFor(conf *config.Config) refresh.Queries {
	fields := make([]string, 0, len(record.KnownFields))
	for _, f := range record.KnownFields {
		fields = append(fields, conf.Store.ObjectAPIName+"."+string(f))
	}
	q := func(view string) listui.Query {
		return listui.Query{
			ObjectAPIName:   conf.Store.ObjectAPIName,
			ListViewAPIName: view,
			PageSize:        conf.Store.PageSize,
			Fields:          fields,
		}
	}
	return refresh.Queries{
		board.ThisWeek: q(conf.Store.ThisWeekListView),
		board.All:      q(conf.Store.AllListView),
	}
}

// resolveLocationOrLocal loads the configured IANA zone, falling back to the
// host zone when it is empty or unknown.
func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("unknown timezone, using local", err, "timezone", name)
		return time.Local
	}
	return loc
}

// boardURL is the address the headless browser loads to capture the board.
// Wildcard listen hosts are reached over loopback.
func boardURL(conf *config.Config) string {
	host, port, err := net.SplitHostPort(conf.Listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, port), Path: "/"}
	if conf.BasicAuth != nil && conf.BasicAuth.Username != "" {
		u.User = url.UserPassword(conf.BasicAuth.Username, conf.BasicAuth.Password)
	}
	return u.String()
}

// boardSnapshot is the JSON printed by the once command.
type boardSnapshot struct {
	Active    string              `json:"active"`
	WeekStart string              `json:"week_start,omitempty"`
	Error     string              `json:"error,omitempty"`
	Counts    map[string]int      `json:"counts"`
	View      *model.CalendarView `json:"view"`
}

func snapshotJSON(st board.State) boardSnapshot {
	out := boardSnapshot{
		Active: st.Active.String(),
		Error:  st.Error,
		View:   st.View,
		Counts: map[string]int{
			board.ThisWeek.String(): st.Counts[board.ThisWeek],
			board.All.String():      st.Counts[board.All],
		},
	}
	if !st.WeekStart.IsZero() {
		out.WeekStart = st.WeekStart.Format(time.DateOnly)
	}
	return out
}
