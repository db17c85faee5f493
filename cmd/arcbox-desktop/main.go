// Command arcbox-desktop is the terminal client for the arcbox container
// runtime. With no subcommand it supervises the daemon and opens the
// dashboard; the subcommands run the same operations headless.
package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/drewfead/arcbox-desktop/internal/bridge"
	"github.com/drewfead/arcbox-desktop/internal/config"
	"github.com/drewfead/arcbox-desktop/internal/daemon"
	"github.com/drewfead/arcbox-desktop/internal/logging"
	"github.com/drewfead/arcbox-desktop/internal/service"
	"github.com/drewfead/arcbox-desktop/internal/tui/dashboard"
)

// Version is set at build time
var Version = "dev"

var (
	cfg        *config.Config
	configPath string
	logLevel   string
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			logging.CapturePanic(r, "component", "main")
			fmt.Fprintf(os.Stderr, "FATAL: unrecovered panic: %v\n", r)
			exitCode = 2
		}
	}()
	defer logging.Flush(2 * time.Second)

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:   "arcbox-desktop",
	Short: "Terminal client for the arcbox container runtime",
	Long: `arcbox-desktop starts the arcbox daemon if it is not already running,
connects to it, and shows containers, images, machines, networks and
volumes in a dashboard.

Run a subcommand to do the same things without the dashboard.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runDashboard,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level")
}

// setup loads config and initializes logging. The dashboard logs to
// logging.file so records do not land on the screen; subcommands log to
// stderr.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lc := logging.Config{
		Level:     logging.ParseLevel(cfg.Logging.Level),
		SentryDSN: cfg.Logging.SentryDSN,
		Env:       cfg.Logging.Env,
		Version:   Version,
	}
	if cmd == rootCmd {
		lc.LogFile = cfg.Logging.File
	} else {
		lc.Output = os.Stderr
	}
	if err := logging.Init(lc); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	return nil
}

// components builds the supervisor and service over a shared pool. The
// returned cleanup tears them down in order.
func components(exec bridge.Executor) (*daemon.Supervisor, *service.Service, func()) {
	sup := daemon.New(daemon.OptionsFromConfig(cfg.Daemon), exec)
	svc := service.New(sup.RPCSocket(), exec,
		service.WithQueueSize(cfg.Logs.QueueSize),
		service.WithDefaultTail(cfg.Logs.Tail),
	)
	return sup, svc, func() {
		svc.Close()
		sup.Shutdown()
	}
}

func runDashboard(cmd *cobra.Command, args []string) error {
	pool := bridge.NewPool(cfg.Bridge.Workers)
	defer pool.Close()

	sup, svc, cleanup := components(pool)
	defer cleanup()

	logging.Info("starting dashboard", "version", Version, "rpc_socket", sup.RPCSocket())

	model := dashboard.New(sup, svc, dashboard.OptionsFromConfig(cfg))
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logging.Error("dashboard exited with error", "error", err)
		return err
	}
	return nil
}
