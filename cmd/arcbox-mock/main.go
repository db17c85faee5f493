// Command arcbox-mock is a development stand-in for the arcbox runtime
// daemon. It accepts the same "daemon" invocation the desktop client uses,
// so it can be dropped next to arcbox-desktop (or set as daemon.binary_path)
// to exercise the client without a real runtime.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drewfead/arcbox-desktop/internal/logging"
	"github.com/drewfead/arcbox-desktop/internal/mockd"
)

// Version is set at build time
var Version = "dev"

var (
	socketPath   string
	dataDir      string
	foreground   bool
	startupDelay time.Duration
	logInterval  time.Duration
	logLevel     string
	empty        bool
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

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:           "arcbox-mock",
	Short:         "Mock arcbox runtime daemon",
	SilenceUsage:  true,
	SilenceErrors: false,
	Version:       Version,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Serve the health and control sockets",
	Long: `Serve a ping endpoint on --socket and the control protocol on
<data-dir>/arcbox.sock, backed by an in-memory inventory.

Examples:
  arcbox-mock daemon --socket ~/.arcbox/docker.sock --data-dir ~/.arcbox --foreground
  arcbox-mock daemon --socket /tmp/d.sock --data-dir /tmp/arcbox --startup-delay 2s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	daemonCmd.Flags().StringVar(&socketPath, "socket", "", "Health socket path (default <data-dir>/docker.sock)")
	daemonCmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.arcbox)")
	daemonCmd.Flags().BoolVar(&foreground, "foreground", false, "Stay in the foreground (always on; accepted for compatibility)")
	daemonCmd.Flags().DurationVar(&startupDelay, "startup-delay", 0, "Fail health pings for this long after starting")
	daemonCmd.Flags().DurationVar(&logInterval, "log-interval", time.Second, "Interval between generated log lines when following")
	daemonCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	daemonCmd.Flags().BoolVar(&empty, "empty", false, "Start with an empty inventory")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(parent context.Context) error {
	if err := logging.Init(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Env:     "development",
		Version: Version,
		Output:  os.Stderr,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer logging.Flush(2 * time.Second)

	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".arcbox")
	}
	if socketPath == "" {
		socketPath = filepath.Join(dataDir, "docker.sock")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := mockd.New(mockd.Options{
		HealthSocket: socketPath,
		DataDir:      dataDir,
		StartupDelay: startupDelay,
		LogInterval:  logInterval,
		Seed:         !empty,
	})
	logging.Info("starting arcbox-mock", "version", Version, "pid", os.Getpid(), "foreground", foreground)
	return d.Run(ctx)
}
