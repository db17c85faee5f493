package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drewfead/arcbox-desktop/internal/bridge"
	"github.com/drewfead/arcbox-desktop/internal/cli"
	"github.com/drewfead/arcbox-desktop/internal/control"
	"github.com/drewfead/arcbox-desktop/internal/daemon"
	"github.com/drewfead/arcbox-desktop/internal/logging"
	"github.com/drewfead/arcbox-desktop/internal/service"
)

const commandTimeout = 30 * time.Second

var (
	jsonOutput  bool
	listAll     bool
	followLogs  bool
	tailLines   int
	timestamps  bool
	stopTimeout time.Duration
	forceRemove bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is up and where it lives",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context())
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon and keep it supervised until interrupted",
	Long: `Start the arcbox daemon unless one is already answering, then stay
attached until Ctrl-C. A daemon started here is stopped on exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context())
	},
}

var psCmd = &cobra.Command{
	Use:     "ps",
	Aliases: []string{"containers"},
	Short:   "List containers",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), service.KindContainer)
	},
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), service.KindImage)
	},
}

var machinesCmd = &cobra.Command{
	Use:   "machines",
	Short: "List Linux machines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), service.KindMachine)
	},
}

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List networks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), service.KindNetwork)
	},
}

var volumesCmd = &cobra.Command{
	Use:   "volumes",
	Short: "List volumes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), service.KindVolume)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <container>",
	Short: "Print a container's logs",
	Long: `Print a container's logs. The container may be named by ID, ID prefix
or name.

Examples:
  arcbox-desktop logs web
  arcbox-desktop logs web -f --tail 20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogs(cmd.Context(), args[0])
	},
}

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Start, stop and remove containers",
}

var containerStartCmd = &cobra.Command{
	Use:   "start <container>",
	Short: "Start a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd.Context(), func(svc *service.Service) tea.Cmd {
			return svc.StartContainer(args[0])
		})
	},
}

var containerStopCmd = &cobra.Command{
	Use:   "stop <container>",
	Short: "Stop a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd.Context(), func(svc *service.Service) tea.Cmd {
			return svc.StopContainer(args[0], stopTimeout)
		})
	},
}

var containerRmCmd = &cobra.Command{
	Use:     "rm <container>",
	Aliases: []string{"remove"},
	Short:   "Remove a container",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutation(cmd.Context(), func(svc *service.Service) tea.Cmd {
			return svc.RemoveContainer(args[0], forceRemove)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{psCmd, imagesCmd, machinesCmd, networksCmd, volumesCmd, statusCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	}
	psCmd.Flags().BoolVarP(&listAll, "all", "a", true, "Include stopped containers")
	imagesCmd.Flags().BoolVarP(&listAll, "all", "a", true, "Include unused images")
	machinesCmd.Flags().BoolVarP(&listAll, "all", "a", true, "Include stopped machines")

	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "Keep streaming new output")
	logsCmd.Flags().IntVar(&tailLines, "tail", 0, "Lines of backlog (0 uses logs.tail, -1 prints everything)")
	logsCmd.Flags().BoolVarP(&timestamps, "timestamps", "t", false, "Prefix lines with their timestamp")

	containerStopCmd.Flags().DurationVarP(&stopTimeout, "time", "t", 10*time.Second, "Grace period before the container is killed")
	containerRmCmd.Flags().BoolVarP(&forceRemove, "force", "f", false, "Remove a running container")

	containerCmd.AddCommand(containerStartCmd, containerStopCmd, containerRmCmd)
	rootCmd.AddCommand(statusCmd, startCmd, psCmd, imagesCmd, machinesCmd, networksCmd, volumesCmd, logsCmd, containerCmd)
}

// interruptible returns ctx cancelled on SIGINT or SIGTERM.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// headless runs fn with a connected session. Work runs inline on the
// goroutine of the command that issued it.
func headless(parent context.Context, timeout time.Duration, fn func(ctx context.Context, s *session) error) error {
	ctx, stop := interruptible(parent)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sup, svc, cleanup := components(bridge.Inline{})
	defer cleanup()
	s := newSession(sup, svc)
	defer s.close()

	if err := s.connect(ctx); err != nil {
		return err
	}
	return fn(ctx, s)
}

type statusReport struct {
	Daemon       string         `json:"daemon"`
	Control      string         `json:"control"`
	DataDir      string         `json:"data_dir"`
	HealthSocket string         `json:"health_socket"`
	RPCSocket    string         `json:"rpc_socket"`
	Counts       map[string]int `json:"counts,omitempty"`
}

func runStatus(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, cfg.Daemon.ProbeTimeout+5*time.Second)
	defer cancel()

	sup := daemon.New(daemon.OptionsFromConfig(cfg.Daemon), bridge.Inline{})
	report := statusReport{
		Daemon:       "not running",
		Control:      "unreachable",
		DataDir:      sup.DataDir(),
		HealthSocket: sup.HealthSocket(),
		RPCSocket:    sup.RPCSocket(),
	}

	// Health probe and control socket are checked side by side; neither
	// failing is an error for this command.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if sup.Probe(gctx) {
			report.Daemon = "running"
		}
		return nil
	})
	var counts map[string]int
	g.Go(func() error {
		c, err := control.Dial(gctx, sup.RPCSocket())
		if err != nil {
			logging.Debug("control socket unreachable", "error", err)
			return nil
		}
		defer c.Close()
		if err := c.Ping(gctx); err != nil {
			return nil
		}
		report.Control = "ok"
		counts, err = countAll(gctx, c)
		if err != nil {
			logging.Warn("failed to count entities", "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	report.Counts = counts

	if jsonOutput {
		return printJSON(report)
	}
	printStatus(report)
	return nil
}

// countAll lists every kind concurrently over one client.
func countAll(ctx context.Context, c *control.Client) (map[string]int, error) {
	methods := map[service.Kind]string{
		service.KindContainer: control.MethodContainerList,
		service.KindImage:     control.MethodImageList,
		service.KindMachine:   control.MethodMachineList,
		service.KindNetwork:   control.MethodNetworkList,
		service.KindVolume:    control.MethodVolumeList,
	}
	results := make([]int, len(service.Kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range service.Kinds {
		g.Go(func() error {
			var items []struct{}
			if err := c.Call(gctx, methods[kind], control.ListRequest{All: true}, &items); err != nil {
				return fmt.Errorf("list %ss: %w", kind, err)
			}
			results[i] = len(items)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(results))
	for i, kind := range service.Kinds {
		counts[string(kind)] = results[i]
	}
	return counts, nil
}

func runStart(parent context.Context) error {
	ctx, stop := interruptible(parent)
	defer stop()

	pool := bridge.NewPool(cfg.Bridge.Workers)
	defer pool.Close()
	sup, svc, cleanup := components(pool)
	defer cleanup()
	s := newSession(sup, svc)
	defer s.close()

	fmt.Printf("Starting daemon (data dir %s)...\n", sup.DataDir())
	st, err := s.startDaemon(ctx)
	if err != nil {
		return err
	}
	if st.Phase != daemon.Running {
		return fmt.Errorf("daemon %s", st)
	}

	if pid := sup.PID(); pid > 0 {
		fmt.Printf("%s Daemon running (pid %d). Press Ctrl-C to stop it.\n", cli.Mark(true), pid)
	} else {
		fmt.Printf("%s Daemon already running at %s\n", cli.Mark(true), sup.HealthSocket())
		return nil
	}

	// Stay attached so an unexpected exit is reported.
	msg, err := s.run(ctx, nil, func(msg tea.Msg) bool {
		sc, ok := msg.(daemon.StateChangedMsg)
		return ok && sc.State.Phase != daemon.Running
	})
	if err != nil {
		fmt.Println("Stopping daemon...")
		return nil
	}
	return fmt.Errorf("daemon %s", msg.(daemon.StateChangedMsg).State)
}

func runList(parent context.Context, kind service.Kind) error {
	return headless(parent, commandTimeout, func(ctx context.Context, s *session) error {
		var cmd tea.Cmd
		switch kind {
		case service.KindContainer:
			cmd = s.svc.ListContainers(listAll)
		case service.KindImage:
			cmd = s.svc.ListImages(listAll)
		case service.KindMachine:
			cmd = s.svc.ListMachines(listAll)
		case service.KindNetwork:
			cmd = s.svc.ListNetworks()
		case service.KindVolume:
			cmd = s.svc.ListVolumes()
		}
		if _, err := s.do(ctx, cmd, kind); err != nil {
			return err
		}
		return printInventory(s.inv, kind)
	})
}

func runMutation(parent context.Context, op func(*service.Service) tea.Cmd) error {
	return headless(parent, commandTimeout, func(ctx context.Context, s *session) error {
		msg, err := s.do(ctx, op(s.svc), service.KindContainer)
		if err != nil {
			return err
		}
		if m, ok := msg.(service.EntityMutatedMsg); ok {
			fmt.Printf("%s %s %s\n", cli.Mark(true), m.ID, m.Action)
		}
		return nil
	})
}

func runLogs(parent context.Context, id string) error {
	return headless(parent, 0, func(ctx context.Context, s *session) error {
		sub, cmd := s.svc.SubscribeLogs(service.LogOptions{
			ContainerID: id,
			Follow:      followLogs,
			Stdout:      true,
			Stderr:      true,
			Timestamps:  timestamps,
			Tail:        tailLines,
		})
		if sub == nil {
			_, err := s.do(ctx, cmd, service.KindContainer)
			return err
		}
		defer s.svc.Unsubscribe(sub.ID)

		for {
			msg, err := s.run(ctx, cmd, func(msg tea.Msg) bool {
				switch msg := msg.(type) {
				case service.LogLineReceivedMsg:
					return msg.SubscriptionID == sub.ID
				case service.LogStreamEndedMsg:
					return msg.SubscriptionID == sub.ID
				}
				return false
			})
			if err != nil {
				// Interrupted while following.
				return nil
			}
			switch msg := msg.(type) {
			case service.LogLineReceivedMsg:
				printLogEntry(msg.Line)
				cmd = sub.Next()
			case service.LogStreamEndedMsg:
				return msg.Err
			}
		}
	})
}
