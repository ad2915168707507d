package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/pulsr"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	cmdr := command{out: out}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createServeCommand(globalFlags),
		createCreateCommand(cmdr, &CreateFlags{}),
		createHeartbeatCommand(cmdr, &HeartbeatFlags{}),
		createStatusCommand(cmdr, &StatusFlags{}),
		createRemoveCommand(cmdr, &RemoveFlags{}),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "pulsr",
		Short: "Heartbeat-based liveness tracking",
		Long: `Pulsr tracks the liveness of registered processes. Clients renew a
heartbeat per process id; a background monitor renews keep-alive processes
and reports which ones are alive.

Examples:
  pulsr serve config.toml
  pulsr create --keep-alive
  pulsr heartbeat --id=ShortLivedProcess_1a2b
  pulsr status --active --api-url=http://remote:8080/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon API URL (default http://localhost:8080/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA certificate for HTTPS daemons")
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the pulsr daemon",
		Long: `Start the HTTP API and the background monitor.
Without a config file the built-in defaults are used; PULSR_* environment
variables override both.

Examples:
  pulsr serve
  pulsr serve config.toml
  pulsr serve --config=config.toml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := ServeFlags{ConfigPath: globalFlags.ConfigPath}
			if len(args) > 0 {
				flags.ConfigPath = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags)
		},
	}
}

func loadServeConfig(flags ServeFlags) (*pulsr.Config, error) {
	if flags.ConfigPath == "" {
		c, err := pulsr.ConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		return c, nil
	}
	c, err := pulsr.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return c, nil
}

func runServe(ctx context.Context, flags ServeFlags) error {
	cfg, err := loadServeConfig(flags)
	if err != nil {
		return err
	}
	d, err := startDaemon(cfg)
	if err != nil {
		return err
	}
	return d.run(ctx)
}

func createCreateCommand(c command, f *CreateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new process and print its id",
		Long: `Register a new process with the daemon.

Examples:
  pulsr create                 # short-lived, expires without heartbeats
  pulsr create --keep-alive    # renewed by the daemon's monitor`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Create(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.KeepAlive, "keep-alive", false, "let the monitor renew this process")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createHeartbeatCommand(c command, f *HeartbeatFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Renew the heartbeat of a process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Heartbeat(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "process id (required)")
	addAPIFlags(cmd, &f.APIFlags)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createStatusCommand(c command, f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show process liveness",
		Long: `Show liveness records.

Examples:
  pulsr status                 # every tracked process
  pulsr status --active        # alive processes only
  pulsr status --id=LongLivedProcess_9f3c`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Status(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "show a single process")
	cmd.Flags().BoolVar(&f.Active, "active", false, "only alive processes")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createRemoveCommand(c command, f *RemoveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Stop tracking a process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Remove(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.ID, "id", "", "process id (required)")
	addAPIFlags(cmd, &f.APIFlags)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}
