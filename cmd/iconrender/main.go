package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot assembles the command tree.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	cmd := command{global: globalFlags, out: os.Stdout}

	root.AddCommand(
		createRunCommand(cmd),
		createRenderCommand(cmd),
		createRecoverCommand(cmd),
		createStatusCommand(cmd),
		createSkipListCommand(cmd),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "iconrender",
		Short: "Crash-resilient batch icon renderer",
		Long: `iconrender renders item and vehicle icons for every asset in a catalog.
Assets that crash the render engine are remembered in config.json and
skipped on the next run.

Examples:
  iconrender run                          # honour the AutoStart policy
  iconrender render --mode vehicles       # one batch, exit when done
  iconrender status --api-url=http://127.0.0.1:8087/api
  iconrender skiplist add 2b1c...`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML settings file (optional)")
	return root
}

func createRunCommand(c command) *cobra.Command {
	flags := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the renderer",
		Long: `Start the render loop and the HTTP API. A batch starts on its own when
AutoStart is enabled in config.json; otherwise one can be started through
the API.

Examples:
  iconrender run
  iconrender run --daemonize --pidfile=/run/iconrender.pid --logfile=/var/log/iconrender.out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context(), *flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run in background")
	cmd.Flags().StringVar(&flags.PidFile, "pidfile", "", "write the process id to this file")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func createRenderCommand(c command) *cobra.Command {
	flags := &RenderFlags{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one batch and exit",
		Long: `Enumerate the catalog once, render every icon, write the publisher
manifests and exit once generation_complete.txt has been written.

Examples:
  iconrender render
  iconrender render --mode mod --publisher 2136497468
  iconrender render --mode items --item-angles 10,45,0
  iconrender render --api-url=http://127.0.0.1:8087/api   # start on a running instance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Render(cmd.Context(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Mode, "mode", "all", "all | items | vehicles | mod")
	cmd.Flags().Uint64Var(&flags.Publisher, "publisher", 0, "publisher id for --mode mod")
	cmd.Flags().BoolVar(&flags.Items, "items", true, "render items (mode all/mod)")
	cmd.Flags().BoolVar(&flags.Vehicles, "vehicles", true, "render vehicles (mode all/mod)")
	cmd.Flags().Float64SliceVar(&flags.ItemAngles, "item-angles", nil, "item camera angles x,y,z")
	cmd.Flags().Float64SliceVar(&flags.VehicleAngles, "vehicle-angles", nil, "vehicle camera angles x,y,z")
	cmd.Flags().DurationVar(&flags.Delay, "delay", 0, "wait this long after the catalog is loaded")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "start the batch on a running instance")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "API request timeout")
	return cmd
}

func createRecoverCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Skip-list the asset a crashed run left behind",
		Long: `Consume pending_asset.txt, if present, and add the asset it names to the
skip list. The renderer does this on startup as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Recover()
		},
	}
}

func createStatusCommand(c command) *cobra.Command {
	flags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running renderer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "http://127.0.0.1:8087/api", "renderer API base URL")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "API request timeout")
	cmd.Flags().BoolVar(&flags.Watch, "watch", false, "keep polling")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 2*time.Second, "poll interval with --watch")
	return cmd
}

func createSkipListCommand(c command) *cobra.Command {
	flags := &SkipFlags{}
	cmd := &cobra.Command{
		Use:   "skiplist",
		Short: "Inspect or edit the skip list",
		Long: `Without --api-url the skip list in config.json is edited directly; this
is refused while a renderer holds the data root.`,
	}
	cmd.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "use a running instance")
	cmd.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "API request timeout")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print skipped asset ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SkipList(cmd.Context(), *flags)
		},
	}
	add := &cobra.Command{
		Use:   "add ID",
		Short: "Skip an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SkipAdd(cmd.Context(), args[0], *flags)
		},
	}
	add.Flags().StringVar(&flags.Name, "name", "", "asset name for the log")
	remove := &cobra.Command{
		Use:   "remove ID",
		Short: "Stop skipping an asset (offline only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SkipRemove(args[0])
		},
	}
	cmd.AddCommand(list, add, remove)
	return cmd
}
