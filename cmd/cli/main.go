package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kubescape/dockwatch/core/ports"
	"github.com/spf13/cobra"
)

var (
	configDir  string
	daemonHost string

	rootCmd = &cobra.Command{
		Use:   "dockwatch",
		Short: "Manage the containers declared in the dockwatch catalog",
		Long: `dockwatch reconciles the images and containers declared in its catalog
against the local container daemon.`,
		SilenceUsage: true,
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Check every image and print its status",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	checkCmd = &cobra.Command{
		Use:   "check [image-id]",
		Short: "Re-read the state of an image from the daemon",
		Args:  cobra.ExactArgs(1),
		RunE:  operation(ports.ReconcilerService.Check),
	}
	fetchCmd = &cobra.Command{
		Use:   "fetch [image-id]",
		Short: "Pull an image",
		Args:  cobra.ExactArgs(1),
		RunE:  operation(ports.ReconcilerService.Fetch),
	}
	runCmd = &cobra.Command{
		Use:   "run [image-id]",
		Short: "Create or start the container of an image",
		Long:  `Creates the container of an image, or starts it if it already exists. Hosts declared on other images must be running first.`,
		Args:  cobra.ExactArgs(1),
		RunE:  operation(ports.ReconcilerService.Run),
	}
	stopCmd = &cobra.Command{
		Use:   "stop [image-id]",
		Short: "Stop the container of an image",
		Args:  cobra.ExactArgs(1),
		RunE:  operation(ports.ReconcilerService.Stop),
	}
	rmCmd = &cobra.Command{
		Use:   "rm [image-id]",
		Short: "Remove the container of an image and its volumes",
		Args:  cobra.ExactArgs(1),
		RunE:  operation(ports.ReconcilerService.RemoveContainer),
	}
	rmiCmd = &cobra.Command{
		Use:   "rmi [image-id]",
		Short: "Remove an image, cancelling its pull if one is in progress",
		Args:  cobra.ExactArgs(1),
		RunE:  operation(ports.ReconcilerService.RemoveImage),
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Follow the daemon and print every status change until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory holding config.json (default $CONFIG_DIR or the XDG config directory)")
	rootCmd.PersistentFlags().StringVar(&daemonHost, "host", "", "daemon address, overrides daemonHost from the configuration")
	rootCmd.AddCommand(statusCmd, checkCmd, fetchCmd, runCmd, stopCmd, rmCmd, rmiCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	a.service.CheckAll(cmd.Context())
	a.settle()
	a.printStates(cmd)
	return nil
}

// operation builds the RunE of a command acting on one image.
func operation(op func(ports.ReconcilerService, context.Context, string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return a.execute(cmd, op, args[0])
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	changes, cancel := a.storage.Subscribe(64)
	defer cancel()
	a.service.CheckAll(cmd.Context())
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case state, ok := <-changes:
			if !ok {
				return nil
			}
			a.printState(cmd, state)
		}
	}
}
