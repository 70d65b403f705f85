// Package service implements the "service" subcommand group: install,
// start, stop, and status for the dispatcher daemon managed as one
// long-running background process.
package service

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arach/transcribe-dispatch/internal/config"
	"github.com/arach/transcribe-dispatch/internal/servicemgr"
)

// Command builds the "service" subcommand group.
func Command(settings *config.Settings) *cobra.Command {
	root := &cobra.Command{
		Use:   "service",
		Short: "Install, start, stop, or check the status of the dispatcher daemon",
	}

	root.AddCommand(
		installCommand(settings),
		startCommand(settings),
		stopCommand(settings),
		statusCommand(settings),
	)
	return root
}

func manager(settings *config.Settings) *servicemgr.Manager {
	return servicemgr.New(servicemgr.Config{
		Name:          settings.Service.Name,
		BinaryPath:    settings.Worker.BinaryPath,
		PIDFile:       settings.Service.PIDFile,
		HealthPorts:   []int{settings.Queue.PushPort, settings.Queue.PullPort, settings.Queue.ControlPort},
		HealthTimeout: 0,
	})
}

func installCommand(settings *config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Validate the worker binary and prepare the PID file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return manager(settings).Install()
		},
	}
}

func startCommand(settings *config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the dispatcher daemon as a detached background process",
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := manager(settings).Start(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("started pid %d\n", pid)
			return nil
		},
	}
}

func stopCommand(settings *config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the dispatcher daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return manager(settings).Stop()
		},
	}
}

func statusCommand(settings *config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the dispatcher daemon is running and healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := manager(settings).Status()
			fmt.Printf("running=%v pid=%d healthy=%v\n", status.Running, status.PID, status.Healthy)
			return nil
		},
	}
}
