// Package cmd assembles the dispatcher's command-line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arach/transcribe-dispatch/cmd/capture"
	"github.com/arach/transcribe-dispatch/cmd/serve"
	"github.com/arach/transcribe-dispatch/cmd/service"
	"github.com/arach/transcribe-dispatch/internal/config"
)

// RootCommand builds the root "transcribe-dispatch" command and wires in
// its subcommands.
func RootCommand(settings *config.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "transcribe-dispatch",
		Short: "Cross-process transcription dispatch layer",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		capture.Command(settings),
		service.Command(settings),
	)

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, settings *config.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug-level logging")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
