package cmd

import (
	"context"
	"fmt"

	"cipherd/bootstrap"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the cipherd command. Without a subcommand it runs the server.
func NewRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "cipherd",
		Short:         "RSA encrypt/decrypt service with a request log",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Serve(cmd.Context(), configFile)
		},
	}
	root.Flags().StringVar(&configFile, "config", "", "Config file path")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewLogsCmd())
	return root
}

// NewServeCmd creates the 'serve' command
func NewServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Serve(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Config file path")
	return cmd
}

// Serve initializes and runs the server until a shutdown signal arrives.
func Serve(ctx context.Context, configFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := bootstrap.NewApp(ctx, configFile)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()
	return nil
}
