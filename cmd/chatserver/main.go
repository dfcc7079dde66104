// Command chatserver runs the chat room server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "chatserver <address> <port>",
		Short: "Multi-user TCP chat room server",
		Long: `chatserver accepts chat clients on <address>:<port>, authenticates them
against the configured credential store and relays chat lines between
logged in users.

Settings come from config.yaml in --config (optional) and CHATCORE_*
environment variables.`,
		Example: "  chatserver 0.0.0.0 5005 --config /etc/chatcore",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return serve(cmd.Context(), configDir, args[0], args[1])
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory holding config.yaml")

	rootCmd.AddCommand(addUserCmd(&configDir))
	return rootCmd
}
