// Command chatclient is the terminal client for chatserver.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/go-chatcore/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "chatclient <address> <port>",
		Short:   "Terminal chat room client",
		Example: "  chatclient 192.168.1.101 5005",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c := client.New(client.DefaultConfig(net.JoinHostPort(args[0], args[1])))
			defer c.Close()

			u := newUI(c, cmd.InOrStdin(), cmd.OutOrStdout())
			if err := c.Connect(cmd.Context()); err != nil {
				return err
			}

			return u.run()
		},
	}
}
