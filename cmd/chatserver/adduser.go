package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyberinferno/go-chatcore/chat"
	"github.com/cyberinferno/go-chatcore/config"
	"github.com/cyberinferno/go-chatcore/credstore"
	"github.com/cyberinferno/go-chatcore/session"
)

func addUserCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "adduser <name> <secret>",
		Short: "Register a user directly in the credential store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}

			store, err := credstore.Open(cmd.Context(), cfg.StoreOptions())
			if err != nil {
				return err
			}
			defer store.Close()

			svc := chat.NewService(store, session.NewRegistry(), chat.WithBcryptCost(cfg.Store.BcryptCost))
			if err := svc.AddUser(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "user %s added\n", args[0])
			return nil
		},
	}
}
