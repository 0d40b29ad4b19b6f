package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/concord/internal/platform"
)

func newOrderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order <log>...",
		Short: "Print operations in causal replay order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := platform.Load(a.cfg.GetString("match"), args...)
			if err != nil {
				return err
			}
			svc, err := platform.NewService(a.options()...)
			if err != nil {
				return err
			}

			ordered, err := svc.OrderOperations(cmd.Context(), ops)
			if err != nil {
				return err
			}
			for _, op := range ordered {
				fmt.Fprintln(cmd.OutOrStdout(), op)
			}
			return nil
		},
	}
	cmd.Flags().String("match", "", "Only consider operations whose path matches this glob")
	return cmd
}
