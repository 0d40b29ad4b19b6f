package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/concord/internal/platform"
)

func newDepsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps <log>...",
		Short: "Print the operations each operation causally depends on",
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
			deps := svc.CalculateOperationDependencies(cmd.Context(), ops)

			if a.cfg.GetBool("json") {
				view := make(map[string][]string, len(deps))
				for id, ds := range deps {
					list := make([]string, 0, len(ds))
					for _, d := range ds {
						list = append(list, string(d))
					}
					view[string(id)] = list
				}
				return writeJSON(cmd.OutOrStdout(), view)
			}

			for _, op := range ops {
				var list []string
				for _, d := range deps[op.ID()] {
					list = append(list, string(d))
				}
				if len(list) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: -\n", op.ID())
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", op.ID(), strings.Join(list, ", "))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Output in JSON format")
	cmd.Flags().String("match", "", "Only consider operations whose path matches this glob")
	return cmd
}
