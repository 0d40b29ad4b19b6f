package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aretw0/concord/internal/platform"
	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/oplog"
	"github.com/aretw0/concord/pkg/replica"
)

func newReplayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <log>...",
		Short: "Integrate operation logs into a fresh replica",
		Long: `Replay feeds each log, in order, to a replica that starts empty. Conflicts
are settled automatically where possible. The resulting document digest is
equal for every replica that integrated the same operations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := platform.NewReplica(core.DeviceID(a.cfg.GetString("device")), a.options()...)
			if err != nil {
				return err
			}
			defer r.Close()

			report, err := platform.Replay(cmd.Context(), r, args...)
			printReport(cmd.OutOrStdout(), report)
			if err != nil {
				return err
			}

			if out := a.cfg.GetString("out"); out != "" {
				if err := oplog.WriteFile(out, r.Log()); err != nil {
					return err
				}
				a.logger.Info("log written", "path", out, "operations", len(r.Log()))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "digest: %016x\n", r.Digest())
			return nil
		},
	}
	cmd.Flags().String("device", "concord", "Device id of the replica")
	cmd.Flags().String("out", "", "Write the integrated log to this file")
	return cmd
}

func printReport(w io.Writer, report replica.Report) {
	fmt.Fprintf(w, "applied: %d, skipped: %d, duplicates: %d, conflicts: %d\n",
		len(report.Applied), len(report.Skipped), report.Duplicates, len(report.Conflicts))
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "  skipped %s: %v\n", s.Operation, s.Err)
	}
	for _, c := range report.Conflicts {
		if strategy, ok := c.SelectedResolution(); ok {
			fmt.Fprintf(w, "  %s %s resolved by %s\n", c.Type(), c.TargetPath(), strategy)
			continue
		}
		fmt.Fprintf(w, "  %s %s needs a decision\n", c.Type(), c.TargetPath())
	}
}
