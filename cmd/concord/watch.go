package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/concord/internal/platform"
	lcadapter "github.com/aretw0/concord/pkg/adapters/lifecycle"
	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/oplog"
	"github.com/aretw0/concord/pkg/replica"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Run a replica fed by an inbox directory",
		Long: `Watch integrates every operation log in the directory, then keeps
integrating logs as they are dropped there until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := platform.NewReplica(core.DeviceID(a.cfg.GetString("device")), a.options()...)
			if err != nil {
				return err
			}

			source := lcadapter.NewSource(r.Events())
			if err := source.Start(ctx); err != nil {
				_ = r.Close()
				return err
			}
			drained := make(chan struct{})
			go func() {
				defer close(drained)
				for e := range source.Events() {
					if re, ok := e.(replica.Event); ok {
						a.logger.Debug("replica event", "kind", re.Kind, "operation", re.Operation, "path", re.Path)
					}
				}
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)...\n", args[0])
			err = platform.Sync(ctx, r, args[0], func(file string, report replica.Report) {
				fmt.Fprintf(out, "%s: ", filepath.Base(file))
				printReport(out, report)
			}, a.options()...)
			_ = r.Close()
			<-drained
			if err != nil {
				return err
			}

			if path := a.cfg.GetString("out"); path != "" {
				if err := oplog.WriteFile(path, r.Log()); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "digest: %016x\n", r.Digest())
			return nil
		},
	}
	cmd.Flags().String("device", "concord", "Device id of the replica")
	cmd.Flags().String("out", "", "Write the integrated log to this file on exit")
	cmd.Flags().String("pattern", "", "Only read log files whose name matches this glob")
	cmd.Flags().Duration("debounce", 0, "Quiet period before a changed file is read (default 50ms)")
	return cmd
}
