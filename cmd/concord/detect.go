package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/concord/internal/platform"
	"github.com/aretw0/concord/pkg/core"
)

// conflictView is the JSON shape of a detected conflict.
type conflictView struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Path       string   `json:"path"`
	Severity   string   `json:"severity"`
	Operations []string `json:"operations"`
	Devices    []string `json:"devices"`
	Options    []string `json:"options"`
	Automatic  bool     `json:"automatic"`
}

func newConflictView(c core.Conflict) conflictView {
	v := conflictView{
		ID:        string(c.ID()),
		Type:      string(c.Type()),
		Path:      c.TargetPath(),
		Severity:  string(c.Severity()),
		Automatic: c.CanBeAutomaticallyResolved(),
	}
	for _, op := range c.Operations() {
		v.Operations = append(v.Operations, string(op.ID()))
	}
	for _, d := range c.InvolvedDevices() {
		v.Devices = append(v.Devices, string(d))
	}
	for _, opt := range c.ResolutionOptions() {
		v.Options = append(v.Options, string(opt.Strategy))
	}
	return v
}

func newDetectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect <log>...",
		Short: "List conflicts between concurrent operations",
		Long: `Detect reads one or more operation logs and reports every conflict
between concurrent operations on the same target, with its resolution options.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := platform.Load(a.cfg.GetString("match"), args...)
			if err != nil {
				return err
			}
			svc, err := platform.NewService(a.options()...)
			if err != nil {
				return err
			}

			conflicts, err := svc.DetectConflicts(cmd.Context(), ops)
			if err != nil {
				return err
			}

			if a.cfg.GetBool("json") {
				views := make([]conflictView, 0, len(conflicts))
				for _, c := range conflicts {
					views = append(views, newConflictView(c))
				}
				return writeJSON(cmd.OutOrStdout(), views)
			}

			out := cmd.OutOrStdout()
			if len(conflicts) == 0 {
				fmt.Fprintln(out, "No conflicts.")
				return nil
			}
			for _, c := range conflicts {
				v := newConflictView(c)
				fmt.Fprintf(out, "%s %s [%s] %s\n", v.Type, v.Path, v.Severity, strings.Join(v.Operations, ", "))
				fmt.Fprintf(out, "  options: %s\n", strings.Join(v.Options, ", "))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Output in JSON format")
	cmd.Flags().String("match", "", "Only consider operations whose path matches this glob")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
