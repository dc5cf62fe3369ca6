package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/forumkit/flarum-importer/internal/mapping"
	"github.com/forumkit/flarum-importer/internal/target"
)

func statusCommand(app *Context) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the current or last import run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := target.NewManager(&app.Settings.Target, app.Log("target"))
			if err != nil {
				return err
			}
			defer closeQuietly(app.Log("cli"), "target", manager.Close)
			if err := manager.Initialize(); err != nil {
				return err
			}

			mappings := mapping.NewStore(manager.DB(), 0, app.Log("mapping"))
			report, err := buildReport(cmd.Context(), target.NewStateManager(manager.DB()), mappings)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), report, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of YAML")
	return cmd
}

// buildReport combines run progress with the number of mapped records per kind.
func buildReport(ctx context.Context, state *target.StateManager, mappings *mapping.Store) (*target.RunReport, error) {
	report, err := state.Report()
	if err != nil {
		return nil, err
	}
	counts, err := mappings.Counts(ctx)
	if err != nil {
		return nil, err
	}
	report.Mappings = make(map[string]int64, len(counts))
	for kind, n := range counts {
		report.Mappings[string(kind)] = n
	}
	return report, nil
}

func writeReport(w io.Writer, report *target.RunReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return enc.Close()
}
