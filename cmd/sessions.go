package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/brelli/genrepl/internal/adapters/ledger/jsonl"
	statusadapter "github.com/brelli/genrepl/internal/adapters/render/status"
	"github.com/spf13/cobra"
)

func newSessionsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}

	cmd.AddCommand(newSessionsListCmd(app))

	return cmd
}

func newSessionsListCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions recorded for this project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := jsonl.ListSessions(cmd.Context(), app.project.Dir)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}

			rendered, err := statusadapter.RenderSessions(sessions, statusadapter.RenderOptions{Now: app.now()})
			if err != nil {
				return fmt.Errorf("render sessions: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
