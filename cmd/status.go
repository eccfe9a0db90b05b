package cmd

import (
	"encoding/json"
	"fmt"

	statusadapter "github.com/brelli/genrepl/internal/adapters/render/status"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var (
		modelFlag string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show rate limit status for a model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			controller, err := app.registry.ForModel(cmd.Context(), app.modelName(modelFlag))
			if err != nil {
				return fmt.Errorf("load admission controller: %w", err)
			}

			admission := controller.Status()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(admission)
			}

			rendered, err := statusadapter.Render(admission, nil, statusadapter.RenderOptions{Now: app.now()})
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().StringVar(&modelFlag, "model", "", "Model to inspect (defaults to the configured chat model)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
