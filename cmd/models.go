package cmd

import (
	"fmt"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/spf13/cobra"
)

func newModelsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage model rate-limit profiles",
	}

	cmd.AddCommand(
		newModelsListCmd(app),
		newModelsSetCmd(app),
	)

	return cmd
}

func newModelsListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known model profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := app.modelRepo.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list model profiles: %w", err)
			}

			for _, profile := range profiles {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\trpm=%d\teffective=%d\tcontext=%d\n",
					profile.Name, profile.RequestsPerMinute, profile.EffectiveLimit(), profile.MaxContextTokens)
			}

			return nil
		},
	}
}

func newModelsSetCmd(app *app) *cobra.Command {
	var (
		name      string
		rpm       int
		margin    float64
		maxTokens int
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or update a model profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			profile := domain.ModelProfile{
				Name:              name,
				RequestsPerMinute: rpm,
				SafetyMargin:      margin,
				MaxContextTokens:  maxTokens,
			}

			if err := app.modelRepo.Save(cmd.Context(), profile); err != nil {
				return fmt.Errorf("save model profile: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved %s (effective limit %d)\n", name, profile.EffectiveLimit())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "model", "", "Model name")
	cmd.Flags().IntVar(&rpm, "rpm", domain.DefaultRequestsPerMinute, "Requests per minute")
	cmd.Flags().Float64Var(&margin, "margin", domain.DefaultSafetyMargin, "Safety margin fraction (0 < margin <= 1)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", domain.DefaultMaxContextTokens, "Context token budget")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}
