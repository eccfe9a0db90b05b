package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "genrepl",
		Short:         "genrepl: a rate-limit-aware conversational REPL",
		Long:          "genrepl is an interactive client for a generative-text API with local admission control, a tool decision cache, a token-budgeted context window, and resumable causally threaded session logs.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newChatCmd(app),
		newSessionsCmd(app),
		newStatusCmd(app),
		newModelsCmd(app),
	)

	return rootCmd
}
