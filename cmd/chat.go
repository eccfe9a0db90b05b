package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brelli/genrepl/internal/adapters/contextstore/file"
	"github.com/brelli/genrepl/internal/adapters/generator/gemini"
	"github.com/brelli/genrepl/internal/adapters/ledger/jsonl"
	statusadapter "github.com/brelli/genrepl/internal/adapters/render/status"
	"github.com/brelli/genrepl/internal/adapters/tools/sandbox"
	"github.com/brelli/genrepl/internal/application"
	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
	"github.com/brelli/genrepl/internal/version"
	"github.com/spf13/cobra"
)

func newChatCmd(app *app) *cobra.Command {
	var (
		resumeRef   string
		sessionName string
		modelFlag   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, app, resumeRef, sessionName, modelFlag)
		},
	}

	cmd.Flags().StringVar(&resumeRef, "resume", "", "Resume a previous session by UUID or name")
	cmd.Flags().StringVar(&sessionName, "name", "", "Name for the session (maps deterministically to a session UUID)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "Remote model to talk to")

	return cmd
}

func runChat(cmd *cobra.Command, app *app, resumeRef, sessionName, modelFlag string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	apiKey := app.config.GetString("api.key")
	if apiKey == "" {
		return fmt.Errorf("no API key configured: set %s", defaultAPIKeyEnv)
	}
	model := app.modelName(modelFlag)

	sessionID := ""
	resumed := false
	switch {
	case resumeRef != "":
		id, err := jsonl.FindSession(app.project.Dir, resumeRef)
		if err != nil {
			return fmt.Errorf("resume session %q: %w", resumeRef, err)
		}
		sessionID = id
		resumed = true
	case sessionName != "":
		sessionID = domain.SessionIDForName(sessionName)
		if _, err := os.Stat(app.project.SessionFile(sessionID)); err == nil {
			resumed = true
		}
	}

	clock := ports.SystemClock{}
	ledger, err := jsonl.New(app.project.Dir, sessionID, clock)
	if err != nil {
		return fmt.Errorf("open session ledger: %w", err)
	}

	var resumedEntries int
	if resumed {
		entries, err := ledger.Resume(ctx)
		if err != nil {
			return fmt.Errorf("resume session ledger: %w", err)
		}
		resumedEntries = len(entries)
	}

	profile, err := app.modelRepo.GetByName(ctx, model)
	if err != nil {
		if !errors.Is(err, domain.ErrModelNotFound) {
			return fmt.Errorf("load model profile: %w", err)
		}
		profile = domain.FallbackModelProfile(model)
	}

	controller, err := app.registry.ForModel(ctx, model)
	if err != nil {
		return fmt.Errorf("wire admission controller: %w", err)
	}

	runner, err := sandbox.NewRunner(app.workDir)
	if err != nil {
		return fmt.Errorf("wire tool sandbox: %w", err)
	}

	client := gemini.NewClient(app.config.GetString("api.base_url"), apiKey, model, app.httpClient)
	window := domain.NewConversationWindow(profile.MaxContextTokens, domain.HeuristicEstimator)
	store := file.NewStore(app.project.ContextFile(), clock)
	ttl := time.Duration(app.config.GetInt("cache.ttl_minutes")) * time.Minute

	orch := application.NewOrchestrator(application.OrchestratorDeps{
		Window:      window,
		WindowStore: store,
		Ledger:      ledger,
		Admission:   controller,
		Cache:       application.NewDecisionCache(client, clock, ttl),
		Generator:   client,
		Tools:       runner,
		Clock:       clock,
		Wait: func(ctx context.Context, d time.Duration) error {
			return runWaitCountdown(ctx, out, controller, d)
		},
	})

	if err := orch.RestoreWindow(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	if window.Len() == 0 {
		if prompt := app.config.GetString("chat.system_prompt"); prompt != "" {
			window.Append(domain.RoleSystem, prompt, app.now())
		}
	}

	fmt.Fprintf(out, "genrepl %s (model %s)\n", version.Version, model)
	fmt.Fprintf(out, "session %s (%s)\n", ledger.SessionID(), app.project.Name)
	if resumed {
		fmt.Fprintf(out, "resumed with %d prior entries\n", resumedEntries)
	}
	fmt.Fprintln(out, "type /help for commands")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprintf(out, "\n[%d tokens] > ", window.TotalTokens())
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit := handleSlashCommand(cmd, app, orch, runner, input)
			if quit {
				break
			}
			continue
		}

		result, err := orch.HandleTurn(ctx, input)
		for _, warning := range result.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
		}
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				return nil
			case errors.Is(err, domain.ErrQuotaExceeded):
				fmt.Fprintln(out, "Upstream quota exhausted; the turn was dropped. Try again shortly.")
			default:
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			continue
		}

		if result.ToolResult != nil {
			fmt.Fprintf(out, "[used tool: %s]\n", result.Decision.Tool)
		}
		fmt.Fprintln(out, result.Reply)
	}

	return scanner.Err()
}

// handleSlashCommand dispatches one slash command and reports whether the
// REPL should exit.
func handleSlashCommand(cmd *cobra.Command, app *app, orch *application.Orchestrator, runner *sandbox.Runner, input string) bool {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	parts := strings.SplitN(input, " ", 2)
	command := strings.ToLower(parts[0])
	args := ""
	if len(parts) > 1 {
		args = parts[1]
	}

	logResult := "ok"
	defer func() {
		for _, warning := range orch.LogCommand(ctx, command, args, logResult) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
		}
	}()

	switch command {
	case "/exit", "/quit":
		fmt.Fprintln(out, "bye")
		return true

	case "/help":
		fmt.Fprintln(out, `commands:
  /help      show this help
  /exit      leave the REPL (also /quit)
  /clear     reset the conversation, keeping the system prompt
  /stats     context window and decision cache statistics
  /status    rate limit status for the current model
  /sessions  list stored sessions for this project
  /tools     list available sandboxed tools`)

	case "/clear":
		for _, warning := range orch.Reset(ctx) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
		}
		fmt.Fprintln(out, "context cleared")

	case "/stats":
		window := orch.Window()
		stats := orch.CacheStats()
		fmt.Fprintf(out, "turns: %d\n", window.Len())
		fmt.Fprintf(out, "tokens: %d / %d\n", window.TotalTokens(), window.MaxTokens())
		fmt.Fprintf(out, "cache: %d entries, %d hits, %d misses (%.0f%% hit rate)\n",
			stats.Size, stats.Hits, stats.Misses, stats.HitRate*100)

	case "/status":
		stats := orch.CacheStats()
		rendered, err := statusadapter.Render(orch.AdmissionStatus(), &stats, statusadapter.RenderOptions{Now: app.now()})
		if err != nil {
			logResult = err.Error()
			fmt.Fprintf(out, "Error: %v\n", err)
			break
		}
		fmt.Fprintln(out, rendered)

	case "/sessions":
		sessions, err := jsonl.ListSessions(ctx, app.project.Dir)
		if err != nil {
			logResult = err.Error()
			fmt.Fprintf(out, "Error: %v\n", err)
			break
		}
		rendered, err := statusadapter.RenderSessions(sessions, statusadapter.RenderOptions{Now: app.now()})
		if err != nil {
			logResult = err.Error()
			fmt.Fprintf(out, "Error: %v\n", err)
			break
		}
		fmt.Fprintln(out, rendered)

	case "/tools":
		for _, schema := range runner.Schemas() {
			fmt.Fprintf(out, "%s: %s\n", schema.Name, schema.Description)
		}

	default:
		logResult = "unknown command"
		fmt.Fprintf(out, "unknown command %s (try /help)\n", command)
	}

	return false
}
