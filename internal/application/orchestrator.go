package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 2 * time.Second
	defaultBackoffFactor  = 2.0

	// maxToolRounds bounds follow-up generations triggered by structured
	// tool calls in the model's reply.
	maxToolRounds = 4
)

// WaitFunc blocks for the given duration or until ctx is cancelled.
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleepWait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OrchestratorDeps collects the collaborators a turn runs through.
type OrchestratorDeps struct {
	Window      *domain.ConversationWindow
	WindowStore ports.WindowStore
	Ledger      ports.SessionLog
	Admission   *AdmissionController
	Cache       *DecisionCache
	Generator   ports.TextGenerator
	Tools       ports.ToolRunner
	Clock       ports.Clock

	// Wait overrides how admission and backoff delays are spent, so the
	// cmd layer can show a countdown. Defaults to a cancellable sleep.
	Wait WaitFunc
}

// Orchestrator drives one logical turn at a time: decision cache, admission
// control, context window, upstream call, optional tool execution, and the
// session ledger, in that order. It is not safe for concurrent turns; each
// conversation owns its orchestrator.
type Orchestrator struct {
	window      *domain.ConversationWindow
	windowStore ports.WindowStore
	ledger      ports.SessionLog
	admission   *AdmissionController
	cache       *DecisionCache
	generator   ports.TextGenerator
	tools       ports.ToolRunner
	clock       ports.Clock
	wait        WaitFunc

	maxAttempts    int
	initialBackoff time.Duration
	backoffFactor  float64
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	wait := deps.Wait
	if wait == nil {
		wait = sleepWait
	}

	o := &Orchestrator{
		window:         deps.Window,
		windowStore:    deps.WindowStore,
		ledger:         deps.Ledger,
		admission:      deps.Admission,
		cache:          deps.Cache,
		generator:      deps.Generator,
		tools:          deps.Tools,
		clock:          clock,
		wait:           wait,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		backoffFactor:  defaultBackoffFactor,
	}

	// Cache misses issue an upstream classification call, which counts
	// against the same quota as generation.
	if o.cache != nil {
		o.cache.SetGate(o.admit)
	}

	return o
}

// TurnResult is what one handled turn produced. Warnings carry persistence
// failures that degraded without failing the turn.
type TurnResult struct {
	Reply      string
	Decision   domain.ToolDecision
	ToolResult *domain.ToolResult
	Warnings   []string
}

// HandleTurn processes one user input end to end. A returned error leaves
// the window and ledger consistent; quota exhaustion wraps
// domain.ErrQuotaExceeded and the conversation stays usable.
func (o *Orchestrator) HandleTurn(ctx context.Context, input string) (TurnResult, error) {
	var result TurnResult

	userTurn := o.window.Append(domain.RoleUser, input, o.clock.Now())
	o.persistWindow(ctx, &result)
	o.appendLedger(ctx, &result, domain.EntryUser,
		domain.TurnMessage{Role: domain.RoleUser, Content: input},
		map[string]any{"tokens": userTurn.Tokens})

	decision, err := o.cache.Decide(ctx, input)
	if err != nil {
		return result, err
	}
	result.Decision = decision

	turns := o.window.Snapshot()
	if decision.RequiresTool && decision.IsValid() && o.tools != nil {
		args := decision.ToolArgs()
		toolResult, runErr := o.tools.Run(ctx, decision.Tool, args)
		if runErr != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("tool %s unavailable: %v", decision.Tool, runErr))
		} else {
			result.ToolResult = &toolResult
			o.appendLedger(ctx, &result, domain.EntryToolUse, domain.ToolUseMessage{
				Tool:   decision.Tool,
				Args:   args,
				Result: toolResult.Text(),
				Failed: toolResult.Failed(),
			}, nil)

			// Replace the outgoing user turn with the tool-enhanced
			// prompt; the stored window keeps the raw input.
			turns[len(turns)-1] = domain.Turn{
				Role:      domain.RoleUser,
				Content:   toolEnhancedPrompt(input, decision, toolResult),
				CreatedAt: userTurn.CreatedAt,
				Tokens:    userTurn.Tokens,
			}
		}
	}

	reply, err := o.generateWithRetry(ctx, turns)
	if err != nil {
		o.appendLedger(ctx, &result, domain.EntryError,
			domain.ErrorMessage{Error: err.Error(), Context: map[string]any{"input": input}}, nil)
		return result, err
	}

	for round := 0; len(reply.ToolCalls) > 0 && o.tools != nil; round++ {
		if round == maxToolRounds {
			result.Warnings = append(result.Warnings, "tool call limit reached, answering with partial results")
			break
		}

		for _, call := range reply.ToolCalls {
			res, runErr := o.tools.Run(ctx, call.Name, call.Args)
			if runErr != nil {
				res = domain.ToolError(runErr.Error())
			}
			o.appendLedger(ctx, &result, domain.EntryToolUse, domain.ToolUseMessage{
				Tool:   call.Name,
				Args:   call.Args,
				Result: res.Text(),
				Failed: res.Failed(),
			}, nil)
			o.window.Append(domain.RoleTool, fmt.Sprintf("%s: %s", call.Name, res.Text()), o.clock.Now())
		}
		o.persistWindow(ctx, &result)

		reply, err = o.generateWithRetry(ctx, o.window.Snapshot())
		if err != nil {
			o.appendLedger(ctx, &result, domain.EntryError,
				domain.ErrorMessage{Error: err.Error(), Context: map[string]any{"input": input}}, nil)
			return result, err
		}
	}

	assistantTurn := o.window.Append(domain.RoleAssistant, reply.Text, o.clock.Now())
	o.persistWindow(ctx, &result)
	o.appendLedger(ctx, &result, domain.EntryAssistant,
		domain.TurnMessage{Role: domain.RoleAssistant, Content: reply.Text},
		map[string]any{"tokens": assistantTurn.Tokens})

	result.Reply = reply.Text

	return result, nil
}

// admit honors the admission controller's verdict, then records the
// dispatch. Cancellation during the wait leaves occupancy untouched.
func (o *Orchestrator) admit(ctx context.Context) error {
	if wait := o.admission.CheckWait(); wait > 0 {
		if err := o.wait(ctx, wait); err != nil {
			return err
		}
	}
	o.admission.Record()

	return nil
}

func (o *Orchestrator) generateWithRetry(ctx context.Context, turns []domain.Turn) (ports.GenerateReply, error) {
	var schemas []ports.ToolSchema
	if o.tools != nil {
		schemas = o.tools.Schemas()
	}

	backoff := o.initialBackoff
	var lastErr error

	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := o.wait(ctx, backoff); err != nil {
				return ports.GenerateReply{}, err
			}
			backoff = time.Duration(float64(backoff) * o.backoffFactor)
		}

		if err := o.admit(ctx); err != nil {
			return ports.GenerateReply{}, err
		}

		reply, err := o.generator.Generate(ctx, turns, schemas)
		if err == nil {
			return reply, nil
		}
		if !isQuotaExceeded(err) {
			return ports.GenerateReply{}, fmt.Errorf("generate: %w", err)
		}
		lastErr = err
	}

	return ports.GenerateReply{}, fmt.Errorf("generate after %d attempts: %w", o.maxAttempts, lastErr)
}

// Reset clears the conversation window back to its preserved system turn and
// records the command in the ledger.
func (o *Orchestrator) Reset(ctx context.Context) []string {
	var result TurnResult

	o.window.Reset()
	o.persistWindow(ctx, &result)
	o.appendLedger(ctx, &result, domain.EntryCommand,
		domain.CommandMessage{Command: "/clear", Result: "context cleared"}, nil)

	return result.Warnings
}

// LogCommand records a slash command execution in the ledger.
func (o *Orchestrator) LogCommand(ctx context.Context, command, args, cmdResult string) []string {
	var result TurnResult
	o.appendLedger(ctx, &result, domain.EntryCommand,
		domain.CommandMessage{Command: command, Args: args, Result: cmdResult}, nil)

	return result.Warnings
}

// RestoreWindow rehydrates the conversation window from the persisted
// context document, if one exists.
func (o *Orchestrator) RestoreWindow(ctx context.Context) error {
	if o.windowStore == nil {
		return nil
	}

	turns, err := o.windowStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load context window: %w", err)
	}
	if len(turns) > 0 {
		o.window.Restore(turns)
	}

	return nil
}

func (o *Orchestrator) Window() *domain.ConversationWindow {
	return o.window
}

func (o *Orchestrator) CacheStats() CacheStats {
	return o.cache.Stats()
}

func (o *Orchestrator) AdmissionStatus() AdmissionStatus {
	return o.admission.Status()
}

func (o *Orchestrator) persistWindow(ctx context.Context, result *TurnResult) {
	if o.windowStore == nil {
		return
	}
	if err := o.windowStore.Save(ctx, o.window.Snapshot()); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("persist context window: %v", err))
	}
}

func (o *Orchestrator) appendLedger(ctx context.Context, result *TurnResult, entryType domain.EntryType, message any, metadata map[string]any) {
	if o.ledger == nil {
		return
	}
	if _, err := o.ledger.Append(ctx, entryType, message, metadata); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("append session ledger: %v", err))
	}
}

func isQuotaExceeded(err error) bool {
	return errors.Is(err, domain.ErrQuotaExceeded)
}

func toolEnhancedPrompt(query string, decision domain.ToolDecision, result domain.ToolResult) string {
	switch decision.Tool {
	case domain.ToolListFiles:
		return fmt.Sprintf("%s\n\nI've listed the files for you. Here's what I found:\n\n%s\n\nBased on these files, here's my response:", query, result.Text())
	case domain.ToolReadFile:
		return fmt.Sprintf("%s\n\nI've read the file '%s'. Here's its content:\n\n%s\n\nBased on this content, here's my analysis:", query, decision.FilePath, result.Text())
	case domain.ToolWriteFile:
		return fmt.Sprintf("%s\n\nI've written to '%s'.\n\n%s\n\nThe file operation is complete. Here's a summary:", query, decision.FilePath, result.Text())
	case domain.ToolSearchCode:
		return fmt.Sprintf("%s\n\nI've searched for '%s'. Here's what I found:\n\n%s\n\nBased on these matches, here's my response:", query, decision.Pattern, result.Text())
	default:
		return query
	}
}
