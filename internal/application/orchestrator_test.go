package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
)

type generatorStep struct {
	reply ports.GenerateReply
	err   error
}

// scriptedGenerator replays its steps in order, repeating the last one.
type scriptedGenerator struct {
	steps []generatorStep
	calls [][]domain.Turn
}

func (g *scriptedGenerator) Generate(_ context.Context, turns []domain.Turn, _ []ports.ToolSchema) (ports.GenerateReply, error) {
	snapshot := make([]domain.Turn, len(turns))
	copy(snapshot, turns)
	g.calls = append(g.calls, snapshot)

	step := g.steps[0]
	if len(g.steps) > 1 {
		g.steps = g.steps[1:]
	}
	return step.reply, step.err
}

type runnerCall struct {
	tool domain.ToolName
	args map[string]string
}

type scriptedRunner struct {
	result domain.ToolResult
	err    error
	calls  []runnerCall
}

func (r *scriptedRunner) Run(_ context.Context, tool domain.ToolName, args map[string]string) (domain.ToolResult, error) {
	r.calls = append(r.calls, runnerCall{tool: tool, args: args})
	return r.result, r.err
}

func (r *scriptedRunner) Schemas() []ports.ToolSchema {
	return []ports.ToolSchema{
		{Name: domain.ToolListFiles, Description: "list files"},
		{Name: domain.ToolReadFile, Description: "read a file"},
	}
}

type memoryWindowStore struct {
	saved   [][]domain.Turn
	load    []domain.Turn
	saveErr error
}

func (s *memoryWindowStore) Save(_ context.Context, turns []domain.Turn) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	snapshot := make([]domain.Turn, len(turns))
	copy(snapshot, turns)
	s.saved = append(s.saved, snapshot)
	return nil
}

func (s *memoryWindowStore) Load(_ context.Context) ([]domain.Turn, error) {
	return s.load, nil
}

type recordedEntry struct {
	entryType domain.EntryType
	message   any
	metadata  map[string]any
}

type memoryLedger struct {
	entries   []recordedEntry
	appendErr error
}

func (l *memoryLedger) SessionID() string {
	return "11111111-1111-1111-1111-111111111111"
}

func (l *memoryLedger) Append(_ context.Context, entryType domain.EntryType, message any, metadata map[string]any) (string, error) {
	if l.appendErr != nil {
		return "", l.appendErr
	}
	l.entries = append(l.entries, recordedEntry{entryType: entryType, message: message, metadata: metadata})
	return fmt.Sprintf("entry-%d", len(l.entries)), nil
}

func (l *memoryLedger) Resume(_ context.Context) ([]domain.SessionEntry, error) {
	return nil, nil
}

func (l *memoryLedger) ListSessions(_ context.Context) ([]domain.SessionSummary, error) {
	return nil, nil
}

func (l *memoryLedger) types() []domain.EntryType {
	out := make([]domain.EntryType, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.entryType
	}
	return out
}

type waitRecorder struct {
	waits []time.Duration
	err   error
}

func (w *waitRecorder) wait(_ context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return w.err
}

type orchestratorFixture struct {
	orch       *Orchestrator
	clock      *fakeClock
	admission  *AdmissionController
	classifier *scriptedClassifier
	generator  *scriptedGenerator
	runner     *scriptedRunner
	store      *memoryWindowStore
	ledger     *memoryLedger
	waits      *waitRecorder
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	clock := newFakeClock()
	f := &orchestratorFixture{
		clock:      clock,
		admission:  NewAdmissionController(domain.ModelProfile{Name: "gemini-2.5-flash", RequestsPerMinute: 1000, SafetyMargin: 0.9}, clock),
		classifier: &scriptedClassifier{},
		generator:  &scriptedGenerator{steps: []generatorStep{{reply: ports.GenerateReply{Text: "hello back"}}}},
		runner:     &scriptedRunner{result: domain.ToolOK("ok")},
		store:      &memoryWindowStore{},
		ledger:     &memoryLedger{},
		waits:      &waitRecorder{},
	}

	f.orch = NewOrchestrator(OrchestratorDeps{
		Window:      domain.NewConversationWindow(10_000, nil),
		WindowStore: f.store,
		Ledger:      f.ledger,
		Admission:   f.admission,
		Cache:       NewDecisionCache(f.classifier, clock, 0),
		Generator:   f.generator,
		Tools:       f.runner,
		Clock:       clock,
		Wait:        f.waits.wait,
	})

	return f
}

func TestHandleTurnPlainReply(t *testing.T) {
	f := newOrchestratorFixture(t)

	result, err := f.orch.HandleTurn(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "hello back", result.Reply)
	assert.False(t, result.Decision.RequiresTool)
	assert.Nil(t, result.ToolResult)
	assert.Empty(t, result.Warnings)

	require.Len(t, f.generator.calls, 1)
	assert.Empty(t, f.runner.calls)

	turns := f.orch.Window().Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)

	assert.Equal(t, []domain.EntryType{domain.EntryUser, domain.EntryAssistant}, f.ledger.types())

	// Classification and generation each consumed one admission slot.
	assert.Equal(t, 2, f.admission.Status().Used)
}

func TestHandleTurnToolDecisionEnhancesOutgoingPrompt(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.classifier.decision = domain.ToolDecision{
		RequiresTool: true,
		Tool:         domain.ToolReadFile,
		FilePath:     "main.go",
	}
	f.runner.result = domain.ToolOK("package main")

	result, err := f.orch.HandleTurn(context.Background(), "what does main.go do?")
	require.NoError(t, err)

	require.Len(t, f.runner.calls, 1)
	assert.Equal(t, domain.ToolReadFile, f.runner.calls[0].tool)
	assert.Equal(t, map[string]string{"file_path": "main.go"}, f.runner.calls[0].args)

	require.NotNil(t, result.ToolResult)
	assert.Equal(t, "package main", result.ToolResult.Text())

	// The upstream prompt carries the tool output.
	require.Len(t, f.generator.calls, 1)
	sent := f.generator.calls[0]
	outgoing := sent[len(sent)-1].Content
	assert.Contains(t, outgoing, "what does main.go do?")
	assert.Contains(t, outgoing, "I've read the file 'main.go'")
	assert.Contains(t, outgoing, "package main")

	// The stored window keeps the raw input.
	turns := f.orch.Window().Snapshot()
	assert.Equal(t, "what does main.go do?", turns[0].Content)

	assert.Equal(t, []domain.EntryType{domain.EntryUser, domain.EntryToolUse, domain.EntryAssistant}, f.ledger.types())
}

func TestHandleTurnRunsStructuredToolCalls(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.generator.steps = []generatorStep{
		{reply: ports.GenerateReply{ToolCalls: []ports.ToolCall{
			{Name: domain.ToolListFiles, Args: map[string]string{"pattern": "*.go"}},
		}}},
		{reply: ports.GenerateReply{Text: "two Go files"}},
	}
	f.runner.result = domain.ToolOK("main.go\nutil.go")

	result, err := f.orch.HandleTurn(context.Background(), "how many Go files are there?")
	require.NoError(t, err)

	assert.Equal(t, "two Go files", result.Reply)
	require.Len(t, f.generator.calls, 2)
	require.Len(t, f.runner.calls, 1)
	assert.Equal(t, domain.ToolListFiles, f.runner.calls[0].tool)

	// The tool output was folded into the window before regeneration.
	var toolTurn *domain.Turn
	for _, turn := range f.orch.Window().Snapshot() {
		if turn.Role == domain.RoleTool {
			toolTurn = &turn
			break
		}
	}
	require.NotNil(t, toolTurn)
	assert.Equal(t, "list_files: main.go\nutil.go", toolTurn.Content)

	assert.Equal(t, []domain.EntryType{domain.EntryUser, domain.EntryToolUse, domain.EntryAssistant}, f.ledger.types())
}

func TestHandleTurnBoundsToolCallRounds(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.generator.steps = []generatorStep{
		{reply: ports.GenerateReply{Text: "still looking", ToolCalls: []ports.ToolCall{
			{Name: domain.ToolListFiles},
		}}},
	}

	result, err := f.orch.HandleTurn(context.Background(), "explore the repository")
	require.NoError(t, err)

	assert.Equal(t, "still looking", result.Reply)
	assert.Len(t, f.generator.calls, 5)
	assert.Len(t, f.runner.calls, 4)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[len(result.Warnings)-1], "tool call limit reached")
}

func TestHandleTurnRetriesQuotaExhaustionWithBackoff(t *testing.T) {
	f := newOrchestratorFixture(t)
	quotaErr := fmt.Errorf("upstream said no: %w", domain.ErrQuotaExceeded)
	f.generator.steps = []generatorStep{
		{err: quotaErr},
		{err: quotaErr},
		{reply: ports.GenerateReply{Text: "finally"}},
	}

	result, err := f.orch.HandleTurn(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "finally", result.Reply)
	assert.Len(t, f.generator.calls, 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.waits.waits)
}

func TestHandleTurnGivesUpAfterMaxAttempts(t *testing.T) {
	f := newOrchestratorFixture(t)
	quotaErr := fmt.Errorf("upstream said no: %w", domain.ErrQuotaExceeded)
	f.generator.steps = []generatorStep{{err: quotaErr}}

	_, err := f.orch.HandleTurn(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Len(t, f.generator.calls, 3)

	// The failure lands in the ledger and the conversation stays usable.
	types := f.ledger.types()
	assert.Equal(t, domain.EntryError, types[len(types)-1])

	f.generator.steps = []generatorStep{{reply: ports.GenerateReply{Text: "recovered"}}}
	result, err := f.orch.HandleTurn(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Reply)
}

func TestHandleTurnFailsFastOnNonQuotaErrors(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.generator.steps = []generatorStep{{err: errors.New("bad response shape")}}

	_, err := f.orch.HandleTurn(context.Background(), "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Len(t, f.generator.calls, 1)
	assert.Empty(t, f.waits.waits)
}

func TestHandleTurnCancelledWaitLeavesOccupancyUntouched(t *testing.T) {
	f := newOrchestratorFixture(t)

	// Saturate the window so the next dispatch must wait, then cancel the
	// wait. The pending slot must not be recorded.
	limited := NewAdmissionController(domain.ModelProfile{Name: "tiny", RequestsPerMinute: 1, SafetyMargin: 0.9}, f.clock)
	limited.Record()
	f.waits.err = context.Canceled

	f.orch = NewOrchestrator(OrchestratorDeps{
		Window:    domain.NewConversationWindow(10_000, nil),
		Admission: limited,
		Cache:     NewDecisionCache(f.classifier, f.clock, 0),
		Generator: f.generator,
		Clock:     f.clock,
		Wait:      f.waits.wait,
	})

	_, err := f.orch.HandleTurn(context.Background(), "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.generator.calls)
	assert.Equal(t, 1, limited.Status().Used)
}

func TestResetKeepsSystemTurnAndLogsCommand(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orch.Window().Append(domain.RoleSystem, "be terse", f.clock.Now())

	_, err := f.orch.HandleTurn(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 3, f.orch.Window().Len())

	warnings := f.orch.Reset(context.Background())
	assert.Empty(t, warnings)

	turns := f.orch.Window().Snapshot()
	require.Len(t, turns, 1)
	assert.Equal(t, domain.RoleSystem, turns[0].Role)

	types := f.ledger.types()
	assert.Equal(t, domain.EntryCommand, types[len(types)-1])
}

func TestRestoreWindowRehydratesFromStore(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.store.load = []domain.Turn{
		{Role: domain.RoleSystem, Content: "be terse", Tokens: 2},
		{Role: domain.RoleUser, Content: "earlier question", Tokens: 4},
	}

	require.NoError(t, f.orch.RestoreWindow(context.Background()))

	turns := f.orch.Window().Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, "earlier question", turns[1].Content)
	assert.Equal(t, 6, f.orch.Window().TotalTokens())
}

func TestHandleTurnDegradesOnPersistenceFailures(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.store.saveErr = errors.New("disk full")
	f.ledger.appendErr = errors.New("ledger sealed")

	result, err := f.orch.HandleTurn(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "hello back", result.Reply)
	assert.NotEmpty(t, result.Warnings)
}

func TestHandleTurnPersistsWindowAfterEachMutation(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.HandleTurn(context.Background(), "hello")
	require.NoError(t, err)

	require.Len(t, f.store.saved, 2)
	assert.Len(t, f.store.saved[0], 1)
	assert.Len(t, f.store.saved[1], 2)
}
