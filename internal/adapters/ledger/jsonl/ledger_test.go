package jsonl

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brelli/genrepl/internal/domain"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestLedgerAppendBuildsCausalChain(t *testing.T) {
	dir := t.TempDir()
	clock := newFixedClock()
	ctx := context.Background()

	ledger, err := New(dir, "", clock)
	require.NoError(t, err)
	require.True(t, domain.IsSessionID(ledger.SessionID()))

	var lastUUID string
	for i := 0; i < 5; i++ {
		entryUUID, err := ledger.Append(ctx, domain.EntryUser,
			domain.TurnMessage{Role: domain.RoleUser, Content: "turn"},
			map[string]any{"tokens": 1})
		require.NoError(t, err)
		assert.NotEqual(t, lastUUID, entryUUID)
		lastUUID = entryUUID
		clock.Advance(time.Second)
	}

	entries, err := ledger.Resume(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	require.NoError(t, domain.VerifyChain(entries))
	assert.Nil(t, entries[0].ParentUUID)
	assert.Equal(t, lastUUID, entries[4].UUID)
	assert.Equal(t, 5, ledger.EntryCount())
}

func TestLedgerResumeContinuesChainAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := New(dir, "", newFixedClock())
	require.NoError(t, err)
	_, err = first.Append(ctx, domain.EntryUser, domain.TurnMessage{Role: domain.RoleUser, Content: "a"}, nil)
	require.NoError(t, err)
	_, err = first.Append(ctx, domain.EntryAssistant, domain.TurnMessage{Role: domain.RoleAssistant, Content: "b"}, nil)
	require.NoError(t, err)

	// A second process resumes the same session and keeps appending.
	second, err := New(dir, first.SessionID(), newFixedClock())
	require.NoError(t, err)
	resumed, err := second.Resume(ctx)
	require.NoError(t, err)
	require.Len(t, resumed, 2)

	_, err = second.Append(ctx, domain.EntryUser, domain.TurnMessage{Role: domain.RoleUser, Content: "c"}, nil)
	require.NoError(t, err)

	all, err := second.Resume(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.NoError(t, domain.VerifyChain(all))
}

func TestLedgerResumeMissingSession(t *testing.T) {
	ledger, err := New(t.TempDir(), "", newFixedClock())
	require.NoError(t, err)

	_, err = ledger.Resume(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLedgerRejectsMalformedSessionID(t *testing.T) {
	_, err := New(t.TempDir(), "not-a-uuid", newFixedClock())
	assert.Error(t, err)
}

func TestLedgerAppendHonorsCancellation(t *testing.T) {
	ledger, err := New(t.TempDir(), "", newFixedClock())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ledger.Append(ctx, domain.EntryUser, domain.TurnMessage{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ledger.EntryCount())
}

func TestListSessionsNewestFirstSkippingForeignFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	older, err := New(dir, "", newFixedClock())
	require.NoError(t, err)
	_, err = older.Append(ctx, domain.EntryUser, domain.TurnMessage{Role: domain.RoleUser, Content: "old"}, nil)
	require.NoError(t, err)

	// Non-UUID stems and empty files are not sessions.
	require.NoError(t, os.WriteFile(dir+"/notes.jsonl", []byte("{}\n"), 0o600))
	emptyID := domain.SessionIDForName("empty")
	require.NoError(t, os.WriteFile(dir+"/"+emptyID+".jsonl", nil, 0o600))

	newer, err := New(dir, "", newFixedClock())
	require.NoError(t, err)
	_, err = newer.Append(ctx, domain.EntryUser, domain.TurnMessage{Role: domain.RoleUser, Content: "new"}, nil)
	require.NoError(t, err)

	// Push the second file's mtime clearly past the first.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(newer.FilePath(), future, future))

	summaries, err := ListSessions(ctx, dir)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, newer.SessionID(), summaries[0].SessionID)
	assert.Equal(t, older.SessionID(), summaries[1].SessionID)
	assert.Equal(t, 1, summaries[0].EntryCount)
	assert.Positive(t, summaries[0].SizeBytes)
}

func TestFindSessionResolvesUUIDAndName(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	named, err := New(dir, domain.SessionIDForName("my-project"), newFixedClock())
	require.NoError(t, err)
	_, err = named.Append(ctx, domain.EntryUser, domain.TurnMessage{Role: domain.RoleUser, Content: "x"}, nil)
	require.NoError(t, err)

	byName, err := FindSession(dir, "my-project")
	require.NoError(t, err)
	assert.Equal(t, named.SessionID(), byName)

	byID, err := FindSession(dir, named.SessionID())
	require.NoError(t, err)
	assert.Equal(t, named.SessionID(), byID)

	_, err = FindSession(dir, "never-created")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
