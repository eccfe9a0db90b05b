package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
	"github.com/google/uuid"
)

const (
	ledgerDirMode  = 0o700
	ledgerFileMode = 0o600
)

// Ledger is the append-only causal session log: one JSONL file per session
// UUID, each line one entry pointing at its predecessor. The file is opened
// per append so a crash never loses more than the in-flight line.
type Ledger struct {
	dir       string
	sessionID string
	filePath  string
	clock     ports.Clock

	parent *string
	count  int
}

var _ ports.SessionLog = (*Ledger)(nil)

// New opens a ledger for sessionID under dir, generating a fresh session
// UUID when sessionID is empty.
func New(dir, sessionID string, clock ports.Clock) (*Ledger, error) {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if !domain.IsSessionID(sessionID) {
		return nil, fmt.Errorf("session id %q is not a UUID", sessionID)
	}
	if err := os.MkdirAll(dir, ledgerDirMode); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	return &Ledger{
		dir:       dir,
		sessionID: sessionID,
		filePath:  filepath.Join(dir, sessionID+".jsonl"),
		clock:     clock,
	}, nil
}

func (l *Ledger) SessionID() string {
	return l.sessionID
}

func (l *Ledger) FilePath() string {
	return l.filePath
}

func (l *Ledger) EntryCount() int {
	return l.count
}

// Append folds a new entry onto the causal chain and writes it as one
// newline-terminated JSON record. It returns the new entry's UUID, which
// becomes the parent of the next append.
func (l *Ledger) Append(ctx context.Context, entryType domain.EntryType, message any, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	entry, err := domain.NewSessionEntry(l.sessionID, l.parent, entryType, message, l.clock.Now())
	if err != nil {
		return "", err
	}
	entry.Metadata = metadata

	line, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encode session entry: %w", err)
	}

	file, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, ledgerFileMode)
	if err != nil {
		return "", fmt.Errorf("open session file: %w", err)
	}

	if _, err := file.Write(append(line, '\n')); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("write session entry: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close session file: %w", err)
	}

	l.parent = &entry.UUID
	l.count++

	return entry.UUID, nil
}

// Resume reads every existing entry for this session in file order and
// re-seeds the parent pointer from the last one, so new appends continue
// the same chain.
func (l *Ledger) Resume(ctx context.Context) ([]domain.SessionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := readEntries(l.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	if len(entries) > 0 {
		last := entries[len(entries)-1].UUID
		l.parent = &last
	}
	l.count = len(entries)

	return entries, nil
}

// ListSessions enumerates every session file under the ledger directory,
// newest first by modification time. Files whose stem is not a UUID are
// skipped.
func (l *Ledger) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	return ListSessions(ctx, l.dir)
}

func ListSessions(ctx context.Context, dir string) ([]domain.SessionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob session files: %w", err)
	}

	summaries := make([]domain.SessionSummary, 0, len(paths))
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), ".jsonl")
		if !domain.IsSessionID(stem) {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		entries, err := readEntries(path)
		if err != nil || len(entries) == 0 {
			continue
		}

		summaries = append(summaries, domain.SessionSummary{
			SessionID:      stem,
			Path:           path,
			SizeBytes:      info.Size(),
			ModifiedAt:     info.ModTime(),
			EntryCount:     len(entries),
			FirstTimestamp: entries[0].Timestamp,
			LastTimestamp:  entries[len(entries)-1].Timestamp,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ModifiedAt.After(summaries[j].ModifiedAt)
	})

	return summaries, nil
}

// FindSession resolves nameOrID to an existing session UUID: first as a
// literal UUID, then through the deterministic name mapping.
func FindSession(dir, nameOrID string) (string, error) {
	if domain.IsSessionID(nameOrID) {
		if _, err := os.Stat(filepath.Join(dir, nameOrID+".jsonl")); err == nil {
			return nameOrID, nil
		}
	}

	sessionID := domain.SessionIDForName(nameOrID)
	if _, err := os.Stat(filepath.Join(dir, sessionID+".jsonl")); err == nil {
		return sessionID, nil
	}

	return "", domain.ErrSessionNotFound
}

func readEntries(path string) ([]domain.SessionEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var entries []domain.SessionEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry domain.SessionEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode session entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	return entries, nil
}
