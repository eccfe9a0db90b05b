package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EntryType string

const (
	EntryUser      EntryType = "user"
	EntryAssistant EntryType = "assistant"
	EntryCommand   EntryType = "command"
	EntryError     EntryType = "error"
	EntryToolUse   EntryType = "tool_use"
)

// SessionEntry is one record in a session's causal chain. ParentUUID points
// at the immediately preceding entry, or is nil for the first one, so the
// log materializes a singly linked list in an append-only file.
type SessionEntry struct {
	SessionID  string          `json:"sessionId"`
	UUID       string          `json:"uuid"`
	ParentUUID *string         `json:"parentUuid"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       EntryType       `json:"type"`
	Message    json.RawMessage `json:"message"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// NewSessionEntry folds a new entry onto the chain: the caller passes the
// previous entry's UUID (nil for the first) and threads the returned entry's
// UUID into the next call.
func NewSessionEntry(sessionID string, parent *string, entryType EntryType, message any, now time.Time) (SessionEntry, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return SessionEntry{}, fmt.Errorf("encode session message: %w", err)
	}

	return SessionEntry{
		SessionID:  sessionID,
		UUID:       uuid.NewString(),
		ParentUUID: parent,
		Timestamp:  now.UTC(),
		Type:       entryType,
		Message:    raw,
	}, nil
}

// VerifyChain checks that entries, in file order, form a single causal
// chain: the first parent is nil and every later entry points at its
// immediate predecessor.
func VerifyChain(entries []SessionEntry) error {
	for i, entry := range entries {
		if i == 0 {
			if entry.ParentUUID != nil {
				return fmt.Errorf("entry %s: first entry has parent %s", entry.UUID, *entry.ParentUUID)
			}
			continue
		}

		if entry.ParentUUID == nil {
			return fmt.Errorf("entry %s: missing parent", entry.UUID)
		}
		if prev := entries[i-1].UUID; *entry.ParentUUID != prev {
			return fmt.Errorf("entry %s: parent %s, want %s", entry.UUID, *entry.ParentUUID, prev)
		}
	}

	return nil
}

// SessionIDForName maps a human-readable name to a deterministic v5 UUID so
// the same name always resumes the same session without an index file.
func SessionIDForName(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}

// IsSessionID reports whether s parses as a UUID.
func IsSessionID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// SessionSummary describes one persisted session for listings.
type SessionSummary struct {
	SessionID      string
	Path           string
	SizeBytes      int64
	ModifiedAt     time.Time
	EntryCount     int
	FirstTimestamp time.Time
	LastTimestamp  time.Time
}

// Message payload shapes. Conversational entries reuse the upstream
// role/content pair; command, error and tool_use entries carry their own.

type TurnMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CommandMessage struct {
	Command string `json:"command"`
	Args    string `json:"args,omitempty"`
	Result  string `json:"result,omitempty"`
}

type ErrorMessage struct {
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
}

type ToolUseMessage struct {
	Tool   ToolName          `json:"tool"`
	Args   map[string]string `json:"args"`
	Result string            `json:"result"`
	Failed bool              `json:"failed,omitempty"`
}
