package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
)

const (
	storeDirMode  = 0o700
	storeFileMode = 0o600
)

// Store persists the conversation window as a single JSON document,
// overwritten on every save.
type Store struct {
	path  string
	clock ports.Clock
}

var _ ports.WindowStore = (*Store)(nil)

func NewStore(path string, clock ports.Clock) *Store {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Store{path: filepath.Clean(path), clock: clock}
}

type document struct {
	Messages []message `json:"messages"`
	SavedAt  time.Time `json:"savedAt"`
}

type message struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Tokens    int         `json:"tokens"`
}

func (s *Store) Save(ctx context.Context, turns []domain.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := document{
		Messages: make([]message, 0, len(turns)),
		SavedAt:  s.clock.Now().UTC(),
	}
	for _, turn := range turns {
		doc.Messages = append(doc.Messages, message{
			Role:      turn.Role,
			Content:   turn.Content,
			Timestamp: turn.CreatedAt,
			Tokens:    turn.Tokens,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode context document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), storeDirMode); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, storeFileMode); err != nil {
		return fmt.Errorf("write context file: %w", err)
	}

	return nil
}

// Load returns the persisted turn list. A missing file is an empty
// conversation, not an error.
func (s *Store) Load(ctx context.Context) ([]domain.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read context file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode context file: %w", err)
	}

	turns := make([]domain.Turn, 0, len(doc.Messages))
	for _, msg := range doc.Messages {
		turns = append(turns, domain.Turn{
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.Timestamp,
			Tokens:    msg.Tokens,
		})
	}

	return turns, nil
}
