package domain

import "time"

const DefaultMaxContextTokens = 100_000

// ConversationWindow holds the ordered turn history under a token budget.
// The leading system turn, when present, survives trimming and reset.
type ConversationWindow struct {
	turns       []Turn
	maxTokens   int
	totalTokens int
	estimate    TokenEstimator
}

func NewConversationWindow(maxTokens int, estimate TokenEstimator) *ConversationWindow {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	if estimate == nil {
		estimate = HeuristicEstimator
	}

	return &ConversationWindow{maxTokens: maxTokens, estimate: estimate}
}

// Append adds a turn, charging its token estimate against the budget and
// trimming if the budget is exceeded. It returns the stored turn.
func (w *ConversationWindow) Append(role Role, content string, now time.Time) Turn {
	turn := Turn{
		Role:      role,
		Content:   content,
		CreatedAt: now,
		Tokens:    w.estimate(content),
	}
	w.turns = append(w.turns, turn)
	w.totalTokens += turn.Tokens
	w.trim()

	return turn
}

// trim evicts strictly oldest-first among non-preserved turns until the
// window fits the budget or only preserved turns remain.
func (w *ConversationWindow) trim() {
	for w.totalTokens > w.maxTokens && len(w.turns) > 1 {
		idx := 0
		if w.turns[0].Role == RoleSystem {
			idx = 1
		}
		w.totalTokens -= w.turns[idx].Tokens
		w.turns = append(w.turns[:idx], w.turns[idx+1:]...)
	}
}

// Snapshot returns the ordered turn list for transmission upstream.
func (w *ConversationWindow) Snapshot() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Reset clears the window, keeping only a leading system turn if present.
func (w *ConversationWindow) Reset() {
	if len(w.turns) > 0 && w.turns[0].Role == RoleSystem {
		system := w.turns[0]
		w.turns = []Turn{system}
		w.totalTokens = system.Tokens
		return
	}

	w.turns = nil
	w.totalTokens = 0
}

// Restore replaces the window contents with previously persisted turns,
// trusting their stored token counts.
func (w *ConversationWindow) Restore(turns []Turn) {
	w.turns = make([]Turn, len(turns))
	copy(w.turns, turns)

	w.totalTokens = 0
	for _, turn := range w.turns {
		w.totalTokens += turn.Tokens
	}
	w.trim()
}

func (w *ConversationWindow) TotalTokens() int {
	return w.totalTokens
}

func (w *ConversationWindow) MaxTokens() int {
	return w.maxTokens
}

func (w *ConversationWindow) Len() int {
	return len(w.turns)
}
