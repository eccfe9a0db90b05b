package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brelli/genrepl/internal/domain"
)

// decisionPrompt steers the model toward a conservative structured verdict.
// The parameter-name warning exists because smaller models habitually answer
// with "path" instead of "file_path"; normalization catches the rest.
const decisionPrompt = `You are a tool dispatch analyzer for a file system REPL.

Available tools:
1. list_files - List files matching a pattern
   - Parameters: pattern (optional, defaults to "*")
2. read_file - Read the contents of a specific file
   - Parameters: file_path (required) - MUST use 'file_path' not 'path'
3. write_file - Create or update a file with content
   - Parameters: file_path (required), content (required)
4. search_code - Search file contents for a pattern
   - Parameters: pattern (required), file_pattern (optional)

Analyze the user's query and decide if it requires a tool call. Respond with
a JSON object with fields: requires_tool_call (boolean), tool_name,
reasoning, file_path, pattern, content.

Examples:
- "What files are in src?" -> list_files with pattern="src/*"
- "Read the Makefile" -> read_file with file_path="Makefile"
- "Create test.txt with Hello" -> write_file with file_path="test.txt", content="Hello"
- "Explain recursion" -> no tool needed (requires_tool_call=false)

Important:
- Only suggest tools for actual file operations
- Don't suggest tools for general questions or explanations
- Be conservative - when in doubt, don't use a tool`

const classifyTemperature = 0.1

// Classify asks the model for a structured tool decision and normalizes its
// loosely shaped JSON answer into the canonical form.
func (c *Client) Classify(ctx context.Context, query string) (domain.ToolDecision, error) {
	temperature := classifyTemperature
	req := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: fmt.Sprintf("%s\n\nUser query: %s\n\nAnalyze this query:", decisionPrompt, query)}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:      &temperature,
			ResponseMimeType: "application/json",
		},
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return domain.ToolDecision{}, err
	}
	if len(resp.Candidates) == 0 {
		return domain.ToolDecision{}, fmt.Errorf("empty classification response from model %s", c.model)
	}

	var text string
	for _, p := range resp.Candidates[0].Content.Parts {
		text += p.Text
	}

	raw, err := decodeDecisionJSON(text)
	if err != nil {
		return domain.ToolDecision{}, err
	}

	return NormalizeDecision(raw), nil
}

// decodeDecisionJSON parses the model's answer, stripping markdown fences
// that slip through despite the JSON response mime type.
func decodeDecisionJSON(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode classification response: %w", err)
	}

	return raw, nil
}
