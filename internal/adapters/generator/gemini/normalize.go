package gemini

import (
	"fmt"
	"strings"

	"github.com/brelli/genrepl/internal/domain"
)

// Classification responses come back with inconsistent field names, nested
// parameter objects, and stringly typed booleans depending on model mood.
// fieldAliases is the table of every known alias, mapped to the canonical
// field; normalization applies it before the decision is validated.
var fieldAliases = map[string]string{
	"requires_tool":     "requires_tool_call",
	"requiresToolCall":  "requires_tool_call",
	"requiresTool":      "requires_tool_call",
	"needs_tool":        "requires_tool_call",
	"tool":              "tool_name",
	"toolName":          "tool_name",
	"tool_to_use":       "tool_name",
	"path":              "file_path",
	"filePath":          "file_path",
	"filepath":          "file_path",
	"filename":          "file_path",
	"file":              "file_path",
	"filePattern":       "pattern",
	"file_pattern":      "pattern",
	"glob":              "pattern",
	"explanation":       "reasoning",
	"reason":            "reasoning",
	"file_content":      "content",
	"text":              "content",
}

// nestedParamKeys are wrappers some responses put tool parameters under.
var nestedParamKeys = []string{"parameters", "params", "args", "arguments"}

// NormalizeDecision converts a raw classification payload into the
// canonical ToolDecision shape. Unknown fields are dropped; missing fields
// stay at their zero values and fail validation downstream.
func NormalizeDecision(raw map[string]any) domain.ToolDecision {
	fields := map[string]any{}
	for key, value := range raw {
		fields[key] = value
	}

	// Flatten nested parameter objects without clobbering top-level fields.
	for _, wrapper := range nestedParamKeys {
		nested, ok := fields[wrapper].(map[string]any)
		if !ok {
			continue
		}
		delete(fields, wrapper)
		for key, value := range nested {
			if _, exists := fields[key]; !exists {
				fields[key] = value
			}
		}
	}

	for alias, canonical := range fieldAliases {
		value, ok := fields[alias]
		if !ok {
			continue
		}
		delete(fields, alias)
		if _, exists := fields[canonical]; !exists {
			fields[canonical] = value
		}
	}

	decision := domain.ToolDecision{
		RequiresTool: asBool(fields["requires_tool_call"]),
		Reasoning:    asString(fields["reasoning"]),
		FilePath:     asString(fields["file_path"]),
		Pattern:      asString(fields["pattern"]),
	}

	if name := asString(fields["tool_name"]); name != "" {
		decision.Tool = domain.ToolName(name)
	}

	if value, ok := fields["content"]; ok && value != nil {
		text := asString(value)
		decision.Content = &text
	}

	return decision
}

func asBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
