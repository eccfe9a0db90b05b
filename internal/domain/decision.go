package domain

import "time"

type ToolName string

const (
	ToolListFiles  ToolName = "list_files"
	ToolReadFile   ToolName = "read_file"
	ToolWriteFile  ToolName = "write_file"
	ToolSearchCode ToolName = "search_code"
)

// ToolDecision is the classifier's verdict on whether a query needs a tool
// and with which parameters. Content is a pointer because write_file treats
// an empty string as real content while nil means the field was absent.
type ToolDecision struct {
	RequiresTool bool
	Tool         ToolName
	Reasoning    string
	FilePath     string
	Pattern      string
	Content      *string
}

// IsValid reports whether the decision carries every parameter its tool
// requires. A no-tool decision is always valid.
func (d ToolDecision) IsValid() bool {
	if !d.RequiresTool {
		return true
	}

	switch d.Tool {
	case ToolListFiles:
		return true
	case ToolReadFile:
		return d.FilePath != ""
	case ToolWriteFile:
		return d.FilePath != "" && d.Content != nil
	case ToolSearchCode:
		return d.Pattern != ""
	default:
		return false
	}
}

// ToolArgs converts the decision into the argument map the tool runner
// expects. list_files falls back to FilePath as the pattern when the
// classifier put the path in the wrong field.
func (d ToolDecision) ToolArgs() map[string]string {
	args := map[string]string{}

	switch d.Tool {
	case ToolListFiles:
		if d.Pattern != "" {
			args["pattern"] = d.Pattern
		} else if d.FilePath != "" {
			args["pattern"] = d.FilePath
		}
	case ToolReadFile:
		if d.FilePath != "" {
			args["file_path"] = d.FilePath
		}
	case ToolWriteFile:
		if d.FilePath != "" {
			args["file_path"] = d.FilePath
		}
		if d.Content != nil {
			args["content"] = *d.Content
		}
	case ToolSearchCode:
		if d.Pattern != "" {
			args["pattern"] = d.Pattern
		}
		if d.FilePath != "" {
			args["file_pattern"] = d.FilePath
		}
	}

	return args
}

// CachedDecision pairs a decision with its insertion time for TTL checks.
type CachedDecision struct {
	Decision ToolDecision
	StoredAt time.Time
}

func (c CachedDecision) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.StoredAt) >= ttl
}
